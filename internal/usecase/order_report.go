package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
)

// OrderReport summarises the journal of one bot.
// Averages and PnL only use orders that carry a price; market orders
// contribute to counts and quantities.
type OrderReport struct {
	BotID        string    `json:"bot_id"`
	BotName      string    `json:"bot_name,omitempty"`
	Symbol       string    `json:"symbol"`
	Orders       int       `json:"orders"`
	Buys         int       `json:"buys"`
	Sells        int       `json:"sells"`
	BoughtQty    float64   `json:"bought_qty"`
	SoldQty      float64   `json:"sold_qty"`
	AvgBuyPrice  float64   `json:"avg_buy_price"`
	AvgSellPrice float64   `json:"avg_sell_price"`
	Volume       float64   `json:"volume"` // quote volume of priced orders
	RealizedPnL  float64   `json:"realized_pnl"`
	First        time.Time `json:"first,omitempty"`
	Last         time.Time `json:"last,omitempty"`
}

// BuildOrderReport folds a list of journal orders (any order) into a report.
func BuildOrderReport(botID string, orders []*domain.Order) OrderReport {
	rep := OrderReport{BotID: botID}

	var buyQuote, buyPricedQty, sellQuote, sellPricedQty float64
	for _, o := range orders {
		if o == nil {
			continue
		}
		rep.Orders++
		if rep.Symbol == "" {
			rep.Symbol = o.Symbol
		}
		if rep.First.IsZero() || o.CreatedAt.Before(rep.First) {
			rep.First = o.CreatedAt
		}
		if o.CreatedAt.After(rep.Last) {
			rep.Last = o.CreatedAt
		}

		switch o.Side {
		case domain.SideBuy:
			rep.Buys++
			rep.BoughtQty += o.Quantity
			if o.Price != nil {
				buyQuote += o.Quantity * *o.Price
				buyPricedQty += o.Quantity
			}
		case domain.SideSell:
			rep.Sells++
			rep.SoldQty += o.Quantity
			if o.Price != nil {
				sellQuote += o.Quantity * *o.Price
				sellPricedQty += o.Quantity
			}
		}
	}

	if buyPricedQty > 0 {
		rep.AvgBuyPrice = buyQuote / buyPricedQty
	}
	if sellPricedQty > 0 {
		rep.AvgSellPrice = sellQuote / sellPricedQty
	}
	rep.Volume = buyQuote + sellQuote
	if rep.AvgBuyPrice > 0 && rep.AvgSellPrice > 0 {
		rep.RealizedPnL = (rep.AvgSellPrice - rep.AvgBuyPrice) * sellPricedQty
	}
	return rep
}

// JournalAnalyzer builds order reports from the persisted journal.
type JournalAnalyzer struct {
	journal domain.OrderJournal
	logger  *zap.Logger
}

func NewJournalAnalyzer(journal domain.OrderJournal, logger *zap.Logger) *JournalAnalyzer {
	return &JournalAnalyzer{journal: journal, logger: logger}
}

// Report summarises the last limit journal entries of one bot.
func (a *JournalAnalyzer) Report(ctx context.Context, bot domain.BotConfig, limit int) (OrderReport, error) {
	orders, err := a.journal.ListOrders(ctx, bot.ID, limit)
	if err != nil {
		return OrderReport{}, fmt.Errorf("list orders for %s: %w", bot.Name, err)
	}
	rep := BuildOrderReport(bot.ID, orders)
	rep.BotName = bot.Name
	if rep.Symbol == "" {
		rep.Symbol = bot.Symbol
	}
	return rep, nil
}

// Analyze reports every bot, busiest first. A bot whose journal cannot
// be read is logged and skipped.
func (a *JournalAnalyzer) Analyze(ctx context.Context, bots []domain.BotConfig, limit int) []OrderReport {
	results := make([]OrderReport, 0, len(bots))
	for _, bot := range bots {
		rep, err := a.Report(ctx, bot, limit)
		if err != nil {
			a.logger.Warn("Skipping bot report", zap.String("bot", bot.Name), zap.Error(err))
			continue
		}
		results = append(results, rep)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Orders != results[j].Orders {
			return results[i].Orders > results[j].Orders
		}
		return results[i].Volume > results[j].Volume
	})
	return results
}
