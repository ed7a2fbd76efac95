package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/config"
	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/exchange"
	"github.com/vitos/dca_bot/internal/usecase"
)

// Places a resting limit buy well below market, checks it is listed as
// open, then cancels it. Run against testnet.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to trade")
	size := flag.Float64("size", 0.001, "order quantity")
	discount := flag.Float64("discount", 20, "limit price below market, percent")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Exchange.Testnet {
		fmt.Println("⚠️ Refusing to place orders outside testnet (set exchange.testnet: true)")
		os.Exit(1)
	}

	fmt.Printf("Testing Trading on Bybit (Testnet)...\n")
	session := exchange.NewBybitSession(exchange.SessionConfig{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		BaseURL:    cfg.Exchange.RESTEndpoint,
		Timeout:    cfg.Exchange.Timeout,
		RecvWindow: cfg.Exchange.RecvWindow,
	}, zap.NewNop())
	ctx := context.Background()

	botCfg := domain.NewBotConfig(domain.BotTemplate{Name: "check_trading", Type: domain.BotTypeSimple, Symbol: *symbol})
	botCfg.BaseOrderSize = *size
	strategy, err := domain.NewStrategyConfig(botCfg)
	if err != nil {
		fmt.Printf("❌ Invalid strategy: %v\n", err)
		os.Exit(1)
	}
	bot, err := usecase.NewBotInstance(strategy, session, usecase.ExecutorOptions{
		BotID:    "check_trading",
		Category: cfg.Exchange.Category,
		Timeout:  cfg.Exchange.Timeout,
	}, zap.NewNop())
	if err != nil {
		fmt.Printf("❌ Failed to create bot: %v\n", err)
		os.Exit(1)
	}

	price, err := session.GetCurrentPrice(ctx, cfg.Exchange.Category, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
		os.Exit(1)
	}
	limit := price * (1 - *discount/100)
	fmt.Printf("Market %f, placing Limit Buy %f @ %f...\n", price, *size, limit)

	order, err := bot.PlaceOrder(ctx, domain.SideBuy, domain.OrderTypeLimit, *size, &limit)
	if err != nil {
		fmt.Printf("❌ Failed to place order: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Order Placed: %s\n", order.ID)

	// Retry loop for open order check
	found := false
	for i := 0; i < 5 && !found; i++ {
		time.Sleep(2 * time.Second)
		for _, o := range bot.ListOpenOrders(ctx) {
			if o.OrderID == order.ID {
				fmt.Printf("✅ Open: %s %s qty=%f price=%f status=%s\n", o.Side, o.Type, o.Quantity, o.Price, o.Status)
				found = true
				break
			}
		}
		if !found {
			fmt.Printf("⏳ Waiting for order to show up (attempt %d)...\n", i+1)
		}
	}

	fmt.Println("Cancelling Order...")
	if _, err := bot.CancelOrder(ctx, order.ID); err != nil {
		fmt.Printf("❌ Failed to cancel: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Order Cancelled")
}
