package usecase

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/metrics"
)

// BotInstance binds one strategy configuration to a shared exchange session.
// It exclusively owns its order log and tracked entry price; mutating
// operations are serialised by mu.
//
// The entry price only moves on executions the exchange reports. Accepted
// ladder orders wait in pending until SyncFills sees them fill.
type BotInstance struct {
	id       string
	config   domain.StrategyConfig
	exchange domain.ExchangeClient
	opts     ExecutorOptions
	logger   *zap.Logger

	executor *OrderExecutor
	dca      *DCAStrategy
	exit     *ExitMonitor
	orders   domain.OrderLog

	mu         sync.Mutex
	entryPrice float64
	entrySize  float64
	pending    []*pendingFill

	// tracking mirrors entryPrice > 0 || len(pending) > 0 for readers that
	// must not wait on mu.
	tracking atomic.Bool
}

// pendingFill is an accepted ladder order and the part of it already folded
// into the entry.
type pendingFill struct {
	orderID  string
	qty      float64
	notional float64
}

func NewBotInstance(config domain.StrategyConfig, exchange domain.ExchangeClient, opts ExecutorOptions, logger *zap.Logger) (*BotInstance, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger = logger.With(zap.String("bot_id", opts.BotID), zap.String("symbol", config.Symbol))

	executor := NewOrderExecutor(exchange, config.Symbol, opts, logger)
	return &BotInstance{
		id:       opts.BotID,
		config:   config,
		exchange: exchange,
		opts:     opts,
		logger:   logger,
		executor: executor,
		dca:      NewDCAStrategy(executor, config, logger),
		exit:     NewExitMonitor(executor, config, logger),
	}, nil
}

func (b *BotInstance) ID() string                    { return b.id }
func (b *BotInstance) Symbol() string                { return b.config.Symbol }
func (b *BotInstance) Config() domain.StrategyConfig { return b.config }

func (b *BotInstance) PlaceOrder(ctx context.Context, side domain.Side, typ domain.OrderType, qty float64, price *float64) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executor.Place(ctx, &b.orders, side, typ, qty, price)
}

// RunDCALadder runs one ladder. Accepted levels are queued for fill tracking;
// the entry price moves once they execute.
func (b *BotInstance) RunDCALadder(ctx context.Context, initialPrice float64) (*LadderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, err := b.dca.ExecuteLadder(ctx, &b.orders, initialPrice)
	if result == nil {
		return nil, err
	}

	for _, l := range result.Levels {
		if l.Status == LevelFilled && l.Order != nil {
			b.pending = append(b.pending, &pendingFill{orderID: l.Order.ID})
		}
	}
	b.updateTracking()

	b.publish(domain.EventLadderExecuted, result)
	if lerr := result.Err(); lerr != nil {
		b.logger.Warn("DCA ladder finished with failures",
			zap.Int("attempted", result.Attempted),
			zap.Int("filled", result.Filled),
			zap.Error(lerr))
	}
	return result, err
}

// SyncFills asks the exchange for the executions of pending ladder orders
// and folds new fills into the entry price. Orders that can no longer fill
// are dropped. A failed read keeps the order pending.
func (b *BotInstance) SyncFills(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncFillsLocked(ctx)
}

func (b *BotInstance) syncFillsLocked(ctx context.Context) {
	if len(b.pending) == 0 {
		return
	}

	kept := b.pending[:0]
	for _, p := range b.pending {
		fill, err := b.orderFill(ctx, p.orderID)
		if err != nil {
			b.readFailed("order_fill", err)
			kept = append(kept, p)
			continue
		}

		notional := fill.AvgPrice * fill.FilledQty
		if dq := fill.FilledQty - p.qty; dq > 0 {
			total := b.entrySize + dq
			b.entryPrice = (b.entryPrice*b.entrySize + notional - p.notional) / total
			b.entrySize = total
			p.qty, p.notional = fill.FilledQty, notional
			b.logger.Info("Ladder order filled",
				zap.String("order_id", p.orderID),
				zap.String("status", fill.Status),
				zap.Float64("filled_qty", fill.FilledQty),
				zap.Float64("avg_price", fill.AvgPrice),
				zap.Float64("entry_price", b.entryPrice))
		}
		if !fill.Done() {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(b.pending); i++ {
		b.pending[i] = nil
	}
	b.pending = kept
	b.updateTracking()
}

func (b *BotInstance) orderFill(ctx context.Context, orderID string) (*domain.OrderFill, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	return b.exchange.GetOrderFill(callCtx, b.opts.Category, b.config.Symbol, orderID)
}

// Tracking reports whether the bot has an entry price or ladder orders that
// may still fill. It does not wait for a running ladder or exit check.
func (b *BotInstance) Tracking() bool {
	return b.tracking.Load()
}

func (b *BotInstance) updateTracking() {
	b.tracking.Store(b.entryPrice > 0 || len(b.pending) > 0)
}

// CheckExit evaluates a single price sample against an explicit entry price.
func (b *BotInstance) CheckExit(ctx context.Context, entryPrice, currentPrice float64) (*ExitAction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkExitLocked(ctx, entryPrice, currentPrice)
}

// CheckTrackedExit syncs pending fills and evaluates against the tracked
// entry price. It returns NoTrigger while nothing has been filled.
func (b *BotInstance) CheckTrackedExit(ctx context.Context, currentPrice float64) (*ExitAction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncFillsLocked(ctx)
	if b.entryPrice <= 0 {
		return &ExitAction{Kind: NoTrigger}, nil
	}
	return b.checkExitLocked(ctx, b.entryPrice, currentPrice)
}

func (b *BotInstance) checkExitLocked(ctx context.Context, entryPrice, currentPrice float64) (*ExitAction, error) {
	action, err := b.exit.Evaluate(ctx, &b.orders, entryPrice, currentPrice)
	if !action.Triggered() {
		return action, err
	}
	if err == nil {
		b.entryPrice = 0
		b.entrySize = 0
		b.updateTracking()
	}
	b.publish(domain.EventExitTriggered, action)
	return action, err
}

func (b *BotInstance) EntryPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entryPrice
}

// SetEntryPrice replaces the tracked entry, weighted as one base order.
func (b *BotInstance) SetEntryPrice(price float64) error {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return &domain.ConfigError{Field: "entry_price", Reason: "must be zero or a positive finite number"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entryPrice = price
	b.entrySize = 0
	if price > 0 {
		b.entrySize = b.config.BaseOrderSize
	}
	b.updateTracking()
	return nil
}

// Orders returns the orders placed by this instance in placement order.
func (b *BotInstance) Orders() []*domain.Order {
	return b.orders.Orders()
}

func (b *BotInstance) CancelOrder(ctx context.Context, orderID string) (*domain.OrderAck, error) {
	if orderID == "" {
		return nil, &domain.ConfigError{Field: "order_id", Reason: "must not be empty"}
	}
	callCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	ack, err := b.exchange.CancelOrder(callCtx, b.opts.Category, b.config.Symbol, orderID)
	if err != nil {
		oerr := toOrderError("cancel_order", err)
		b.logger.Error("Cancel order failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, oerr
	}
	b.logger.Info("Order cancelled", zap.String("order_id", orderID))
	return ack, nil
}

// ListOpenOrders never fails; a read error is logged and yields an empty list.
func (b *BotInstance) ListOpenOrders(ctx context.Context) []domain.OpenOrder {
	callCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	orders, err := b.exchange.GetOpenOrders(callCtx, b.opts.Category, b.config.Symbol)
	if err != nil {
		b.readFailed("open_orders", err)
		return []domain.OpenOrder{}
	}
	if orders == nil {
		orders = []domain.OpenOrder{}
	}
	return orders
}

// ListOpenPositions never fails; a read error is logged and yields an empty list.
func (b *BotInstance) ListOpenPositions(ctx context.Context) []domain.Position {
	callCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	positions, err := b.exchange.GetOpenPositions(callCtx, b.opts.Category, b.config.Symbol)
	if err != nil {
		b.readFailed("open_positions", err)
		return []domain.Position{}
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	return positions
}

func (b *BotInstance) ListSymbols(ctx context.Context) []string {
	return listSymbols(ctx, b.exchange, b.opts.Category, b.opts.Timeout, b.logger)
}

func (b *BotInstance) readFailed(op string, err error) {
	rerr := &domain.ReadError{Op: op, Err: err}
	metrics.ReadFailures.WithLabelValues(op).Inc()
	b.logger.Warn("Exchange read failed, returning empty result", zap.Error(rerr))
}

func (b *BotInstance) publish(t domain.EventType, payload interface{}) {
	b.opts.Events.Publish(domain.Event{
		Type:    t,
		UserID:  b.opts.UserID,
		BotID:   b.id,
		Symbol:  b.config.Symbol,
		Payload: payload,
		Time:    time.Now(),
	})
}

func listSymbols(ctx context.Context, exchange domain.ExchangeClient, category string, timeout time.Duration, logger *zap.Logger) []string {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	instruments, err := exchange.GetInstruments(callCtx, category)
	if err != nil {
		metrics.ReadFailures.WithLabelValues("symbols").Inc()
		logger.Warn("Exchange read failed, returning empty result",
			zap.Error(&domain.ReadError{Op: "symbols", Err: err}))
		return []string{}
	}
	symbols := make([]string, 0, len(instruments))
	for _, in := range instruments {
		symbols = append(symbols, in.Symbol)
	}
	return symbols
}
