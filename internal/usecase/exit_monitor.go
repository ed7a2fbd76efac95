package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/metrics"
)

type ExitKind string

const (
	NoTrigger  ExitKind = "none"
	TakeProfit ExitKind = "take_profit"
	StopLoss   ExitKind = "stop_loss"
)

type ExitAction struct {
	Kind    ExitKind      `json:"kind"`
	TPPrice float64       `json:"tp_price"`
	SLPrice float64       `json:"sl_price"`
	Order   *domain.Order `json:"order,omitempty"`
}

func (a *ExitAction) Triggered() bool {
	return a != nil && a.Kind != NoTrigger
}

// ExitMonitor evaluates take-profit and stop-loss against one price sample.
// It keeps no state between calls.
type ExitMonitor struct {
	executor *OrderExecutor
	config   domain.StrategyConfig
	logger   *zap.Logger
}

func NewExitMonitor(executor *OrderExecutor, config domain.StrategyConfig, logger *zap.Logger) *ExitMonitor {
	return &ExitMonitor{
		executor: executor,
		config:   config,
		logger:   logger,
	}
}

func (m *ExitMonitor) Thresholds(entryPrice float64) (tp, sl float64, err error) {
	if !positiveFinite(entryPrice) {
		return 0, 0, &domain.ConfigError{Field: "entry_price", Reason: "must be positive and finite"}
	}
	return entryPrice * (1 + m.config.TakeProfit), entryPrice * (1 - m.config.StopLoss), nil
}

// Evaluate issues a Market Sell of the base order size when currentPrice
// reaches either threshold. Both boundaries are inclusive and take-profit is
// checked first. A failed sell returns the triggered action together with
// the *domain.OrderError.
func (m *ExitMonitor) Evaluate(ctx context.Context, log *domain.OrderLog, entryPrice, currentPrice float64) (*ExitAction, error) {
	tp, sl, err := m.Thresholds(entryPrice)
	if err != nil {
		return nil, err
	}
	if !positiveFinite(currentPrice) {
		return nil, &domain.ConfigError{Field: "current_price", Reason: "must be positive and finite"}
	}

	action := &ExitAction{Kind: NoTrigger, TPPrice: tp, SLPrice: sl}
	switch {
	case currentPrice >= tp:
		action.Kind = TakeProfit
	case currentPrice <= sl:
		action.Kind = StopLoss
	default:
		return action, nil
	}

	m.logger.Info("Exit triggered",
		zap.String("symbol", m.config.Symbol),
		zap.String("kind", string(action.Kind)),
		zap.Float64("entry", entryPrice),
		zap.Float64("price", currentPrice),
		zap.Float64("tp", tp),
		zap.Float64("sl", sl))
	metrics.ExitTriggers.WithLabelValues(m.config.Symbol, string(action.Kind)).Inc()

	order, err := m.executor.Place(ctx, log, domain.SideSell, domain.OrderTypeMarket, m.config.BaseOrderSize, nil)
	if err != nil {
		return action, err
	}
	action.Order = order
	return action, nil
}
