package usecase_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/usecase"
)

func newInstance(t *testing.T, ex *MockExchange, cfg domain.StrategyConfig, sink domain.EventSink) *usecase.BotInstance {
	t.Helper()
	inst, err := usecase.NewBotInstance(cfg, ex, usecase.ExecutorOptions{BotID: "bot-" + cfg.Symbol, Events: sink}, zap.NewNop())
	require.NoError(t, err)
	return inst
}

func TestNewBotInstance_RejectsInvalidConfig(t *testing.T) {
	cfg := strategy("")
	_, err := usecase.NewBotInstance(cfg, &MockExchange{}, usecase.ExecutorOptions{}, zap.NewNop())
	assert.True(t, domain.IsConfigError(err))
}

func TestBotInstance_LadderThenTakeProfit(t *testing.T) {
	ex := &MockExchange{}
	sink := &recordingSink{}
	inst := newInstance(t, ex, strategy("ETHUSDT"), sink)
	ctx := context.Background()

	result, err := inst.RunDCALadder(ctx, 2000)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Filled)
	assert.Zero(t, inst.EntryPrice(), "resting orders are not an entry")
	assert.True(t, inst.Tracking())

	// nothing executed yet, so no exit even at the ladder's start price
	action, err := inst.CheckTrackedExit(ctx, 2000)
	require.NoError(t, err)
	assert.Equal(t, usecase.NoTrigger, action.Kind)
	assert.Len(t, ex.PlacedOrders(), 2)

	ex.FillPlaced()
	action, err = inst.CheckTrackedExit(ctx, 1960)
	require.NoError(t, err)
	assert.Equal(t, usecase.NoTrigger, action.Kind)
	assert.InDelta(t, 1955.0, inst.EntryPrice(), 1e-9)

	action, err = inst.CheckTrackedExit(ctx, 1955*1.03)
	require.NoError(t, err)
	assert.Equal(t, usecase.TakeProfit, action.Kind)
	assert.Zero(t, inst.EntryPrice())
	assert.False(t, inst.Tracking())

	orders := inst.Orders()
	require.Len(t, orders, 3)
	assert.Equal(t, domain.SideBuy, orders[0].Side)
	assert.Equal(t, domain.SideBuy, orders[1].Side)
	assert.Equal(t, domain.SideSell, orders[2].Side)

	assert.Contains(t, sink.Types(), domain.EventLadderExecuted)
	assert.Contains(t, sink.Types(), domain.EventExitTriggered)

	// exit cleared the entry, nothing left to evaluate
	action, err = inst.CheckTrackedExit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, usecase.NoTrigger, action.Kind)
}

func TestBotInstance_PartialFillsMoveEntry(t *testing.T) {
	ex := &MockExchange{}
	inst := newInstance(t, ex, strategy("ETHUSDT"), nil)
	ctx := context.Background()

	_, err := inst.RunDCALadder(ctx, 2000)
	require.NoError(t, err)

	ex.SetFill("order-0", "PartiallyFilled", 0.0005, 1970)
	inst.SyncFills(ctx)
	assert.InDelta(t, 1970.0, inst.EntryPrice(), 1e-9)

	ex.SetFill("order-0", domain.OrderStatusFilled, 0.001, 1970)
	ex.SetFill("order-1", domain.OrderStatusPartiallyFilledCanceled, 0.0005, 1940)
	inst.SyncFills(ctx)
	// 0.001 @ 1970 + 0.0005 @ 1940
	assert.InDelta(t, 1960.0, inst.EntryPrice(), 1e-9)

	// both orders are final, later reports are ignored
	ex.SetFill("order-1", domain.OrderStatusFilled, 0.001, 1000)
	inst.SyncFills(ctx)
	assert.InDelta(t, 1960.0, inst.EntryPrice(), 1e-9)
}

func TestBotInstance_UnfilledCancelledLadderStopsTracking(t *testing.T) {
	ex := &MockExchange{}
	inst := newInstance(t, ex, strategy("ETHUSDT"), nil)
	ctx := context.Background()

	_, err := inst.RunDCALadder(ctx, 2000)
	require.NoError(t, err)
	require.True(t, inst.Tracking())

	ex.SetFill("order-0", domain.OrderStatusCancelled, 0, 0)
	ex.SetFill("order-1", domain.OrderStatusRejected, 0, 0)
	inst.SyncFills(ctx)
	assert.False(t, inst.Tracking())
	assert.Zero(t, inst.EntryPrice())
}

func TestBotInstance_FillReadErrorKeepsPending(t *testing.T) {
	ex := &MockExchange{FillErr: errors.New("timeout")}
	inst := newInstance(t, ex, strategy("ETHUSDT"), nil)
	ctx := context.Background()

	_, err := inst.RunDCALadder(ctx, 2000)
	require.NoError(t, err)

	action, err := inst.CheckTrackedExit(ctx, 2000)
	require.NoError(t, err)
	assert.Equal(t, usecase.NoTrigger, action.Kind)
	assert.True(t, inst.Tracking())

	ex.mu.Lock()
	ex.FillErr = nil
	ex.mu.Unlock()
	ex.FillPlaced()
	inst.SyncFills(ctx)
	assert.InDelta(t, 1955.0, inst.EntryPrice(), 1e-9)
}

func TestBotInstance_FailedExitKeepsEntry(t *testing.T) {
	ex := &MockExchange{}
	inst := newInstance(t, ex, strategy("BTCUSDT"), nil)
	require.NoError(t, inst.SetEntryPrice(100))

	ex.PlaceErr = func(int, domain.OrderRequest) error { return errors.New("broken pipe") }
	action, err := inst.CheckTrackedExit(context.Background(), 90)
	require.Error(t, err)
	assert.Equal(t, usecase.StopLoss, action.Kind)
	assert.Equal(t, 100.0, inst.EntryPrice())
}

func TestBotInstance_SetEntryPriceRejectsNegative(t *testing.T) {
	inst := newInstance(t, &MockExchange{}, strategy("BTCUSDT"), nil)
	assert.True(t, domain.IsConfigError(inst.SetEntryPrice(-1)))
	assert.True(t, domain.IsConfigError(inst.SetEntryPrice(math.NaN())))
	assert.True(t, domain.IsConfigError(inst.SetEntryPrice(math.Inf(1))))
	assert.False(t, inst.Tracking())
}

func TestBotInstance_ReadFailuresDegradeToEmpty(t *testing.T) {
	failing := &MockExchange{
		OpenOrdersErr:  errors.New("timeout"),
		PositionsErr:   errors.New("timeout"),
		InstrumentsErr: errors.New("timeout"),
	}
	healthy := &MockExchange{
		OpenOrders: []domain.OpenOrder{{OrderID: "1"}, {OrderID: "2"}},
		Positions:  []domain.Position{{Symbol: "ETHUSDT", Size: 1}},
	}
	broken := newInstance(t, failing, strategy("BTCUSDT"), nil)
	sibling := newInstance(t, healthy, strategy("ETHUSDT"), nil)
	ctx := context.Background()

	orders := broken.ListOpenOrders(ctx)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	positions := broken.ListOpenPositions(ctx)
	assert.NotNil(t, positions)
	assert.Empty(t, positions)

	symbols := broken.ListSymbols(ctx)
	assert.NotNil(t, symbols)
	assert.Empty(t, symbols)

	assert.Len(t, sibling.ListOpenOrders(ctx), 2)
	assert.Len(t, sibling.ListOpenPositions(ctx), 1)
}

func TestBotInstance_ListSymbols(t *testing.T) {
	ex := &MockExchange{Instruments: []domain.Instrument{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}}}
	inst := newInstance(t, ex, strategy("BTCUSDT"), nil)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, inst.ListSymbols(context.Background()))
}

func TestBotInstance_CancelOrder(t *testing.T) {
	ex := &MockExchange{}
	inst := newInstance(t, ex, strategy("BTCUSDT"), nil)
	ctx := context.Background()

	_, err := inst.CancelOrder(ctx, "")
	assert.True(t, domain.IsConfigError(err))

	ack, err := inst.CancelOrder(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", ack.OrderID)
	assert.Equal(t, []string{"abc"}, ex.Cancelled)

	ex.CancelErr = errors.Join(domain.ErrExchangeAPI, errors.New("order not exists"))
	_, err = inst.CancelOrder(ctx, "abc")
	var oe *domain.OrderError
	require.ErrorAs(t, err, &oe)
	assert.False(t, oe.Transient)
}

func TestBotInstance_PlaceOrderAppendsToLog(t *testing.T) {
	inst := newInstance(t, &MockExchange{}, strategy("BTCUSDT"), nil)

	_, err := inst.PlaceOrder(context.Background(), domain.SideBuy, domain.OrderTypeLimit, 0.1, nil)
	assert.True(t, domain.IsConfigError(err))

	_, err = inst.PlaceOrder(context.Background(), domain.SideBuy, domain.OrderTypeLimit, 0.1, ptr(100.0))
	require.NoError(t, err)
	assert.Len(t, inst.Orders(), 1)
}
