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

func newMonitor(ex *MockExchange, cfg domain.StrategyConfig) *usecase.ExitMonitor {
	exec := usecase.NewOrderExecutor(ex, cfg.Symbol, usecase.ExecutorOptions{}, zap.NewNop())
	return usecase.NewExitMonitor(exec, cfg, zap.NewNop())
}

func TestExitMonitor_TakeProfit(t *testing.T) {
	ex := &MockExchange{}
	var log domain.OrderLog

	action, err := newMonitor(ex, strategy("BTCUSDT")).Evaluate(context.Background(), &log, 100, 103)
	require.NoError(t, err)

	assert.Equal(t, usecase.TakeProfit, action.Kind)
	assert.InDelta(t, 102.0, action.TPPrice, 1e-9)
	assert.InDelta(t, 95.0, action.SLPrice, 1e-9)
	require.NotNil(t, action.Order)

	placed := ex.PlacedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, domain.SideSell, placed[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, placed[0].Type)
	assert.Equal(t, 0.001, placed[0].Quantity)
	assert.Nil(t, placed[0].Price)
	assert.Equal(t, 1, log.Len())
}

func TestExitMonitor_Boundaries(t *testing.T) {
	cfg := strategy("BTCUSDT")
	entries := []float64{100, 0.37, 2000, 64123.5}

	for _, entry := range entries {
		m := newMonitor(&MockExchange{}, cfg)
		tp, sl, err := m.Thresholds(entry)
		require.NoError(t, err)

		tests := []struct {
			name    string
			current float64
			want    usecase.ExitKind
		}{
			{"at tp", tp, usecase.TakeProfit},
			{"above tp", tp * 1.01, usecase.TakeProfit},
			{"at sl", sl, usecase.StopLoss},
			{"below sl", sl * 0.99, usecase.StopLoss},
			{"between", (tp + sl) / 2, usecase.NoTrigger},
			{"at entry", entry, usecase.NoTrigger},
		}
		for _, tt := range tests {
			ex := &MockExchange{}
			action, err := newMonitor(ex, cfg).Evaluate(context.Background(), nil, entry, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, action.Kind, "entry=%v %s", entry, tt.name)
			if tt.want == usecase.NoTrigger {
				assert.Empty(t, ex.PlacedOrders())
				assert.Nil(t, action.Order)
			} else {
				assert.Len(t, ex.PlacedOrders(), 1)
			}
		}
	}
}

func TestExitMonitor_TakeProfitWinsTie(t *testing.T) {
	cfg := strategy("BTCUSDT")
	cfg.TakeProfit = 0
	cfg.StopLoss = 0

	action, err := newMonitor(&MockExchange{}, cfg).Evaluate(context.Background(), nil, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, usecase.TakeProfit, action.Kind)
}

func TestExitMonitor_InvalidPrices(t *testing.T) {
	ex := &MockExchange{}
	m := newMonitor(ex, strategy("BTCUSDT"))

	_, _, err := m.Thresholds(0)
	assert.True(t, domain.IsConfigError(err))

	_, err = m.Evaluate(context.Background(), nil, -1, 100)
	assert.True(t, domain.IsConfigError(err))

	_, err = m.Evaluate(context.Background(), nil, 100, 0)
	assert.True(t, domain.IsConfigError(err))

	_, _, err = m.Thresholds(math.Inf(1))
	assert.True(t, domain.IsConfigError(err))

	_, err = m.Evaluate(context.Background(), nil, 100, math.NaN())
	assert.True(t, domain.IsConfigError(err))

	_, err = m.Evaluate(context.Background(), nil, math.NaN(), 100)
	assert.True(t, domain.IsConfigError(err))

	assert.Empty(t, ex.PlacedOrders())
}

func TestExitMonitor_SellFailureSurfaces(t *testing.T) {
	ex := &MockExchange{PlaceErr: func(int, domain.OrderRequest) error {
		return errors.Join(domain.ErrExchangeAPI, errors.New("order rejected"))
	}}

	action, err := newMonitor(ex, strategy("BTCUSDT")).Evaluate(context.Background(), nil, 100, 90)
	require.Error(t, err)
	assert.True(t, domain.IsOrderError(err))
	require.NotNil(t, action)
	assert.Equal(t, usecase.StopLoss, action.Kind)
	assert.Nil(t, action.Order)
}
