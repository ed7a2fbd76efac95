package usecase_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/usecase"
)

func TestOrderExecutor_Place_Limit(t *testing.T) {
	ex := &MockExchange{}
	sink := &recordingSink{}
	exec := usecase.NewOrderExecutor(ex, "BTCUSDT", usecase.ExecutorOptions{BotID: "b1", Events: sink}, zap.NewNop())

	var log domain.OrderLog
	order, err := exec.Place(context.Background(), &log, domain.SideBuy, domain.OrderTypeLimit, 0.5, ptr(1970.0))
	require.NoError(t, err)

	assert.Equal(t, "order-0", order.ID)
	assert.Equal(t, "b1", order.BotID)
	assert.Equal(t, 1970.0, *order.Price)
	assert.NotEmpty(t, order.LinkID)
	assert.NotEmpty(t, order.Raw)
	assert.Equal(t, 1, log.Len())

	require.Len(t, ex.Placed, 1)
	req := ex.Placed[0]
	assert.Equal(t, domain.CategorySpot, req.Category)
	assert.Equal(t, domain.TimeInForceGTC, req.TimeInForce)
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, []domain.EventType{domain.EventOrderPlaced}, sink.Types())
}

func TestOrderExecutor_Place_MarketDropsPrice(t *testing.T) {
	ex := &MockExchange{}
	exec := usecase.NewOrderExecutor(ex, "ETHUSDT", usecase.ExecutorOptions{}, zap.NewNop())

	order, err := exec.Place(context.Background(), nil, domain.SideSell, domain.OrderTypeMarket, 1, ptr(10.0))
	require.NoError(t, err)
	assert.Nil(t, order.Price)
	require.Len(t, ex.Placed, 1)
	assert.Nil(t, ex.Placed[0].Price)
}

func TestOrderExecutor_Place_Validation(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		side   domain.Side
		typ    domain.OrderType
		qty    float64
		price  *float64
		field  string
	}{
		{"limit without price", "BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, 1, nil, "price"},
		{"limit zero price", "BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, 1, ptr(0.0), "price"},
		{"empty symbol", "", domain.SideBuy, domain.OrderTypeMarket, 1, nil, "symbol"},
		{"zero quantity", "BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, 0, nil, "quantity"},
		{"negative quantity", "BTCUSDT", domain.SideSell, domain.OrderTypeMarket, -1, nil, "quantity"},
		{"bad side", "BTCUSDT", "Hold", domain.OrderTypeMarket, 1, nil, "side"},
		{"bad type", "BTCUSDT", domain.SideBuy, "Stop", 1, nil, "order_type"},
		{"NaN quantity", "BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, math.NaN(), nil, "quantity"},
		{"infinite quantity", "BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, math.Inf(1), nil, "quantity"},
		{"NaN limit price", "BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, 1, ptr(math.NaN()), "price"},
		{"infinite limit price", "BTCUSDT", domain.SideSell, domain.OrderTypeLimit, 1, ptr(math.Inf(1)), "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &MockExchange{}
			sink := &recordingSink{}
			exec := usecase.NewOrderExecutor(ex, tt.symbol, usecase.ExecutorOptions{Events: sink}, zap.NewNop())

			var log domain.OrderLog
			order, err := exec.Place(context.Background(), &log, tt.side, tt.typ, tt.qty, tt.price)
			assert.Nil(t, order)

			var ce *domain.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Empty(t, ex.Placed, "exchange must not be called")
			assert.Empty(t, sink.Types())
			assert.Equal(t, 0, log.Len())
		})
	}
}

func TestOrderExecutor_Place_Failures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"exchange rejection", errors.Join(domain.ErrExchangeAPI, errors.New("insufficient balance")), false},
		{"transport", errors.New("connection reset by peer"), true},
		{"exchange overloaded", errors.New("bybit unavailable: http 503: busy"), true},
		{"rate limited", errors.New("bybit unavailable: http 429: too many visits"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &MockExchange{PlaceErr: func(int, domain.OrderRequest) error { return tt.err }}
			sink := &recordingSink{}
			exec := usecase.NewOrderExecutor(ex, "BTCUSDT", usecase.ExecutorOptions{Events: sink}, zap.NewNop())

			var log domain.OrderLog
			_, err := exec.Place(context.Background(), &log, domain.SideBuy, domain.OrderTypeMarket, 1, nil)

			var oe *domain.OrderError
			require.ErrorAs(t, err, &oe)
			assert.Equal(t, tt.transient, oe.Transient)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 0, log.Len())
			assert.Equal(t, []domain.EventType{domain.EventOrderFailed}, sink.Types())
		})
	}
}

func TestOrderExecutor_Place_Timeout(t *testing.T) {
	ex := &MockExchange{Block: true}
	exec := usecase.NewOrderExecutor(ex, "BTCUSDT", usecase.ExecutorOptions{Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := exec.Place(context.Background(), nil, domain.SideBuy, domain.OrderTypeMarket, 1, nil)

	var oe *domain.OrderError
	require.ErrorAs(t, err, &oe)
	assert.True(t, oe.Transient)
	assert.Equal(t, "timeout", oe.Reason)
	assert.Less(t, time.Since(start), time.Second)
}
