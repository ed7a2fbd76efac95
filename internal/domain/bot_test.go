package domain_test

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/dca_bot/internal/domain"
)

func TestNewStrategyConfig_ConvertsPercents(t *testing.T) {
	tpl, ok := domain.FindTemplate(domain.BotTypeDCA)
	require.True(t, ok)

	cfg, err := domain.NewStrategyConfig(domain.NewBotConfig(tpl))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.InDelta(t, 0.015, cfg.PriceDeviation, 1e-12)
	assert.InDelta(t, 0.02, cfg.TakeProfit, 1e-12)
	assert.InDelta(t, 0.05, cfg.StopLoss, 1e-12)
	assert.Equal(t, 0.001, cfg.BaseOrderSize)
	assert.Equal(t, 0.001, cfg.SafetyOrderSize)
	assert.Equal(t, 3, cfg.DCALevels)
	assert.Equal(t, 2, cfg.MaxSafetyOrders)
	assert.False(t, cfg.TrailingTP)
}

func TestNewStrategyConfig_KeepsZeroValues(t *testing.T) {
	cfg, err := domain.NewStrategyConfig(domain.BotConfig{Symbol: "ETHUSDT", TakeProfit: 3})
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.DCALevels)
	assert.Equal(t, 0, cfg.MaxSafetyOrders)
	assert.Zero(t, cfg.BaseOrderSize)
	assert.Zero(t, cfg.StopLoss)
	assert.InDelta(t, 0.03, cfg.TakeProfit, 1e-12)
}

func TestStrategyConfig_Validate(t *testing.T) {
	base := domain.StrategyConfig{Symbol: "BTCUSDT"}
	tests := []struct {
		name  string
		mod   func(*domain.StrategyConfig)
		field string
	}{
		{"zero values are valid", func(*domain.StrategyConfig) {}, ""},
		{"empty symbol", func(c *domain.StrategyConfig) { c.Symbol = "" }, "symbol"},
		{"negative base", func(c *domain.StrategyConfig) { c.BaseOrderSize = -1 }, "base_order_size"},
		{"negative safety", func(c *domain.StrategyConfig) { c.SafetyOrderSize = -1 }, "safety_order_size"},
		{"negative levels", func(c *domain.StrategyConfig) { c.DCALevels = -1 }, "dca_levels"},
		{"negative deviation", func(c *domain.StrategyConfig) { c.PriceDeviation = -0.1 }, "price_deviation"},
		{"negative tp", func(c *domain.StrategyConfig) { c.TakeProfit = -0.1 }, "take_profit"},
		{"negative sl", func(c *domain.StrategyConfig) { c.StopLoss = -0.1 }, "stop_loss"},
		{"negative cap", func(c *domain.StrategyConfig) { c.MaxSafetyOrders = -1 }, "max_safety_orders"},
		{"NaN base", func(c *domain.StrategyConfig) { c.BaseOrderSize = math.NaN() }, "base_order_size"},
		{"infinite tp", func(c *domain.StrategyConfig) { c.TakeProfit = math.Inf(1) }, "take_profit"},
		{"NaN sl", func(c *domain.StrategyConfig) { c.StopLoss = math.NaN() }, "stop_loss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mod(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *domain.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestFindTemplate_Unknown(t *testing.T) {
	_, ok := domain.FindTemplate("grid")
	assert.False(t, ok)
}

func TestOrderLog_ConcurrentAppend(t *testing.T) {
	var log domain.OrderLog
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.Append(&domain.Order{ID: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, log.Len())
	orders := log.Orders()
	orders[0] = nil
	assert.NotNil(t, log.Orders()[0], "Orders returns a copy")
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("ladder: %w", &domain.OrderError{Op: "place_order", Reason: "timeout", Transient: true})
	assert.True(t, domain.IsOrderError(wrapped))
	assert.False(t, domain.IsConfigError(wrapped))
	assert.Contains(t, wrapped.Error(), "place_order: timeout")

	re := &domain.ReadError{Op: "open_orders", Err: domain.ErrExchangeAPI}
	assert.True(t, domain.IsReadError(re))
	assert.ErrorIs(t, re, domain.ErrExchangeAPI)

	assert.Equal(t, "config error: price: required", (&domain.ConfigError{Field: "price", Reason: "required"}).Error())
}

func TestOrderFill_Done(t *testing.T) {
	for status, done := range map[string]bool{
		"New":                                     false,
		"PartiallyFilled":                         false,
		"Untriggered":                             false,
		domain.OrderStatusFilled:                  true,
		domain.OrderStatusCancelled:               true,
		domain.OrderStatusRejected:                true,
		domain.OrderStatusPartiallyFilledCanceled: true,
		domain.OrderStatusDeactivated:             true,
	} {
		assert.Equal(t, done, domain.OrderFill{Status: status}.Done(), status)
	}
}
