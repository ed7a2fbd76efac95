package domain

import (
	"math"
	"time"
)

type BotType string

const (
	BotTypeSimple BotType = "simple"
	BotTypeDCA    BotType = "dca"
)

// Defaults used when a bot is created without explicit strategy parameters.
const (
	DefaultBaseOrderSize   = 0.001
	DefaultSafetyOrderSize = 0.001
	DefaultDCALevels       = 3
	DefaultPriceDeviation  = 1.5 // percent
	DefaultTakeProfit      = 2.0 // percent
	DefaultStopLoss        = 5.0 // percent
	DefaultMaxSafetyOrders = 2
)

// BotTemplate is an entry of the bot catalogue a user picks from.
type BotTemplate struct {
	Name   string  `json:"name"`
	Type   BotType `json:"type"`
	Symbol string  `json:"symbol"`
}

var AvailableBots = []BotTemplate{
	{Name: "Simple Trade Bot", Type: BotTypeSimple, Symbol: "ETHUSDT"},
	{Name: "DCA Bot", Type: BotTypeDCA, Symbol: "BTCUSDT"},
}

func FindTemplate(t BotType) (BotTemplate, bool) {
	for _, tpl := range AvailableBots {
		if tpl.Type == t {
			return tpl, true
		}
	}
	return BotTemplate{}, false
}

// BotConfig is the persisted configuration of one user bot.
// Percent fields are stored as entered (2.0 == 2%).
type BotConfig struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Type            BotType   `json:"type"`
	Symbol          string    `json:"symbol"`
	Enabled         bool      `json:"enabled"`
	TakeProfit      float64   `json:"take_profit"`
	StopLoss        float64   `json:"stop_loss"`
	BaseOrderSize   float64   `json:"base_order_size"`
	SafetyOrderSize float64   `json:"safety_order_size"`
	DCALevels       int       `json:"dca_levels"`
	PriceDeviation  float64   `json:"price_deviation"`
	MaxSafetyOrders int       `json:"max_safety_orders"`
	TrailingTP      bool      `json:"trailing_tp"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewBotConfig returns a bot configuration for the template with default
// strategy parameters.
func NewBotConfig(tpl BotTemplate) BotConfig {
	return BotConfig{
		Name:            tpl.Name,
		Type:            tpl.Type,
		Symbol:          tpl.Symbol,
		TakeProfit:      DefaultTakeProfit,
		StopLoss:        DefaultStopLoss,
		BaseOrderSize:   DefaultBaseOrderSize,
		SafetyOrderSize: DefaultSafetyOrderSize,
		DCALevels:       DefaultDCALevels,
		PriceDeviation:  DefaultPriceDeviation,
		MaxSafetyOrders: DefaultMaxSafetyOrders,
	}
}

// StrategyConfig is the immutable parameter set a bot instance runs with.
// PriceDeviation, TakeProfit and StopLoss are decimal fractions.
type StrategyConfig struct {
	Symbol          string
	BaseOrderSize   float64
	SafetyOrderSize float64
	DCALevels       int
	PriceDeviation  float64
	TakeProfit      float64
	StopLoss        float64
	MaxSafetyOrders int
	TrailingTP      bool
}

// NewStrategyConfig converts a stored bot configuration, dividing percent
// inputs by 100. Zero values are kept as they are; defaults belong to
// NewBotConfig.
func NewStrategyConfig(b BotConfig) (StrategyConfig, error) {
	cfg := StrategyConfig{
		Symbol:          b.Symbol,
		BaseOrderSize:   b.BaseOrderSize,
		SafetyOrderSize: b.SafetyOrderSize,
		DCALevels:       b.DCALevels,
		PriceDeviation:  b.PriceDeviation / 100,
		TakeProfit:      b.TakeProfit / 100,
		StopLoss:        b.StopLoss / 100,
		MaxSafetyOrders: b.MaxSafetyOrders,
		TrailingTP:      b.TrailingTP,
	}
	if err := cfg.Validate(); err != nil {
		return StrategyConfig{}, err
	}
	return cfg, nil
}

// Validate returns the first violated constraint.
func (c StrategyConfig) Validate() error {
	if c.Symbol == "" {
		return &ConfigError{Field: "symbol", Reason: "must not be empty"}
	}
	amounts := []struct {
		field string
		value float64
	}{
		{"base_order_size", c.BaseOrderSize},
		{"safety_order_size", c.SafetyOrderSize},
		{"price_deviation", c.PriceDeviation},
		{"take_profit", c.TakeProfit},
		{"stop_loss", c.StopLoss},
	}
	for _, f := range amounts {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ConfigError{Field: f.field, Reason: "must be a finite number"}
		}
		if f.value < 0 {
			return &ConfigError{Field: f.field, Reason: "must not be negative"}
		}
	}
	if c.DCALevels < 0 {
		return &ConfigError{Field: "dca_levels", Reason: "must not be negative"}
	}
	if c.MaxSafetyOrders < 0 {
		return &ConfigError{Field: "max_safety_orders", Reason: "must not be negative"}
	}
	return nil
}
