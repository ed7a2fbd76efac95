package domain

import (
	"context"
	"time"
)

// ExchangeClient defines the interface for interacting with a crypto exchange.
// Implementations hold an authenticated, long-lived session.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	GetOpenOrders(ctx context.Context, category, symbol string) ([]OpenOrder, error)
	GetOpenPositions(ctx context.Context, category, symbol string) ([]Position, error)
	CancelOrder(ctx context.Context, category, symbol, orderID string) (*OrderAck, error)
	GetOrderFill(ctx context.Context, category, symbol, orderID string) (*OrderFill, error)
	GetInstruments(ctx context.Context, category string) ([]Instrument, error)
}

// PriceSource returns the last traded price for a symbol.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, category, symbol string) (float64, error)
}

// BotStore defines storage operations for per-user bot configurations.
// UpdateBots runs fn as a single transaction, serialised per user.
type BotStore interface {
	LoadBots(ctx context.Context, userID string) ([]BotConfig, error)
	SaveBots(ctx context.Context, userID string, bots []BotConfig) error
	UpdateBots(ctx context.Context, userID string, fn func(bots []BotConfig) ([]BotConfig, error)) error
	ListUsers(ctx context.Context) ([]string, error)
}

// OrderJournal lists orders recorded for a bot, newest first.
// A non-positive limit returns the default page.
type OrderJournal interface {
	ListOrders(ctx context.Context, botID string, limit int) ([]*Order, error)
}

type EventType string

const (
	EventOrderPlaced    EventType = "order_placed"
	EventOrderFailed    EventType = "order_failed"
	EventLadderExecuted EventType = "ladder_executed"
	EventExitTriggered  EventType = "exit_triggered"
	EventBotsChanged    EventType = "bots_changed"
)

// Event is a best-effort "state changed" notification.
type Event struct {
	Type    EventType   `json:"type"`
	UserID  string      `json:"user_id,omitempty"`
	BotID   string      `json:"bot_id,omitempty"`
	Symbol  string      `json:"symbol,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

// EventSink receives events. Publish must not block.
type EventSink interface {
	Publish(evt Event)
}

type NopSink struct{}

func (NopSink) Publish(Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(evt Event) {
	for _, s := range m {
		s.Publish(evt)
	}
}
