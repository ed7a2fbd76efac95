package domain

import (
	"encoding/json"
	"sync"
	"time"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// CategorySpot is the Bybit immediate-settlement market segment.
const CategorySpot = "spot"

const TimeInForceGTC = "GTC"

// OrderRequest is what gets submitted to the exchange for a single order.
type OrderRequest struct {
	Category    string
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    float64
	Price       *float64 // only for Limit
	TimeInForce string
	LinkID      string // client order id
}

// OrderAck is the exchange confirmation of an accepted request.
type OrderAck struct {
	OrderID string          `json:"order_id"`
	LinkID  string          `json:"link_id"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Order represents an order successfully placed by a bot. Immutable once created.
type Order struct {
	ID        string          `json:"id"` // Exchange Order ID
	LinkID    string          `json:"link_id"`
	BotID     string          `json:"bot_id,omitempty"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Type      OrderType       `json:"type"`
	Quantity  float64         `json:"quantity"`
	Price     *float64        `json:"price,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderLog is the append-only list of orders owned by one bot.
// Insertion order is placement order.
type OrderLog struct {
	mu     sync.RWMutex
	orders []*Order
}

func (l *OrderLog) Append(o *Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = append(l.orders, o)
}

func (l *OrderLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

// Orders returns a copy of the log.
func (l *OrderLog) Orders() []*Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Order, len(l.orders))
	copy(out, l.orders)
	return out
}

// OpenOrder is a resting order as reported by the exchange.
type OpenOrder struct {
	OrderID   string  `json:"order_id"`
	LinkID    string  `json:"link_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Status    string  `json:"status"`
	CreatedAt int64   `json:"created_at"`
}

// Bybit order statuses after which an order no longer fills.
const (
	OrderStatusFilled                  = "Filled"
	OrderStatusCancelled               = "Cancelled"
	OrderStatusRejected                = "Rejected"
	OrderStatusPartiallyFilledCanceled = "PartiallyFilledCanceled"
	OrderStatusDeactivated             = "Deactivated"
)

// OrderFill is the execution state of one order.
type OrderFill struct {
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	FilledQty float64 `json:"filled_qty"`
	AvgPrice  float64 `json:"avg_price"`
}

// Done reports whether the order can fill any further.
func (f OrderFill) Done() bool {
	switch f.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected,
		OrderStatusPartiallyFilledCanceled, OrderStatusDeactivated:
		return true
	}
	return false
}

// Position represents an open position on the exchange.
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}
