package usecase

import (
	"context"
	"errors"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/metrics"
)

const DefaultCallTimeout = 10 * time.Second

// ExecutorOptions carries the per-bot settings shared by the engine components.
type ExecutorOptions struct {
	BotID    string
	UserID   string
	Category string
	Timeout  time.Duration
	Events   domain.EventSink
}

func (o ExecutorOptions) withDefaults() ExecutorOptions {
	if o.Category == "" {
		o.Category = domain.CategorySpot
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultCallTimeout
	}
	if o.Events == nil {
		o.Events = domain.NopSink{}
	}
	return o
}

// OrderExecutor validates and submits single orders for one symbol.
// It makes exactly one attempt per call.
type OrderExecutor struct {
	exchange  domain.ExchangeClient
	symbol    string
	opts      ExecutorOptions
	logger    *zap.Logger
	newLinkID func() string
	now       func() time.Time
}

func NewOrderExecutor(exchange domain.ExchangeClient, symbol string, opts ExecutorOptions, logger *zap.Logger) *OrderExecutor {
	return &OrderExecutor{
		exchange:  exchange,
		symbol:    symbol,
		opts:      opts.withDefaults(),
		logger:    logger,
		newLinkID: uuid.NewString,
		now:       time.Now,
	}
}

// Place submits one order and appends it to log on success.
// Precondition violations return *domain.ConfigError before the exchange is
// contacted; exchange and transport failures return *domain.OrderError.
func (e *OrderExecutor) Place(ctx context.Context, log *domain.OrderLog, side domain.Side, typ domain.OrderType, qty float64, price *float64) (*domain.Order, error) {
	if err := e.validate(side, typ, qty, price); err != nil {
		return nil, err
	}
	if typ == domain.OrderTypeMarket {
		price = nil
	}

	req := domain.OrderRequest{
		Category:    e.opts.Category,
		Symbol:      e.symbol,
		Side:        side,
		Type:        typ,
		Quantity:    qty,
		Price:       price,
		TimeInForce: domain.TimeInForceGTC,
		LinkID:      e.newLinkID(),
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	ack, err := e.exchange.PlaceOrder(callCtx, req)
	if err != nil {
		oerr := toOrderError("place_order", err)
		metrics.OrdersFailed.WithLabelValues(e.symbol, strconv.FormatBool(oerr.Transient)).Inc()
		e.logger.Error("Order placement failed",
			zap.String("bot_id", e.opts.BotID),
			zap.String("symbol", e.symbol),
			zap.String("side", string(side)),
			zap.String("type", string(typ)),
			zap.Float64("qty", qty),
			zap.Bool("transient", oerr.Transient),
			zap.Error(err))
		e.publish(domain.EventOrderFailed, map[string]interface{}{
			"side":      side,
			"type":      typ,
			"quantity":  qty,
			"price":     price,
			"error":     oerr.Reason,
			"transient": oerr.Transient,
		})
		return nil, oerr
	}

	order := &domain.Order{
		ID:        ack.OrderID,
		LinkID:    req.LinkID,
		BotID:     e.opts.BotID,
		Symbol:    e.symbol,
		Side:      side,
		Type:      typ,
		Quantity:  qty,
		Price:     price,
		Raw:       ack.Raw,
		CreatedAt: e.now(),
	}
	if ack.LinkID != "" {
		order.LinkID = ack.LinkID
	}
	if log != nil {
		log.Append(order)
	}

	metrics.OrdersPlaced.WithLabelValues(e.symbol, string(side), string(typ)).Inc()
	e.logger.Info("Order placed",
		zap.String("bot_id", e.opts.BotID),
		zap.String("symbol", e.symbol),
		zap.String("order_id", order.ID),
		zap.String("side", string(side)),
		zap.String("type", string(typ)),
		zap.Float64("qty", qty))
	e.publish(domain.EventOrderPlaced, order)
	return order, nil
}

func (e *OrderExecutor) validate(side domain.Side, typ domain.OrderType, qty float64, price *float64) error {
	if e.symbol == "" {
		return &domain.ConfigError{Field: "symbol", Reason: "must not be empty"}
	}
	if !side.Valid() {
		return &domain.ConfigError{Field: "side", Reason: "must be Buy or Sell, got " + strconv.Quote(string(side))}
	}
	if !typ.Valid() {
		return &domain.ConfigError{Field: "order_type", Reason: "must be Market or Limit, got " + strconv.Quote(string(typ))}
	}
	if !positiveFinite(qty) {
		return &domain.ConfigError{Field: "quantity", Reason: "must be positive and finite"}
	}
	if typ == domain.OrderTypeLimit {
		if price == nil {
			return &domain.ConfigError{Field: "price", Reason: "required for limit orders"}
		}
		if !positiveFinite(*price) {
			return &domain.ConfigError{Field: "price", Reason: "must be positive and finite"}
		}
	}
	return nil
}

// positiveFinite is false for NaN and both infinities.
func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func (e *OrderExecutor) publish(t domain.EventType, payload interface{}) {
	e.opts.Events.Publish(domain.Event{
		Type:    t,
		UserID:  e.opts.UserID,
		BotID:   e.opts.BotID,
		Symbol:  e.symbol,
		Payload: payload,
		Time:    e.now(),
	})
}

// toOrderError converts an exchange call failure. Rejections reported by the
// exchange are permanent; everything else never got an answer and is transient.
func toOrderError(op string, err error) *domain.OrderError {
	var ne net.Error
	switch {
	case errors.Is(err, domain.ErrExchangeAPI):
		return &domain.OrderError{Op: op, Reason: err.Error(), Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &domain.OrderError{Op: op, Reason: "timeout", Transient: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &domain.OrderError{Op: op, Reason: "canceled", Transient: true, Err: err}
	default:
		return &domain.OrderError{Op: op, Reason: "transport: " + err.Error(), Transient: true, Err: err}
	}
}
