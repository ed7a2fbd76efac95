package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vitos/dca_bot/internal/domain"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/spot"

	wsPingInterval   = 20 * time.Second
	wsReconnectDelay = 3 * time.Second
	wirePrecision    = 8
)

type SessionConfig struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	WSURL      string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	RecvWindow int
}

// BybitSession is a long-lived, authenticated Bybit V5 client shared by all
// bot instances. After a transport failure its idle connections are dropped
// so the next request dials a fresh connection.
type BybitSession struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	wsURL      string
	recvWindow int
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time

	transportFailures atomic.Int64

	mu         sync.Mutex
	wsConn     *websocket.Conn
	wsSymbols  map[string]bool
	wsClosed   bool
	wsDone     chan struct{}
	callbacks  []func(symbol string, price float64)
	reconnects int
}

func NewBybitSession(cfg SessionConfig, logger *zap.Logger) *BybitSession {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BybitBaseURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = BybitWSURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &BybitSession{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		wsURL:      cfg.WSURL,
		recvWindow: cfg.RecvWindow,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger,
		now:        time.Now,
		wsSymbols:  make(map[string]bool),
		wsDone:     make(chan struct{}),
	}
}

// --- REST API ---

func (b *BybitSession) sign(params string, timestamp int64) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, b.recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// sendRequest performs a signed call and returns the raw body together with
// the decoded envelope. A non-zero retCode and 4xx statuses are reported as
// domain.ErrExchangeAPI. Rate limiting (429) and 5xx are not: the request
// may succeed when repeated.
func (b *BybitSession) sendRequest(ctx context.Context, method, path string, query url.Values, payload map[string]interface{}) ([]byte, *envelope, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	timestamp := b.now().UnixMilli()

	var body []byte
	var paramsStr string
	target := b.baseURL + path

	if method == http.MethodPost {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if len(query) > 0 {
		paramsStr = query.Encode()
		target += "?" + paramsStr
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(b.recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.reconnect(err)
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		b.reconnect(err)
		return nil, nil, err
	}
	b.transportFailures.Store(0)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return respBody, nil, fmt.Errorf("bybit unavailable: http %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 400:
		return respBody, nil, fmt.Errorf("%w: http %d: %s", domain.ErrExchangeAPI, resp.StatusCode, string(respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return respBody, nil, fmt.Errorf("%w: malformed response: %v", domain.ErrExchangeAPI, err)
	}
	if env.RetCode != 0 {
		return respBody, &env, fmt.Errorf("%w: %s (retCode=%d)", domain.ErrExchangeAPI, env.RetMsg, env.RetCode)
	}
	return respBody, &env, nil
}

// reconnect drops pooled keep-alive connections after a transport failure.
func (b *BybitSession) reconnect(cause error) {
	n := b.transportFailures.Add(1)
	b.client.CloseIdleConnections()
	b.logger.Warn("Bybit transport failure, connections reset",
		zap.Error(cause),
		zap.Int64("consecutive_failures", n))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// formatDecimal panics on NaN and infinities; callers check finite first.
func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).Round(wirePrecision).String()
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (b *BybitSession) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	if !finite(req.Quantity) {
		return nil, &domain.ConfigError{Field: "quantity", Reason: "must be a finite number"}
	}
	if req.Price != nil && !finite(*req.Price) {
		return nil, &domain.ConfigError{Field: "price", Reason: "must be a finite number"}
	}
	payload := map[string]interface{}{
		"category":    req.Category,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   string(req.Type),
		"qty":         formatDecimal(req.Quantity),
		"timeInForce": req.TimeInForce,
	}
	if req.Price != nil {
		payload["price"] = formatDecimal(*req.Price)
	}
	if req.LinkID != "" {
		payload["orderLinkId"] = req.LinkID
	}

	raw, env, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", nil, payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: decode order result: %v", domain.ErrExchangeAPI, err)
	}

	return &domain.OrderAck{
		OrderID: result.OrderID,
		LinkID:  result.OrderLinkID,
		Raw:     json.RawMessage(raw),
	}, nil
}

func (b *BybitSession) CancelOrder(ctx context.Context, category, symbol, orderID string) (*domain.OrderAck, error) {
	payload := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	raw, env, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: decode cancel result: %v", domain.ErrExchangeAPI, err)
	}
	return &domain.OrderAck{OrderID: result.OrderID, LinkID: result.OrderLinkID, Raw: json.RawMessage(raw)}, nil
}

// GetOrderFill reads the execution state of one order. Live orders are
// served by /v5/order/realtime; finished ones may only be in the history.
func (b *BybitSession) GetOrderFill(ctx context.Context, category, symbol, orderID string) (*domain.OrderFill, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)

	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		_, env, err := b.sendRequest(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return nil, err
		}

		var result struct {
			List []struct {
				OrderID     string `json:"orderId"`
				OrderStatus string `json:"orderStatus"`
				CumExecQty  string `json:"cumExecQty"`
				AvgPrice    string `json:"avgPrice"`
			} `json:"list"`
		}
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", orderID, err)
		}
		for _, o := range result.List {
			if o.OrderID != orderID {
				continue
			}
			return &domain.OrderFill{
				OrderID:   o.OrderID,
				Status:    o.OrderStatus,
				FilledQty: parseFloat(o.CumExecQty),
				AvgPrice:  parseFloat(o.AvgPrice),
			}, nil
		}
	}
	return nil, fmt.Errorf("order %s not found", orderID)
}

func (b *BybitSession) GetOpenOrders(ctx context.Context, category, symbol string) ([]domain.OpenOrder, error) {
	q := url.Values{}
	q.Set("category", category)
	if symbol != "" {
		q.Set("symbol", symbol)
	}

	_, env, err := b.sendRequest(ctx, http.MethodGet, "/v5/order/realtime", q, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			Price       string `json:"price"`
			Qty         string `json:"qty"`
			OrderStatus string `json:"orderStatus"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(result.List))
	for _, o := range result.List {
		created, _ := strconv.ParseInt(o.CreatedTime, 10, 64)
		orders = append(orders, domain.OpenOrder{
			OrderID:   o.OrderID,
			LinkID:    o.OrderLinkID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Type:      o.OrderType,
			Price:     parseFloat(o.Price),
			Quantity:  parseFloat(o.Qty),
			Status:    o.OrderStatus,
			CreatedAt: created,
		})
	}
	return orders, nil
}

func (b *BybitSession) GetOpenPositions(ctx context.Context, category, symbol string) ([]domain.Position, error) {
	q := url.Values{}
	q.Set("category", category)
	if symbol != "" {
		q.Set("symbol", symbol)
	}

	_, env, err := b.sendRequest(ctx, http.MethodGet, "/v5/position/list", q, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(result.List))
	for _, p := range result.List {
		size := parseFloat(p.Size)
		if size == 0 {
			continue
		}
		positions = append(positions, domain.Position{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Size:          size,
			EntryPrice:    parseFloat(p.AvgPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			UnrealizedPnL: parseFloat(p.UnrealisedPnl),
		})
	}
	return positions, nil
}

func (b *BybitSession) GetInstruments(ctx context.Context, category string) ([]domain.Instrument, error) {
	if category == "" {
		category = domain.CategorySpot
	}
	q := url.Values{}
	q.Set("category", category)

	_, env, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}

	instruments := make([]domain.Instrument, 0, len(result.List))
	for _, item := range result.List {
		instruments = append(instruments, domain.Instrument{
			Symbol:    item.Symbol,
			BaseCoin:  item.BaseCoin,
			QuoteCoin: item.QuoteCoin,
			Status:    item.Status,
		})
	}
	return instruments, nil
}

func (b *BybitSession) GetCurrentPrice(ctx context.Context, category, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)

	_, env, err := b.sendRequest(ctx, http.MethodGet, "/v5/market/tickers", q, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("symbol %s not found", symbol)
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}

// --- WebSocket ---

func (b *BybitSession) OnPriceUpdate(callback func(symbol string, price float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Subscribe adds symbols to the spot ticker stream, dialing it on first use.
func (b *BybitSession) Subscribe(symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsClosed {
		return fmt.Errorf("price stream closed")
	}

	var fresh []string
	for _, s := range symbols {
		if !b.wsSymbols[s] {
			b.wsSymbols[s] = true
			fresh = append(fresh, s)
		}
	}

	if b.wsConn == nil {
		if err := b.dialLocked(); err != nil {
			return err
		}
		// a fresh connection subscribes everything tracked so far
		return nil
	}
	return b.subscribeLocked(fresh)
}

func (b *BybitSession) dialLocked() error {
	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	b.wsConn = c

	all := make([]string, 0, len(b.wsSymbols))
	for s := range b.wsSymbols {
		all = append(all, s)
	}
	if err := b.subscribeLocked(all); err != nil {
		c.Close()
		b.wsConn = nil
		return err
	}

	go b.readLoop(c)
	go b.pingLoop(c)
	return nil
}

func (b *BybitSession) subscribeLocked(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = "tickers." + s
	}
	return b.wsConn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	})
}

func (b *BybitSession) pingLoop(c *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			if b.wsConn != c {
				b.mu.Unlock()
				return
			}
			err := c.WriteJSON(map[string]string{"op": "ping"})
			b.mu.Unlock()
			if err != nil {
				return
			}
		case <-b.wsDone:
			return
		}
	}
}

type tickerEvent struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

func (b *BybitSession) readLoop(c *websocket.Conn) {
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			c.Close()
			b.mu.Lock()
			if b.wsConn == c {
				b.wsConn = nil
			}
			closed := b.wsClosed
			b.mu.Unlock()
			if closed {
				return
			}
			b.logger.Warn("Bybit WS read error, reconnecting", zap.Error(err))
			go b.redial()
			return
		}

		var event tickerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			b.logger.Debug("Bybit WS unmarshal error", zap.Error(err))
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
			continue
		}

		symbol := event.Data.Symbol
		if symbol == "" {
			symbol = strings.TrimPrefix(event.Topic, "tickers.")
		}
		price := parseFloat(event.Data.LastPrice)
		if price <= 0 {
			continue
		}

		b.mu.Lock()
		callbacks := make([]func(string, float64), len(b.callbacks))
		copy(callbacks, b.callbacks)
		b.mu.Unlock()

		for _, cb := range callbacks {
			cb(symbol, price)
		}
	}
}

func (b *BybitSession) redial() {
	for {
		select {
		case <-b.wsDone:
			return
		case <-time.After(wsReconnectDelay):
		}

		b.mu.Lock()
		if b.wsClosed {
			b.mu.Unlock()
			return
		}
		if b.wsConn != nil {
			b.mu.Unlock()
			return
		}
		err := b.dialLocked()
		if err == nil {
			b.reconnects++
		}
		b.mu.Unlock()

		if err == nil {
			b.logger.Info("Bybit WS reconnected")
			return
		}
		b.logger.Warn("Bybit WS reconnect failed", zap.Error(err))
	}
}

// Close stops the price stream.
func (b *BybitSession) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsClosed {
		return nil
	}
	b.wsClosed = true
	close(b.wsDone)
	if b.wsConn != nil {
		err := b.wsConn.Close()
		b.wsConn = nil
		return err
	}
	return nil
}
