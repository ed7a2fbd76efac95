package usecase_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/dca_bot/internal/domain"
)

// MockExchange records submitted orders and serves canned read results.
type MockExchange struct {
	mu sync.Mutex

	Placed    []domain.OrderRequest
	Cancelled []string
	nextID    int
	placedIDs []int
	blocked   int

	// PlaceErr, when set, decides the outcome of the n-th (0-based) PlaceOrder call.
	PlaceErr func(n int, req domain.OrderRequest) error
	// Block makes PlaceOrder wait for ctx cancellation.
	Block bool
	// BlockSymbol blocks PlaceOrder for one symbol only.
	BlockSymbol string

	// Fills are served by GetOrderFill; unknown ids report New with nothing filled.
	Fills   map[string]domain.OrderFill
	FillErr error

	CancelErr      error
	OpenOrders     []domain.OpenOrder
	OpenOrdersErr  error
	Positions      []domain.Position
	PositionsErr   error
	Instruments    []domain.Instrument
	InstrumentsErr error
	Price          float64
	PriceErr       error
}

func (m *MockExchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderAck, error) {
	if m.Block || (m.BlockSymbol != "" && m.BlockSymbol == req.Symbol) {
		m.mu.Lock()
		m.blocked++
		m.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.nextID
	m.nextID++
	if m.PlaceErr != nil {
		if err := m.PlaceErr(n, req); err != nil {
			return nil, err
		}
	}
	m.Placed = append(m.Placed, req)
	m.placedIDs = append(m.placedIDs, n)
	return &domain.OrderAck{
		OrderID: fmt.Sprintf("order-%d", n),
		LinkID:  req.LinkID,
		Raw:     []byte(`{"retCode":0}`),
	}, nil
}

func (m *MockExchange) GetOpenOrders(ctx context.Context, category, symbol string) ([]domain.OpenOrder, error) {
	if m.OpenOrdersErr != nil {
		return nil, m.OpenOrdersErr
	}
	return m.OpenOrders, nil
}

func (m *MockExchange) GetOpenPositions(ctx context.Context, category, symbol string) ([]domain.Position, error) {
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	return m.Positions, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, category, symbol, orderID string) (*domain.OrderAck, error) {
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	return &domain.OrderAck{OrderID: orderID}, nil
}

func (m *MockExchange) GetOrderFill(ctx context.Context, category, symbol, orderID string) (*domain.OrderFill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FillErr != nil {
		return nil, m.FillErr
	}
	if f, ok := m.Fills[orderID]; ok {
		f.OrderID = orderID
		return &f, nil
	}
	return &domain.OrderFill{OrderID: orderID, Status: "New"}, nil
}

// SetFill reports the order as executed at avg for qty.
func (m *MockExchange) SetFill(orderID, status string, qty, avg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fills == nil {
		m.Fills = make(map[string]domain.OrderFill)
	}
	m.Fills[orderID] = domain.OrderFill{Status: status, FilledQty: qty, AvgPrice: avg}
}

// FillPlaced reports every accepted Limit order as fully filled at its price.
func (m *MockExchange) FillPlaced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fills == nil {
		m.Fills = make(map[string]domain.OrderFill)
	}
	for i, req := range m.Placed {
		if req.Price == nil {
			continue
		}
		m.Fills[fmt.Sprintf("order-%d", m.placedIDs[i])] = domain.OrderFill{
			Status:    domain.OrderStatusFilled,
			FilledQty: req.Quantity,
			AvgPrice:  *req.Price,
		}
	}
}

func (m *MockExchange) GetInstruments(ctx context.Context, category string) ([]domain.Instrument, error) {
	if m.InstrumentsErr != nil {
		return nil, m.InstrumentsErr
	}
	return m.Instruments, nil
}

func (m *MockExchange) GetCurrentPrice(ctx context.Context, category, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Price, m.PriceErr
}

func (m *MockExchange) SetPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Price = p
}

// Blocked counts PlaceOrder calls that started waiting.
func (m *MockExchange) Blocked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked
}

func (m *MockExchange) PlacedOrders() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderRequest, len(m.Placed))
	copy(out, m.Placed)
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(evt domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) Types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// memStore is an in-memory domain.BotStore.
type memStore struct {
	mu   sync.Mutex
	bots map[string][]domain.BotConfig
}

func newMemStore() *memStore {
	return &memStore{bots: make(map[string][]domain.BotConfig)}
}

func (s *memStore) LoadBots(ctx context.Context, userID string) ([]domain.BotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BotConfig(nil), s.bots[userID]...), nil
}

func (s *memStore) SaveBots(ctx context.Context, userID string, bots []domain.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[userID] = append([]domain.BotConfig(nil), bots...)
	return nil
}

func (s *memStore) UpdateBots(ctx context.Context, userID string, fn func([]domain.BotConfig) ([]domain.BotConfig, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(append([]domain.BotConfig(nil), s.bots[userID]...))
	if err != nil {
		return err
	}
	s.bots[userID] = next
	return nil
}

func (s *memStore) ListUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.bots))
	for u := range s.bots {
		users = append(users, u)
	}
	return users, nil
}

func strategy(symbol string) domain.StrategyConfig {
	return domain.StrategyConfig{
		Symbol:          symbol,
		BaseOrderSize:   0.001,
		SafetyOrderSize: 0.001,
		DCALevels:       3,
		PriceDeviation:  0.015,
		TakeProfit:      0.02,
		StopLoss:        0.05,
		MaxSafetyOrders: 2,
	}
}

func ptr[T any](v T) *T { return &v }
