package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vitos/dca_bot/internal/domain"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore keeps per-user bot configurations and the order journal in SQLite
// or PostgreSQL. Writes for one user are serialised and run in a transaction.
type SQLStore struct {
	db     *sql.DB
	driver string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer, and keeps ":memory:" databases alive
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	store := &SQLStore{db: db, driver: driver, locks: make(map[string]*sync.Mutex)}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			symbol TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			take_profit DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			base_order_size DOUBLE PRECISION NOT NULL,
			safety_order_size DOUBLE PRECISION NOT NULL,
			dca_levels INTEGER NOT NULL,
			price_deviation DOUBLE PRECISION NOT NULL,
			max_safety_orders INTEGER NOT NULL,
			trailing_tp BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bots_user ON bots(user_id, position);`,
		`CREATE TABLE IF NOT EXISTS orders (
			link_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			bot_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_bot ON orders(bot_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2... for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// BotStore Implementation

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const botColumns = `id, user_id, name, type, symbol, enabled, take_profit, stop_loss, base_order_size, safety_order_size, dca_levels, price_deviation, max_safety_orders, trailing_tp, created_at`

func (s *SQLStore) LoadBots(ctx context.Context, userID string) ([]domain.BotConfig, error) {
	return s.loadBots(ctx, s.db, userID)
}

func (s *SQLStore) loadBots(ctx context.Context, q queryer, userID string) ([]domain.BotConfig, error) {
	query := s.rebind(`SELECT ` + botColumns + ` FROM bots WHERE user_id = ? ORDER BY position`)
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bots := []domain.BotConfig{}
	for rows.Next() {
		var b domain.BotConfig
		var typ string
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &typ, &b.Symbol, &b.Enabled, &b.TakeProfit, &b.StopLoss,
			&b.BaseOrderSize, &b.SafetyOrderSize, &b.DCALevels, &b.PriceDeviation, &b.MaxSafetyOrders, &b.TrailingTP, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Type = domain.BotType(typ)
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func (s *SQLStore) SaveBots(ctx context.Context, userID string, bots []domain.BotConfig) error {
	return s.UpdateBots(ctx, userID, func([]domain.BotConfig) ([]domain.BotConfig, error) {
		return bots, nil
	})
}

// UpdateBots loads the user's bots, applies fn and writes the result back in
// one transaction. An error from fn leaves the stored list untouched.
func (s *SQLStore) UpdateBots(ctx context.Context, userID string, fn func([]domain.BotConfig) ([]domain.BotConfig, error)) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := s.loadBots(ctx, tx, userID)
	if err != nil {
		return fmt.Errorf("load bots: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM bots WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("clear bots: %w", err)
	}

	insert := s.rebind(`INSERT INTO bots (` + botColumns + `, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, b := range next {
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, insert,
			b.ID, userID, b.Name, string(b.Type), b.Symbol, b.Enabled, b.TakeProfit, b.StopLoss,
			b.BaseOrderSize, b.SafetyOrderSize, b.DCALevels, b.PriceDeviation, b.MaxSafetyOrders, b.TrailingTP, b.CreatedAt, i); err != nil {
			return fmt.Errorf("insert bot %q: %w", b.Name, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM bots ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Order journal

func (s *SQLStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	query := s.rebind(`INSERT INTO orders (link_id, order_id, bot_id, symbol, side, type, quantity, price, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	var price sql.NullFloat64
	if order.Price != nil {
		price = sql.NullFloat64{Float64: *order.Price, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		order.LinkID, order.ID, order.BotID, order.Symbol, string(order.Side), string(order.Type), order.Quantity, price, order.CreatedAt)
	return err
}

// ListOrders returns the journal of one bot, newest first. An empty botID
// lists every bot.
func (s *SQLStore) ListOrders(ctx context.Context, botID string, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT link_id, order_id, bot_id, symbol, side, type, quantity, price, created_at FROM orders`
	args := []interface{}{}
	if botID != "" {
		query += ` WHERE bot_id = ?`
		args = append(args, botID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, typ string
		var price sql.NullFloat64
		if err := rows.Scan(&o.LinkID, &o.ID, &o.BotID, &o.Symbol, &side, &typ, &o.Quantity, &price, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Type = domain.OrderType(typ)
		if price.Valid {
			p := price.Float64
			o.Price = &p
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
