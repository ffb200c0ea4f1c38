// Package journal is the durable trade history: orders, fills, and
// portfolio snapshots in sqlite, plus the outbox/dedup tables that
// make broker-mode event publication at-least-once safe.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// Store wraps the sqlite trade journal.
type Store struct {
	db *sql.DB
}

// OutboxEvent is an event waiting to be published.
type OutboxEvent struct {
	ID                  int64
	EventID             string
	Topic               string
	Key                 string
	PayloadJSON         string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Symbol     string
	Status     event.OrderStatus
	FromMillis int64
	ToMillis   int64
	Limit      int
}

// Open creates or opens the journal at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			exchange_order_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL,
			stop_price REAL,
			status TEXT NOT NULL,
			filled_quantity REAL NOT NULL DEFAULT 0,
			filled_price REAL NOT NULL DEFAULT 0,
			commission REAL NOT NULL DEFAULT 0,
			created_unix_millis INTEGER NOT NULL,
			updated_unix_millis INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol_time
			ON orders(symbol, created_unix_millis)`,
		`CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			commission REAL NOT NULL DEFAULT 0,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payload_json TEXT NOT NULL,
			ts_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox_events(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			first_seen_unix_millis INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// SaveOrder upserts an order row; terminal orders stay here forever.
func (s *Store) SaveOrder(ctx context.Context, o event.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, exchange_order_id, symbol, side, type, quantity, price, stop_price,
			status, filled_quantity, filled_price, commission, created_unix_millis, updated_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			exchange_order_id = excluded.exchange_order_id,
			status = excluded.status,
			filled_quantity = excluded.filled_quantity,
			filled_price = excluded.filled_price,
			commission = excluded.commission,
			updated_unix_millis = excluded.updated_unix_millis`,
		o.ID, o.ExchangeOrderID, o.Symbol, string(o.Side), string(o.Type), o.Quantity, o.Price, o.StopPrice,
		string(o.Status), o.FilledQuantity, o.FilledPrice, o.Commission, o.CreatedUnixMillis, o.UpdatedUnixMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// ListOrders queries order history by symbol, status, and time range.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]event.Order, error) {
	query := `SELECT id, exchange_order_id, symbol, side, type, quantity, price, stop_price,
		status, filled_quantity, filled_price, commission, created_unix_millis, updated_unix_millis
		FROM orders WHERE 1=1`
	args := []any{}

	if f.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.FromMillis > 0 {
		query += " AND created_unix_millis >= ?"
		args = append(args, f.FromMillis)
	}
	if f.ToMillis > 0 {
		query += " AND created_unix_millis <= ?"
		args = append(args, f.ToMillis)
	}
	query += " ORDER BY created_unix_millis DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []event.Order
	for rows.Next() {
		var o event.Order
		var side, typ, status string
		err := rows.Scan(&o.ID, &o.ExchangeOrderID, &o.Symbol, &side, &typ, &o.Quantity, &o.Price, &o.StopPrice,
			&status, &o.FilledQuantity, &o.FilledPrice, &o.Commission, &o.CreatedUnixMillis, &o.UpdatedUnixMillis)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = event.OrderSide(side)
		o.Type = event.OrderType(typ)
		o.Status = event.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RecordFill appends a fill row for a filled or partially filled order.
func (s *Store) RecordFill(ctx context.Context, o event.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fills (order_id, symbol, side, quantity, price, commission, ts_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), o.FilledQuantity, o.FilledPrice, o.Commission, o.UpdatedUnixMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to record fill: %w", err)
	}
	return nil
}

// SaveSnapshot appends a portfolio snapshot row.
func (s *Store) SaveSnapshot(ctx context.Context, snap event.PortfolioSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO position_snapshots (payload_json, ts_unix_millis) VALUES (?, ?)`,
		string(payload), snap.TsUnixMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Enqueue stores an event in the outbox for later publication.
func (s *Store) Enqueue(ctx context.Context, eventID, topic, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outbox_events (event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(event_id) DO NOTHING`,
		eventID, topic, key, string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// ListUnpublished returns unpublished outbox events
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis
		 FROM outbox_events
		 WHERE published_unix_millis IS NULL
		 ORDER BY created_unix_millis ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.Key, &e.PayloadJSON,
			&e.CreatedUnixMillis, &e.PublishedUnixMillis)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkPublished marks an outbox event as published
func (s *Store) MarkPublished(ctx context.Context, eventID string, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_unix_millis = ? WHERE event_id = ?",
		nowMillis, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// MarkProcessed records an inbound event id, reporting whether it was
// already seen. Consumers use this to make at-least-once delivery
// effectively once.
func (s *Store) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, first_seen_unix_millis)
		 VALUES (?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		eventID, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 0, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
