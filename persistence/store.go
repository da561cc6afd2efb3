// Package persistence is the embedded relational store: one sqlite file
// per deployment, shared by every per-symbol loop through a single
// cached connection. WAL journaling lets readers proceed while a writer
// holds the file; the busy timeout absorbs the brief lock contention
// that remains when two loops write in the same tick window.
package persistence

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"

	"bybitengine/bterr"
)

var (
	cacheMu sync.Mutex
	cache   = map[string]*cachedDB{}
)

type cachedDB struct {
	db       *sql.DB
	refCount int
}

// Store is a handle onto the shared database connection for one file.
// Multiple Store values opened against the same path share the
// underlying *sql.DB; Close decrements the reference count and only
// closes the connection once the last handle is gone.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex // serializes every statement issued through this handle; sqlite itself serializes across handles
}

// Open returns a Store backed by path, reusing an existing connection to
// the same file if one is already open in this process. Never open a
// second independent connection to the same file outside this cache —
// that defeats the busy-timeout contract.
func Open(path string) (*Store, error) {
	const op = "persistence.Open"

	cacheMu.Lock()
	defer cacheMu.Unlock()

	entry, ok := cache[path]
	if !ok {
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, bterr.New(bterr.KindIntegrity, op, "", "open database", err)
		}
		db.SetMaxOpenConns(1) // one connection: statements from every handle run one at a time
		if err := migrate(db); err != nil {
			_ = db.Close()
			return nil, bterr.New(bterr.KindIntegrity, op, "", "migrate schema", err)
		}
		entry = &cachedDB{db: db}
		cache[path] = entry
	}
	entry.refCount++
	return &Store{path: path, db: entry.db}, nil
}

// Close releases this handle's reference. The underlying connection is
// closed only when every handle to path has been closed.
func (s *Store) Close() error {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	entry, ok := cache[s.path]
	if !ok {
		return nil
	}
	entry.refCount--
	if entry.refCount > 0 {
		return nil
	}
	delete(cache, s.path)
	return entry.db.Close()
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			client_link_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty TEXT NOT NULL,
			filled_qty TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol TEXT PRIMARY KEY,
			side TEXT NOT NULL,
			qty TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			pyramid_level INTEGER NOT NULL DEFAULT 1,
			strategy_id TEXT,
			order_id TEXT,
			opened_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty TEXT NOT NULL,
			price TEXT NOT NULL,
			fee TEXT NOT NULL DEFAULT '0',
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_order ON executions(order_id)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			direction TEXT NOT NULL,
			confidence REAL NOT NULL,
			accepted BOOLEAN NOT NULL,
			reason TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS config_flags (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			mark_price TEXT NOT NULL,
			unrealized_pnl TEXT NOT NULL,
			taken_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// OrderRecord is the persisted shape of an orders.TrackedOrder.
type OrderRecord struct {
	OrderID      string
	ClientLinkID string
	Symbol       string
	Side         string
	Qty          decimal.Decimal
	FilledQty    decimal.Decimal
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertOrder persists o, overwriting any existing row for the same OrderID.
func (s *Store) UpsertOrder(o OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO orders (order_id, client_link_id, symbol, side, qty, filled_qty, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			filled_qty = excluded.filled_qty,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, o.OrderID, o.ClientLinkID, o.Symbol, o.Side, o.Qty.String(), o.FilledQty.String(), o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.UpsertOrder", o.Symbol, "write order row", err)
	}
	return nil
}

// OpenOrders returns every non-terminal order for symbol ("" for all symbols).
func (s *Store) OpenOrders(symbol string) ([]OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT order_id, client_link_id, symbol, side, qty, filled_qty, status, created_at, updated_at FROM orders WHERE status NOT IN ('Filled','Cancelled','Rejected')`
	args := []any{}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "persistence.OpenOrders", symbol, "query orders", err)
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var o OrderRecord
		var qty, filled string
		if err := rows.Scan(&o.OrderID, &o.ClientLinkID, &o.Symbol, &o.Side, &qty, &filled, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, bterr.New(bterr.KindIntegrity, "persistence.OpenOrders", symbol, "scan order row", err)
		}
		o.Qty, _ = decimal.NewFromString(qty)
		o.FilledQty, _ = decimal.NewFromString(filled)
		out = append(out, o)
	}
	return out, rows.Err()
}

// PositionRecord is the persisted shape of an orders.TrackedPosition.
type PositionRecord struct {
	Symbol       string
	Side         string
	Qty          decimal.Decimal
	EntryPrice   decimal.Decimal
	PyramidLevel int
	StrategyID   string
	OrderID      string
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

// UpsertPosition persists p, keyed by symbol (at most one open position per symbol).
func (s *Store) UpsertPosition(p PositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO positions (symbol, side, qty, entry_price, pyramid_level, strategy_id, order_id, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			qty = excluded.qty,
			entry_price = excluded.entry_price,
			pyramid_level = excluded.pyramid_level,
			order_id = excluded.order_id,
			updated_at = excluded.updated_at
	`, p.Symbol, p.Side, p.Qty.String(), p.EntryPrice.String(), p.PyramidLevel, p.StrategyID, p.OrderID, p.OpenedAt, p.UpdatedAt)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.UpsertPosition", p.Symbol, "write position row", err)
	}
	return nil
}

// DeletePosition removes the row for symbol (position closed).
func (s *Store) DeletePosition(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM positions WHERE symbol = ?`, symbol)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.DeletePosition", symbol, "delete position row", err)
	}
	return nil
}

// Positions returns every currently open position.
func (s *Store) Positions() ([]PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT symbol, side, qty, entry_price, pyramid_level, strategy_id, order_id, opened_at, updated_at FROM positions`)
	if err != nil {
		return nil, bterr.New(bterr.KindIntegrity, "persistence.Positions", "", "query positions", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		var qty, entry string
		if err := rows.Scan(&p.Symbol, &p.Side, &qty, &entry, &p.PyramidLevel, &p.StrategyID, &p.OrderID, &p.OpenedAt, &p.UpdatedAt); err != nil {
			return nil, bterr.New(bterr.KindIntegrity, "persistence.Positions", "", "scan position row", err)
		}
		p.Qty, _ = decimal.NewFromString(qty)
		p.EntryPrice, _ = decimal.NewFromString(entry)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordExecution appends an execution row.
func (s *Store) RecordExecution(orderID, symbol, side string, qty, price, fee decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO executions (order_id, symbol, side, qty, price, fee, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orderID, symbol, side, qty.String(), price.String(), fee.String(), at)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.RecordExecution", symbol, "write execution row", err)
	}
	return nil
}

// RecordSignal appends a signal decision row.
func (s *Store) RecordSignal(symbol, strategyName, direction string, confidence float64, accepted bool, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO signals (symbol, strategy, direction, confidence, accepted, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		symbol, strategyName, direction, confidence, accepted, reason, at)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.RecordSignal", symbol, "write signal row", err)
	}
	return nil
}

// RecordError appends an error row. This is also the legacy half of the
// kill switch's dual-indicator halted flag: killswitch.PersistedFlag's
// SetLegacyHalted writes a sentinel row here.
func (s *Store) RecordError(symbol, kind, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO errors (symbol, kind, message, created_at) VALUES (?, ?, ?, ?)`, symbol, kind, message, at)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.RecordError", symbol, "write error row", err)
	}
	return nil
}

// SetFlag upserts a config_flags row.
func (s *Store) SetFlag(key, value string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO config_flags (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, at)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.SetFlag", "", "write config flag", err)
	}
	return nil
}

// Flag reads a config_flags value. ok is false if the key was never set.
func (s *Store) Flag(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value string
	err := s.db.QueryRow(`SELECT value FROM config_flags WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, bterr.New(bterr.KindIntegrity, "persistence.Flag", "", "read config flag", err)
	}
	return value, true, nil
}

// SnapshotPosition appends a point-in-time position_snapshots row, used
// by the recovery and reporting paths independent of the live positions
// table.
func (s *Store) SnapshotPosition(symbol, side string, qty, entryPrice, markPrice, unrealizedPnL decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO position_snapshots (symbol, side, qty, entry_price, mark_price, unrealized_pnl, taken_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		symbol, side, qty.String(), entryPrice.String(), markPrice.String(), unrealizedPnL.String(), at)
	if err != nil {
		return bterr.New(bterr.KindIntegrity, "persistence.SnapshotPosition", symbol, "write position snapshot", err)
	}
	return nil
}
