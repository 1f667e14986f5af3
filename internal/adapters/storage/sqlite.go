package storage

// sqlite.go — persistencia del estado del copy trader en SQLite (pure Go, sin CGo).
//
// Todo el estado que debe sobrevivir un reinicio vive aquí: ledgers por
// (wallet, asset), posiciones del bot con su máquina de estados, claves de
// trades ya procesados y sesiones de seguimiento. Los importes se guardan como
// TEXT decimal para no perder precisión.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
-- Un ledger por (wallet seguida, asset)
CREATE TABLE IF NOT EXISTS tracking_ledgers (
    id                   TEXT PRIMARY KEY,
    tracked_wallet       TEXT NOT NULL,
    asset                TEXT NOT NULL,
    baseline_shares      TEXT NOT NULL,
    post_baseline_shares TEXT NOT NULL,
    close_stage_ref      TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    UNIQUE (tracked_wallet, asset)
);

-- Posiciones abiertas por el bot. status: OPEN | CLOSING_PENDING | CLOSED
CREATE TABLE IF NOT EXISTS bot_positions (
    id                 TEXT PRIMARY KEY,
    ledger_id          TEXT NOT NULL,
    tracked_wallet     TEXT NOT NULL,
    asset              TEXT NOT NULL,
    shares_held        TEXT NOT NULL,
    entry_price        TEXT,
    entry_cost         TEXT NOT NULL,
    fees               TEXT NOT NULL,
    close_proceeds     TEXT,
    status             TEXT NOT NULL,
    close_order_id     TEXT NOT NULL DEFAULT '',
    close_tx_hash      TEXT NOT NULL DEFAULT '',
    close_requested_at TEXT,
    close_attempts     INTEGER NOT NULL DEFAULT 0,
    opened_at          TEXT NOT NULL,
    closed_at          TEXT
);

-- Claves de trades ya procesados, para no copiar dos veces
CREATE TABLE IF NOT EXISTS seen_trades (
    tracked_wallet TEXT NOT NULL,
    trade_key      TEXT NOT NULL,
    seen_at        TEXT NOT NULL,
    PRIMARY KEY (tracked_wallet, trade_key)
);

-- Sesiones de seguimiento por wallet
CREATE TABLE IF NOT EXISTS tracking_sessions (
    id                    TEXT PRIMARY KEY,
    tracked_wallet        TEXT NOT NULL,
    status                TEXT NOT NULL,
    started_at            TEXT NOT NULL,
    snapshot_completed_at TEXT,
    snapshot_source       TEXT NOT NULL DEFAULT '',
    ended_at              TEXT
);

CREATE INDEX IF NOT EXISTS idx_ledgers_wallet   ON tracking_ledgers(tracked_wallet);
CREATE INDEX IF NOT EXISTS idx_positions_ledger ON bot_positions(ledger_id, status);
CREATE INDEX IF NOT EXISTS idx_positions_wallet ON bot_positions(tracked_wallet, status);
CREATE INDEX IF NOT EXISTS idx_sessions_wallet  ON tracking_sessions(tracked_wallet, status);
`

// Store implementa los cuatro puertos de persistencia sobre una única base
// SQLite.
type Store struct {
	db *sql.DB
}

// NewStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
// Usar ":memory:" para tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewStore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close cierra la conexión a la base de datos.
func (s *Store) Close() error {
	return s.db.Close()
}

// Los cuatro puertos comparten la misma conexión; los tipos wrapper evitan el
// choque de firmas entre stores.

// Ledgers devuelve la vista TrackingStore.
func (s *Store) Ledgers() *LedgerStore { return &LedgerStore{s} }

// Positions devuelve la vista PositionStore.
func (s *Store) Positions() *PositionStore { return &PositionStore{s} }

// SeenTrades devuelve la vista SeenTradeStore.
func (s *Store) SeenTrades() *SeenTradeStore { return &SeenTradeStore{s} }

// Sessions devuelve la vista SessionStore.
func (s *Store) Sessions() *SessionStore { return &SessionStore{s} }

// LedgerStore implementa ports.TrackingStore.
type LedgerStore struct{ *Store }

// PositionStore implementa ports.PositionStore.
type PositionStore struct{ *Store }

// SeenTradeStore implementa ports.SeenTradeStore.
type SeenTradeStore struct{ *Store }

// SessionStore implementa ports.SessionStore.
type SessionStore struct{ *Store }

// inTx ejecuta fn dentro de una transacción, con rollback en error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers de conversión ---

func nowUTC() time.Time { return time.Now().UTC() }

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtDecPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func parseDecPtr(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := parseDec(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
