package storage

// seen.go — SeenTradeStore sobre la tabla seen_trades.

import (
	"context"
	"database/sql"
	"fmt"
)

// Add registra la clave; si ya existe es un no-op.
func (s *SeenTradeStore) Add(ctx context.Context, wallet, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_trades (tracked_wallet, trade_key, seen_at) VALUES (?, ?, ?)`,
		wallet, key, fmtTime(nowUTC()),
	)
	if err != nil {
		return fmt.Errorf("storage.Add seen trade: %w", err)
	}
	return nil
}

// AddBatch registra muchas claves en una sola transacción (fetch de baseline).
func (s *SeenTradeStore) AddBatch(ctx context.Context, wallet string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO seen_trades (tracked_wallet, trade_key, seen_at) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := fmtTime(nowUTC())
		for _, key := range keys {
			if _, err := stmt.ExecContext(ctx, wallet, key, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage.AddBatch: %w", err)
	}
	return nil
}

// Contains indica si la clave ya fue registrada para la wallet.
func (s *SeenTradeStore) Contains(ctx context.Context, wallet, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM seen_trades WHERE tracked_wallet = ? AND trade_key = ?`,
		wallet, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.Contains: %w", err)
	}
	return n > 0, nil
}
