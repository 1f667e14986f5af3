package storage

// ledgers.go — TrackingStore sobre la tabla tracking_ledgers.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const ledgerColumns = `id, tracked_wallet, asset, baseline_shares, post_baseline_shares,
	close_stage_ref, created_at, updated_at`

// Get devuelve el ledger o (nil, nil) si no existe.
func (s *LedgerStore) Get(ctx context.Context, wallet, asset string) (*domain.TrackingLedger, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM tracking_ledgers WHERE tracked_wallet = ? AND asset = ?`,
		wallet, asset,
	)
	ledger, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Get: %w", err)
	}
	return ledger, nil
}

// GetOrCreate devuelve el ledger existente o crea uno vacío.
func (s *LedgerStore) GetOrCreate(ctx context.Context, wallet, asset string) (*domain.TrackingLedger, error) {
	if ledger, err := s.Get(ctx, wallet, asset); err != nil || ledger != nil {
		return ledger, err
	}
	ledger := domain.NewTrackingLedger(wallet, asset)
	if err := s.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("storage.GetOrCreate: %w", err)
	}
	return ledger, nil
}

// Save hace upsert del ledger por (tracked_wallet, asset).
func (s *LedgerStore) Save(ctx context.Context, ledger *domain.TrackingLedger) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_ledgers
			(id, tracked_wallet, asset, baseline_shares, post_baseline_shares,
			 close_stage_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tracked_wallet, asset) DO UPDATE SET
			baseline_shares      = excluded.baseline_shares,
			post_baseline_shares = excluded.post_baseline_shares,
			close_stage_ref      = excluded.close_stage_ref,
			updated_at           = excluded.updated_at
	`,
		ledger.ID.String(),
		ledger.TrackedWallet,
		ledger.Asset,
		ledger.BaselineShares.String(),
		ledger.PostBaselineShares.String(),
		fmtDecPtr(ledger.CloseStageRef),
		fmtTime(ledger.CreatedAt),
		fmtTime(ledger.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.Save ledger: %w", err)
	}
	return nil
}

// ListByWallet devuelve todos los ledgers de la wallet.
func (s *LedgerStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.TrackingLedger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM tracking_ledgers WHERE tracked_wallet = ? ORDER BY created_at`,
		wallet,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListByWallet: query: %w", err)
	}
	defer rows.Close()

	var ledgers []*domain.TrackingLedger
	for rows.Next() {
		ledger, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListByWallet: %w", err)
		}
		ledgers = append(ledgers, ledger)
	}
	return ledgers, rows.Err()
}

// SetCloseStageRef actualiza solo la referencia de etapa de cierre.
func (s *LedgerStore) SetCloseStageRef(ctx context.Context, wallet, asset string, ref *decimal.Decimal) (*domain.TrackingLedger, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracking_ledgers SET close_stage_ref = ?, updated_at = ?
		WHERE tracked_wallet = ? AND asset = ?
	`, fmtDecPtr(ref), fmtTime(nowUTC()), wallet, asset)
	if err != nil {
		return nil, fmt.Errorf("storage.SetCloseStageRef: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.Get(ctx, wallet, asset)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (*domain.TrackingLedger, error) {
	var (
		id, wallet, asset          string
		baseline, post             string
		stageRef                   sql.NullString
		createdAtStr, updatedAtStr string
	)
	if err := row.Scan(&id, &wallet, &asset, &baseline, &post, &stageRef, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}

	ledger := &domain.TrackingLedger{TrackedWallet: wallet, Asset: asset}
	var err error
	if ledger.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse ledger id %q: %w", id, err)
	}
	if ledger.BaselineShares, err = parseDec(baseline); err != nil {
		return nil, err
	}
	if ledger.PostBaselineShares, err = parseDec(post); err != nil {
		return nil, err
	}
	if ledger.CloseStageRef, err = parseDecPtr(stageRef); err != nil {
		return nil, err
	}
	if ledger.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if ledger.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}
	return ledger, nil
}
