package storage

// positions.go — PositionStore sobre la tabla bot_positions.
//
// Las transiciones de estado se ejecutan leyendo la fila dentro de una
// transacción y aplicando los métodos del dominio, de forma que la máquina de
// estados vive en un único sitio. Una transición ilegal devuelve (nil, nil).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const positionColumns = `id, ledger_id, tracked_wallet, asset, shares_held, entry_price,
	entry_cost, fees, close_proceeds, status, close_order_id, close_tx_hash,
	close_requested_at, close_attempts, opened_at, closed_at`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get devuelve la posición o (nil, nil) si no existe.
func (s *PositionStore) Get(ctx context.Context, id uuid.UUID) (*domain.BotPosition, error) {
	return getPosition(ctx, s.db, id)
}

func getPosition(ctx context.Context, q querier, id uuid.UUID) (*domain.BotPosition, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM bot_positions WHERE id = ?`, id.String())
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Get position: %w", err)
	}
	return p, nil
}

// Save hace upsert de la posición por id.
func (s *PositionStore) Save(ctx context.Context, p *domain.BotPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_positions
			(id, ledger_id, tracked_wallet, asset, shares_held, entry_price,
			 entry_cost, fees, close_proceeds, status, close_order_id, close_tx_hash,
			 close_requested_at, close_attempts, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shares_held        = excluded.shares_held,
			entry_price        = excluded.entry_price,
			entry_cost         = excluded.entry_cost,
			fees               = excluded.fees,
			close_proceeds     = excluded.close_proceeds,
			status             = excluded.status,
			close_order_id     = excluded.close_order_id,
			close_tx_hash      = excluded.close_tx_hash,
			close_requested_at = excluded.close_requested_at,
			close_attempts     = excluded.close_attempts,
			closed_at          = excluded.closed_at
	`,
		p.ID.String(),
		p.LedgerID.String(),
		p.TrackedWallet,
		p.Asset,
		p.SharesHeld.String(),
		fmtDecPtr(p.EntryPrice),
		p.EntryCost.String(),
		p.Fees.String(),
		fmtDecPtr(p.CloseProceeds),
		string(p.Status),
		p.CloseOrderID,
		p.CloseTransactionHash,
		fmtTimePtr(p.CloseRequestedAt),
		p.CloseAttempts,
		fmtTime(p.OpenedAt),
		fmtTimePtr(p.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.Save position: %w", err)
	}
	return nil
}

// ListOpenByLedger devuelve las posiciones OPEN del ledger, la más antigua primero.
func (s *PositionStore) ListOpenByLedger(ctx context.Context, ledgerID uuid.UUID) ([]*domain.BotPosition, error) {
	return s.listPositions(ctx,
		`WHERE ledger_id = ? AND status = ? ORDER BY opened_at`,
		ledgerID.String(), string(domain.StatusOpen))
}

// ListOpenByWallet devuelve las posiciones OPEN de la wallet, la más antigua primero.
func (s *PositionStore) ListOpenByWallet(ctx context.Context, wallet string) ([]*domain.BotPosition, error) {
	return s.listPositions(ctx,
		`WHERE tracked_wallet = ? AND status = ? ORDER BY opened_at`,
		wallet, string(domain.StatusOpen))
}

// ListByWallet devuelve todas las posiciones de la wallet.
func (s *PositionStore) ListByWallet(ctx context.Context, wallet string) ([]*domain.BotPosition, error) {
	return s.listPositions(ctx, `WHERE tracked_wallet = ? ORDER BY opened_at`, wallet)
}

func (s *PositionStore) listPositions(ctx context.Context, where string, args ...any) ([]*domain.BotPosition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM bot_positions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.listPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []*domain.BotPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.listPositions: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// CountActiveLedgers cuenta los ledgers de la wallet con alguna posición OPEN.
func (s *PositionStore) CountActiveLedgers(ctx context.Context, wallet string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT ledger_id) FROM bot_positions
		WHERE tracked_wallet = ? AND status = ?
	`, wallet, string(domain.StatusOpen)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.CountActiveLedgers: %w", err)
	}
	return n, nil
}

// MarkClosingPending registra una petición de cierre. Reentrante desde
// CLOSING_PENDING; (nil, nil) si la posición no existe o ya está CLOSED.
func (s *PositionStore) MarkClosingPending(ctx context.Context, id uuid.UUID, orderID, txHash string, requestedAt time.Time) (*domain.BotPosition, error) {
	return s.transition(ctx, id, "storage.MarkClosingPending", func(p *domain.BotPosition) *domain.BotPosition {
		return p.WithClosingPending(orderID, txHash, requestedAt)
	})
}

// ConfirmClosed confirma el cierre con los números del fill. Solo desde
// CLOSING_PENDING; (nil, nil) en cualquier otro caso.
func (s *PositionStore) ConfirmClosed(ctx context.Context, id uuid.UUID, proceeds, closeFee decimal.Decimal, orderID, txHash string, closedAt time.Time) (*domain.BotPosition, error) {
	return s.transition(ctx, id, "storage.ConfirmClosed", func(p *domain.BotPosition) *domain.BotPosition {
		return p.WithClosed(proceeds, closeFee, orderID, txHash, closedAt)
	})
}

// ApplyEntryFill sobreescribe el coste de entrada con el notional del fill y
// acumula la fee de apertura.
func (s *PositionStore) ApplyEntryFill(ctx context.Context, id uuid.UUID, entryCost, openFee decimal.Decimal) (*domain.BotPosition, error) {
	return s.transition(ctx, id, "storage.ApplyEntryFill", func(p *domain.BotPosition) *domain.BotPosition {
		return p.WithEntryFill(entryCost, openFee)
	})
}

// transition aplica una transición de dominio a la fila dentro de una
// transacción. apply devuelve nil cuando la transición no es legal.
func (s *PositionStore) transition(ctx context.Context, id uuid.UUID, op string, apply func(*domain.BotPosition) *domain.BotPosition) (*domain.BotPosition, error) {
	var updated *domain.BotPosition
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getPosition(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		next := apply(p)
		if next == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE bot_positions SET
				shares_held = ?, entry_price = ?, entry_cost = ?, fees = ?,
				close_proceeds = ?, status = ?, close_order_id = ?, close_tx_hash = ?,
				close_requested_at = ?, close_attempts = ?, closed_at = ?
			WHERE id = ?
		`,
			next.SharesHeld.String(),
			fmtDecPtr(next.EntryPrice),
			next.EntryCost.String(),
			next.Fees.String(),
			fmtDecPtr(next.CloseProceeds),
			string(next.Status),
			next.CloseOrderID,
			next.CloseTransactionHash,
			fmtTimePtr(next.CloseRequestedAt),
			next.CloseAttempts,
			fmtTimePtr(next.ClosedAt),
			next.ID.String(),
		)
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

func scanPosition(row rowScanner) (*domain.BotPosition, error) {
	var (
		id, ledgerID, wallet, asset string
		shares, entryCost, fees     string
		entryPrice, closeProceeds   sql.NullString
		status, orderID, txHash     string
		closeRequestedAt, closedAt  sql.NullString
		closeAttempts               int
		openedAtStr                 string
	)
	if err := row.Scan(&id, &ledgerID, &wallet, &asset, &shares, &entryPrice,
		&entryCost, &fees, &closeProceeds, &status, &orderID, &txHash,
		&closeRequestedAt, &closeAttempts, &openedAtStr, &closedAt); err != nil {
		return nil, err
	}

	p := &domain.BotPosition{
		TrackedWallet:        wallet,
		Asset:                asset,
		Status:               domain.PositionStatus(status),
		CloseOrderID:         orderID,
		CloseTransactionHash: txHash,
		CloseAttempts:        closeAttempts,
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse position id %q: %w", id, err)
	}
	if p.LedgerID, err = uuid.Parse(ledgerID); err != nil {
		return nil, fmt.Errorf("parse ledger id %q: %w", ledgerID, err)
	}
	if p.SharesHeld, err = parseDec(shares); err != nil {
		return nil, err
	}
	if p.EntryPrice, err = parseDecPtr(entryPrice); err != nil {
		return nil, err
	}
	if p.EntryCost, err = parseDec(entryCost); err != nil {
		return nil, err
	}
	if p.Fees, err = parseDec(fees); err != nil {
		return nil, err
	}
	if p.CloseProceeds, err = parseDecPtr(closeProceeds); err != nil {
		return nil, err
	}
	if p.CloseRequestedAt, err = parseTimePtr(closeRequestedAt); err != nil {
		return nil, err
	}
	if p.OpenedAt, err = parseTime(openedAtStr); err != nil {
		return nil, err
	}
	if p.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return nil, err
	}
	return p, nil
}
