package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// TrackingStore persists TrackingLedger rows keyed by (tracked_wallet, asset).
// Implementations must apply each mutation atomically per ledger row.
type TrackingStore interface {
	// Get returns the ledger, or (nil, nil) if missing.
	Get(ctx context.Context, wallet, asset string) (*domain.TrackingLedger, error)

	// GetOrCreate returns the existing ledger or creates one with zero
	// baseline and post-baseline shares.
	GetOrCreate(ctx context.Context, wallet, asset string) (*domain.TrackingLedger, error)

	// Save upserts the ledger by (tracked_wallet, asset).
	Save(ctx context.Context, ledger *domain.TrackingLedger) error

	// ListByWallet returns every ledger for the wallet.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.TrackingLedger, error)

	// SetCloseStageRef updates only the close stage reference. The ledger must
	// exist; returns the updated row.
	SetCloseStageRef(ctx context.Context, wallet, asset string, ref *decimal.Decimal) (*domain.TrackingLedger, error)
}

// PositionStore persists BotPosition rows and enforces the status state
// machine at the storage boundary: transitions that are not legal return
// (nil, nil) instead of an error.
type PositionStore interface {
	// Get returns the position by id, or (nil, nil) if missing.
	Get(ctx context.Context, id uuid.UUID) (*domain.BotPosition, error)

	// Save upserts the position by id.
	Save(ctx context.Context, p *domain.BotPosition) error

	// ListOpenByLedger returns OPEN positions for the ledger, oldest first.
	ListOpenByLedger(ctx context.Context, ledgerID uuid.UUID) ([]*domain.BotPosition, error)

	// ListOpenByWallet returns OPEN positions for the wallet, oldest first.
	ListOpenByWallet(ctx context.Context, wallet string) ([]*domain.BotPosition, error)

	// ListByWallet returns every position for the wallet, oldest first.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.BotPosition, error)

	// CountActiveLedgers returns how many distinct ledgers of the wallet have
	// at least one OPEN position.
	CountActiveLedgers(ctx context.Context, wallet string) (int, error)

	// MarkClosingPending transitions OPEN or CLOSING_PENDING → CLOSING_PENDING,
	// overwriting close metadata and bumping close_attempts. Returns (nil, nil)
	// if the position is missing or already CLOSED.
	MarkClosingPending(ctx context.Context, id uuid.UUID, orderID, txHash string, requestedAt time.Time) (*domain.BotPosition, error)

	// ConfirmClosed transitions CLOSING_PENDING → CLOSED with the confirmed
	// proceeds and close fee. Returns (nil, nil) if the position is missing or
	// not CLOSING_PENDING.
	ConfirmClosed(ctx context.Context, id uuid.UUID, proceeds, closeFee decimal.Decimal, orderID, txHash string, closedAt time.Time) (*domain.BotPosition, error)

	// ApplyEntryFill overwrites entry_cost and adds the open fee to cumulative
	// fees. Returns (nil, nil) if the position is missing.
	ApplyEntryFill(ctx context.Context, id uuid.UUID, entryCost, openFee decimal.Decimal) (*domain.BotPosition, error)
}

// SeenTradeStore records which trades of a wallet have already been processed.
type SeenTradeStore interface {
	// Add records the key; inserting an existing (wallet, key) is a no-op.
	Add(ctx context.Context, wallet, key string) error

	// AddBatch records many keys at once (baseline fetch).
	AddBatch(ctx context.Context, wallet string, keys []string) error

	// Contains reports whether (wallet, key) was recorded before.
	Contains(ctx context.Context, wallet, key string) (bool, error)
}

// SessionStore persists follow-sessions.
type SessionStore interface {
	// GetActive returns the wallet's ACTIVE session, or (nil, nil).
	GetActive(ctx context.Context, wallet string) (*domain.TrackingSession, error)

	// Save upserts the session by id.
	Save(ctx context.Context, s *domain.TrackingSession) error
}
