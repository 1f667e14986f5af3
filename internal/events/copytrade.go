package events

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the copy-trading engine and the reconciliation worker.
const (
	KindOrderPlaced       = "copytrade.order_placed"
	KindCopyTradeFailed   = "copytrade.failed"
	KindPositionConfirmed = "copytrade.position_confirmed"
)

// AmountKind says what the Amount of an order event denominates.
type AmountKind string

const (
	AmountUSDC   AmountKind = "usdc"
	AmountShares AmountKind = "shares"
)

// OrderPlaced is emitted after the engine submits a market order (open or
// close). It carries everything the reconciliation worker needs to match the
// order against the CLOB trade feed.
type OrderPlaced struct {
	OrderID         string
	PositionID      uuid.UUID
	TrackedWallet   string
	Asset           string
	IsOpen          bool
	Amount          float64
	AmountKind      AmountKind
	Success         bool
	TransactionHash string
}

func (OrderPlaced) Kind() string { return KindOrderPlaced }

// CopyTradeFailed is emitted whenever a copy trade cannot complete. Reason is
// one of: order_placement_failed, trade_not_found, position_not_found,
// position_update_failed, queue_full, parse_trade_error.
type CopyTradeFailed struct {
	Reason          string
	PositionID      uuid.UUID
	OrderID         string
	TrackedWallet   string
	Asset           string
	IsOpen          bool
	ErrorMessage    string
	TransactionHash string

	// Close-tracking context, populated when the failing order was a close.
	CloseRequestedAt *time.Time
	CloseAttempts    int
}

func (CopyTradeFailed) Kind() string { return KindCopyTradeFailed }

// PositionConfirmed is emitted by the reconciliation worker once a fill has
// been matched and the position updated with authoritative numbers.
type PositionConfirmed struct {
	PositionID    uuid.UUID
	TrackedWallet string
	Asset         string
	IsOpen        bool
	OrderID       string
}

func (PositionConfirmed) Kind() string { return KindPositionConfirmed }
