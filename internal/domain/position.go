package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle of a bot-owned position.
//
// OPEN → CLOSING_PENDING → CLOSED. CLOSING_PENDING is re-entrant: re-requesting
// a close overwrites the order/tx metadata and bumps CloseAttempts instead of
// creating a new transition.
type PositionStatus string

const (
	StatusOpen           PositionStatus = "OPEN"
	StatusClosingPending PositionStatus = "CLOSING_PENDING"
	StatusClosed         PositionStatus = "CLOSED"
)

// BotPosition is one position the bot opened while copying a tracked wallet.
// The orchestrator creates it OPEN and may request closing; only the
// reconciliation worker confirms it CLOSED, with the authoritative proceeds and
// fees from the matched CLOB fill.
type BotPosition struct {
	ID       uuid.UUID
	LedgerID uuid.UUID

	TrackedWallet string
	Asset         string

	SharesHeld decimal.Decimal
	EntryPrice *decimal.Decimal
	// EntryCost is the cost basis. Set from the configured notional at open and
	// later overwritten with the matched fill's notional.
	EntryCost     decimal.Decimal
	Fees          decimal.Decimal
	CloseProceeds *decimal.Decimal

	Status PositionStatus

	CloseOrderID         string
	CloseTransactionHash string
	CloseRequestedAt     *time.Time
	CloseAttempts        int

	OpenedAt time.Time
	ClosedAt *time.Time
}

// NewBotPosition creates an OPEN position.
func NewBotPosition(ledgerID uuid.UUID, wallet, asset string, shares decimal.Decimal, entryPrice *decimal.Decimal, entryCost decimal.Decimal) *BotPosition {
	return &BotPosition{
		ID:            uuid.New(),
		LedgerID:      ledgerID,
		TrackedWallet: wallet,
		Asset:         asset,
		SharesHeld:    shares,
		EntryPrice:    entryPrice,
		EntryCost:     entryCost,
		Fees:          decimal.Zero,
		Status:        StatusOpen,
		OpenedAt:      time.Now().UTC(),
	}
}

// IsOpen reports whether the position is still OPEN.
func (p *BotPosition) IsOpen() bool { return p.Status == StatusOpen }

// IsClosingPending reports whether a close has been requested but not confirmed.
func (p *BotPosition) IsClosingPending() bool { return p.Status == StatusClosingPending }

// WithClosingPending returns a copy transitioned to CLOSING_PENDING, recording
// the close order metadata and bumping CloseAttempts. Valid from OPEN and,
// re-entrantly, from CLOSING_PENDING; returns nil from CLOSED.
func (p *BotPosition) WithClosingPending(orderID, txHash string, requestedAt time.Time) *BotPosition {
	if p.Status == StatusClosed {
		return nil
	}
	c := *p
	c.Status = StatusClosingPending
	c.CloseOrderID = orderID
	c.CloseTransactionHash = txHash
	t := requestedAt.UTC()
	c.CloseRequestedAt = &t
	c.CloseAttempts = p.CloseAttempts + 1
	return &c
}

// WithClosed returns a copy transitioned to CLOSED with the confirmed proceeds
// and close fee. Only reachable from CLOSING_PENDING; any other status returns
// nil (no update).
func (p *BotPosition) WithClosed(proceeds, closeFee decimal.Decimal, orderID, txHash string, closedAt time.Time) *BotPosition {
	if p.Status != StatusClosingPending {
		return nil
	}
	c := *p
	c.Status = StatusClosed
	v := proceeds
	c.CloseProceeds = &v
	c.Fees = p.Fees.Add(closeFee)
	if orderID != "" {
		c.CloseOrderID = orderID
	}
	if txHash != "" {
		c.CloseTransactionHash = txHash
	}
	t := closedAt.UTC()
	c.ClosedAt = &t
	return &c
}

// WithEntryFill returns a copy with the cost basis overwritten by the matched
// fill's notional and the open fee added to cumulative fees.
func (p *BotPosition) WithEntryFill(entryCost, openFee decimal.Decimal) *BotPosition {
	c := *p
	c.EntryCost = entryCost
	c.Fees = p.Fees.Add(openFee)
	return &c
}
