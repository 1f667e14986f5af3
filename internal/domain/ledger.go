package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrackingLedger holds, per (tracked wallet, asset), the wallet's share count at
// follow-start (baseline) and the net shares it has traded since (post-baseline).
//
// BaselineShares never drives bot trades directly: it is the reference used to
// absorb SELLs that exceed the post-baseline balance. PostBaselineShares starts
// at 0, increases on wallet BUYs and decreases on wallet SELLs, and is the only
// quantity the open/close policies look at.
type TrackingLedger struct {
	ID            uuid.UUID
	TrackedWallet string
	Asset         string

	BaselineShares     decimal.Decimal
	PostBaselineShares decimal.Decimal

	// CloseStageRef is the post-baseline balance snapshotted when the current
	// progressive-close stage began. Nil until the bot opens its first position
	// for this ledger.
	CloseStageRef *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTrackingLedger creates an empty ledger for (wallet, asset).
func NewTrackingLedger(wallet, asset string) *TrackingLedger {
	now := time.Now().UTC()
	return &TrackingLedger{
		ID:                 uuid.New(),
		TrackedWallet:      wallet,
		Asset:              asset,
		BaselineShares:     decimal.Zero,
		PostBaselineShares: decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// WithBaseline returns a copy with BaselineShares replaced.
func (l *TrackingLedger) WithBaseline(shares decimal.Decimal) *TrackingLedger {
	c := *l
	c.BaselineShares = shares
	c.UpdatedAt = time.Now().UTC()
	return &c
}

// WithPostBaseline returns a copy with PostBaselineShares replaced.
func (l *TrackingLedger) WithPostBaseline(shares decimal.Decimal) *TrackingLedger {
	c := *l
	c.PostBaselineShares = shares
	c.UpdatedAt = time.Now().UTC()
	return &c
}

// WithCloseStageRef returns a copy with CloseStageRef replaced (nil clears it).
func (l *TrackingLedger) WithCloseStageRef(ref *decimal.Decimal) *TrackingLedger {
	c := *l
	if ref != nil {
		v := *ref
		c.CloseStageRef = &v
	} else {
		c.CloseStageRef = nil
	}
	c.UpdatedAt = time.Now().UTC()
	return &c
}

// ApplyBuy returns a copy with size added to PostBaselineShares.
func (l *TrackingLedger) ApplyBuy(size decimal.Decimal) *TrackingLedger {
	return l.WithPostBaseline(l.PostBaselineShares.Add(size))
}

// ApplySell returns a copy with the SELL clamp rule applied: the sale drains
// PostBaselineShares first; any excess erodes BaselineShares, floored at zero.
func (l *TrackingLedger) ApplySell(size decimal.Decimal) *TrackingLedger {
	remaining := l.PostBaselineShares.Sub(size)
	if remaining.Sign() >= 0 {
		return l.WithPostBaseline(remaining)
	}
	excess := remaining.Neg()
	baseline := l.BaselineShares.Sub(excess)
	if baseline.Sign() < 0 {
		baseline = decimal.Zero
	}
	return l.WithPostBaseline(decimal.Zero).WithBaseline(baseline)
}
