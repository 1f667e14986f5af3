package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// OpenInput is everything ShouldOpen needs; the engine gathers it all.
type OpenInput struct {
	Ledger *domain.TrackingLedger

	// OpenPositionsCount is the number of OPEN bot positions for this ledger.
	OpenPositionsCount int
	// ActiveLedgersCount is the number of the wallet's ledgers with at least
	// one open position.
	ActiveLedgersCount int

	// AccountTotalValue is the tracked wallet's cash + positions value.
	AccountTotalValue decimal.Decimal
	// PostTrackingValue is the mark-to-market value of the ledger's
	// post-baseline shares.
	PostTrackingValue decimal.Decimal
}

// ShouldOpen decides whether the bot opens one more position for this ledger.
// Gates are evaluated in order and the first failing gate wins:
//
//  1. per-ledger position cap
//  2. active-ledgers cap (only when this would be the ledger's first position)
//  3. post-baseline shares must be positive
//  4. double threshold: absolute shares OR escalating percent-of-account
func ShouldOpen(in OpenInput, s Settings) (bool, string) {
	if in.OpenPositionsCount >= s.MaxPositionsPerLedger {
		return false, fmt.Sprintf("max_positions_per_ledger reached (%d >= %d)",
			in.OpenPositionsCount, s.MaxPositionsPerLedger)
	}

	if in.OpenPositionsCount == 0 && in.ActiveLedgersCount >= s.MaxActiveLedgers {
		return false, fmt.Sprintf("max_active_ledgers reached (%d >= %d)",
			in.ActiveLedgersCount, s.MaxActiveLedgers)
	}

	post := in.Ledger.PostBaselineShares
	if post.Sign() <= 0 {
		return false, "post_baseline_shares <= 0 (nothing to copy)"
	}

	minShares := decimal.NewFromFloat(s.AssetMinPositionShares)
	if post.Cmp(minShares) >= 0 {
		return true, fmt.Sprintf("shares threshold met (post_baseline_shares=%s >= %s)",
			post, minShares)
	}

	percentEnabled := s.AssetMinPositionPercent > 0 && in.AccountTotalValue.Sign() > 0
	if percentEnabled {
		openPct := in.PostTrackingValue.Div(in.AccountTotalValue)
		// El umbral escala con cada posición abierta adicional en el mismo asset.
		effectivePct := decimal.NewFromFloat(
			float64(in.OpenPositionsCount+1) * s.AssetMinPositionPercent / 100)
		if openPct.Cmp(effectivePct) >= 0 {
			return true, fmt.Sprintf("percent threshold met (open_pct=%s >= effective_pct=%s)",
				openPct.StringFixed(4), effectivePct.StringFixed(4))
		}
		return false, fmt.Sprintf(
			"thresholds not met (shares=%s < %s, open_pct=%s < effective_pct=%s)",
			post, minShares, openPct.StringFixed(4), effectivePct.StringFixed(4))
	}

	return false, fmt.Sprintf(
		"shares threshold not met (post_baseline_shares=%s < %s, percent disabled or no account value)",
		post, minShares)
}
