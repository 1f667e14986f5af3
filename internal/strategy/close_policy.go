package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// CloseInput is everything PositionsToClose needs; the engine gathers it all.
type CloseInput struct {
	Ledger *domain.TrackingLedger

	// OpenPositionsCount is the number of OPEN bot positions for this ledger.
	OpenPositionsCount int
}

// PositionsToClose decides how many of the ledger's open positions to close on
// a wallet SELL, using progressive staged closing:
//
//	stage_pct_closed = (ref - post_baseline) / ref * 100
//	per_position_pct = close_total_threshold_pct / open_positions_count
//	n                = floor(stage_pct_closed / per_position_pct)
//
// clamped to [0, open_positions_count]. Each open lot represents an equal
// slice of the total close threshold, so the bot unwinds one lot at a time as
// the wallet sells through its own post-baseline position.
func PositionsToClose(in CloseInput, s Settings) (int, string) {
	if in.OpenPositionsCount <= 0 {
		return 0, "no open positions to close"
	}

	ref := in.Ledger.CloseStageRef
	if ref == nil || ref.Sign() <= 0 {
		return 0, fmt.Sprintf("stage reference not set or <= 0 (close_stage_ref=%v)", ref)
	}

	post := in.Ledger.PostBaselineShares
	if post.Cmp(*ref) >= 0 {
		return 0, fmt.Sprintf("no close stage progress (post_baseline=%s >= ref=%s)", post, ref)
	}

	stagePctClosed, _ := ref.Sub(post).Div(*ref).Mul(decimal.NewFromInt(100)).Float64()

	perPosition := s.CloseTotalThresholdPct / float64(in.OpenPositionsCount)
	if perPosition <= 0 {
		return 0, "per_position_pct <= 0 (close_total_threshold_pct or open_positions_count invalid)"
	}

	n := int(math.Floor(stagePctClosed / perPosition))
	if n < 0 {
		n = 0
	}
	if n > in.OpenPositionsCount {
		n = in.OpenPositionsCount
	}

	if n == 0 {
		return 0, fmt.Sprintf("stage_pct_closed=%.2f%% < per_position_pct=%.2f%% (threshold %.1f%% / %d positions)",
			stagePctClosed, perPosition, s.CloseTotalThresholdPct, in.OpenPositionsCount)
	}

	return n, fmt.Sprintf("close %d positions: stage_pct_closed=%.2f%%, per_position_pct=%.2f%%",
		n, stagePctClosed, perPosition)
}
