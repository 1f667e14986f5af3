// Package strategy contains the pure decision policies of the copy trader.
// No I/O: the engine gathers every input and the policies only decide, always
// returning a human-readable reason alongside the decision.
package strategy

// Settings are the strategy knobs, taken from config.
type Settings struct {
	// MaxPositionsPerLedger caps open bot positions per (wallet, asset) ledger.
	MaxPositionsPerLedger int
	// MaxActiveLedgers caps how many distinct assets may hold open positions
	// at once for one tracked wallet.
	MaxActiveLedgers int
	// AssetMinPositionShares is the absolute post-baseline share threshold.
	AssetMinPositionShares float64
	// AssetMinPositionPercent enables the percent gate when > 0: the tracked
	// position's value as a share of the account, escalated per open position.
	AssetMinPositionPercent float64
	// CloseTotalThresholdPct is the wallet sell-through (in percent of the
	// stage reference) at which all open positions are closed.
	CloseTotalThresholdPct float64
}
