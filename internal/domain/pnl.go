package domain

import "github.com/shopspring/decimal"

// PnL is the realized result of a position. Realized and Net are nil while the
// position is not CLOSED or the close proceeds are missing.
type PnL struct {
	Realized *decimal.Decimal
	Net      *decimal.Decimal
	Fees     decimal.Decimal
}

// ComputePnL derives PnL from a position. Pure; no side effects.
//
//	realized = close_proceeds - entry_cost
//	net      = realized - fees
func ComputePnL(p *BotPosition) PnL {
	out := PnL{Fees: p.Fees}
	if p.Status != StatusClosed || p.CloseProceeds == nil {
		return out
	}
	realized := p.CloseProceeds.Sub(p.EntryCost)
	net := realized.Sub(p.Fees)
	out.Realized = &realized
	out.Net = &net
	return out
}
