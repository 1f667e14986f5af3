package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/ports"
)

// AccountValue computes a tracked wallet's total value: on-chain USDC.e cash
// plus the mark-to-market value of its open positions.
type AccountValue struct {
	log       *slog.Logger
	balances  ports.BalanceReader
	positions ports.PositionFeed
}

func NewAccountValue(log *slog.Logger, balances ports.BalanceReader, positions ports.PositionFeed) *AccountValue {
	return &AccountValue{log: log, balances: balances, positions: positions}
}

const (
	markPageLimit = 100
	markMaxPages  = 200
)

// TotalValue suma cash + posiciones. Si una de las dos patas falla devuelve el
// error; el orquestador decide qué hacer con él.
func (a *AccountValue) TotalValue(ctx context.Context, wallet string) (decimal.Decimal, error) {
	cash, err := a.balances.USDCBalance(ctx, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine.TotalValue: usdc balance: %w", err)
	}

	positions, err := a.positions.WalletPositionsValue(ctx, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine.TotalValue: positions value: %w", err)
	}

	total := cash.Add(positions)
	a.log.Debug("account value", "cash", cash, "positions", positions, "total", total)
	return total, nil
}

// AssetMarkPrice busca el curPrice del asset entre las posiciones actuales de
// la wallet. Best-effort: si la API falla o el asset no aparece devuelve cero
// y el gate porcentual queda deshabilitado para esta evaluación.
func (a *AccountValue) AssetMarkPrice(ctx context.Context, wallet, asset string) decimal.Decimal {
	for page := 0; page < markMaxPages; page++ {
		positions, err := a.positions.WalletPositions(ctx, wallet, markPageLimit, page*markPageLimit)
		if err != nil {
			a.log.Warn("mark price unavailable", "asset", asset, "error", err)
			return decimal.Zero
		}
		for _, p := range positions {
			if p.Asset == asset {
				return p.CurPrice
			}
		}
		if len(positions) < markPageLimit {
			return decimal.Zero
		}
	}
	return decimal.Zero
}
