package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// TradeFeed obtiene los trades públicos de una wallet (Data API), los más
// recientes primero.
type TradeFeed interface {
	WalletTrades(ctx context.Context, wallet string, limit, offset int) ([]domain.WalletTrade, error)
}

// PositionFeed obtiene las posiciones actuales de una wallet (Data API).
type PositionFeed interface {
	WalletPositions(ctx context.Context, wallet string, limit, offset int) ([]domain.WalletPosition, error)

	// WalletPositionsValue returns the mark-to-market value of the wallet's
	// open positions.
	WalletPositionsValue(ctx context.Context, wallet string) (decimal.Decimal, error)
}

// BalanceReader reads the wallet's on-chain USDC.e balance.
type BalanceReader interface {
	USDCBalance(ctx context.Context, wallet string) (decimal.Decimal, error)
}

// OrderExecutor submits market orders to the CLOB. Submission is
// fire-and-forget from the engine's point of view: confirmation is the
// reconciliation worker's job.
type OrderExecutor interface {
	// PlaceBuy submits a market buy for a fixed USDC notional.
	PlaceBuy(ctx context.Context, asset string, notional decimal.Decimal) (domain.OrderResult, error)

	// PlaceSellShares submits a market sell for an exact share amount.
	PlaceSellShares(ctx context.Context, asset string, shares decimal.Decimal) (domain.OrderResult, error)
}

// FillFeed returns the authenticated CLOB trade history for one asset, used to
// confirm our own fills.
type FillFeed interface {
	TradesForAsset(ctx context.Context, asset string) ([]domain.ClobTrade, error)
}

// ConfirmationSink renders user-facing messages. Errors are logged by
// implementations and never affect core state.
type ConfirmationSink interface {
	// Confirmed reports a reconciled fill for a position (open or close).
	Confirmed(ctx context.Context, p *domain.BotPosition, fill domain.ClobTrade, isOpen bool)
}
