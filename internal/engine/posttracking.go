// Package engine implements the copy-trading core: post-tracking ledger
// accounting and the orchestrator that turns wallet trades into bot orders.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

// PostTracking mantiene los ledgers por (wallet, asset) al día con cada trade
// de la wallet seguida. Es la única pieza que muta baseline/post-baseline.
type PostTracking struct {
	log     *slog.Logger
	ledgers ports.TrackingStore
}

func NewPostTracking(log *slog.Logger, ledgers ports.TrackingStore) *PostTracking {
	return &PostTracking{log: log, ledgers: ledgers}
}

// ApplyTrade updates the (wallet, asset) ledger for one trade and returns the
// updated ledger. Trades with no asset, an unknown side or a non-positive size
// are skipped and return (nil, nil).
func (pt *PostTracking) ApplyTrade(ctx context.Context, wallet string, trade domain.WalletTrade) (*domain.TrackingLedger, error) {
	if trade.Asset == "" {
		pt.log.Warn("skipping trade without asset", "tx_hash", trade.TransactionHash)
		return nil, nil
	}
	if trade.Side != domain.SideBuy && trade.Side != domain.SideSell {
		pt.log.Warn("skipping trade with unknown side", "side", string(trade.Side), "asset", trade.Asset)
		return nil, nil
	}
	if trade.Size.Sign() <= 0 {
		pt.log.Warn("skipping trade with non-positive size", "size", trade.Size, "asset", trade.Asset)
		return nil, nil
	}

	ledger, err := pt.ledgers.GetOrCreate(ctx, wallet, trade.Asset)
	if err != nil {
		return nil, fmt.Errorf("engine.ApplyTrade: get or create ledger: %w", err)
	}

	switch trade.Side {
	case domain.SideBuy:
		ledger = ledger.ApplyBuy(trade.Size)
	case domain.SideSell:
		ledger = ledger.ApplySell(trade.Size)
	}

	if err := pt.ledgers.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("engine.ApplyTrade: save ledger: %w", err)
	}

	pt.log.Debug("ledger updated",
		"wallet", domain.MaskAddress(wallet),
		"asset", ledger.Asset,
		"side", string(trade.Side),
		"size", trade.Size,
		"post_baseline", ledger.PostBaselineShares,
		"baseline", ledger.BaselineShares,
	)
	return ledger, nil
}
