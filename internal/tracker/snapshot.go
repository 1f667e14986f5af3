// Package tracker sigue las wallets configuradas: construye el snapshot t0,
// sondea sus trades nuevos y los encola para el motor de copia.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

const (
	snapshotPageLimit = 100
	snapshotMaxPages  = 200

	snapshotSourcePositions = "data_api_positions"
)

// SnapshotBuilder fija el baseline de cada ledger con las posiciones actuales
// de la wallet en el momento de empezar a seguirla.
type SnapshotBuilder struct {
	log       *slog.Logger
	positions ports.PositionFeed
	ledgers   ports.TrackingStore
	sessions  ports.SessionStore
}

func NewSnapshotBuilder(log *slog.Logger, positions ports.PositionFeed, ledgers ports.TrackingStore, sessions ports.SessionStore) *SnapshotBuilder {
	return &SnapshotBuilder{log: log, positions: positions, ledgers: ledgers, sessions: sessions}
}

// Build ensures the wallet has an ACTIVE session with a completed t0 snapshot.
// An existing completed snapshot is reused as-is: restarting the bot must not
// reset baselines that positions have been accounted against.
func (b *SnapshotBuilder) Build(ctx context.Context, wallet string) error {
	session, err := b.sessions.GetActive(ctx, wallet)
	if err != nil {
		return fmt.Errorf("tracker.Build: get active session: %w", err)
	}
	if session != nil && session.SnapshotCompletedAt != nil {
		b.log.Info("reusing existing snapshot",
			"wallet", domain.MaskAddress(wallet),
			"completed_at", session.SnapshotCompletedAt,
		)
		return nil
	}
	if session == nil {
		session = domain.NewTrackingSession(wallet)
		if err := b.sessions.Save(ctx, session); err != nil {
			return fmt.Errorf("tracker.Build: save session: %w", err)
		}
	}

	byAsset, err := b.fetchPositions(ctx, wallet)
	if err != nil {
		errored := session.WithEnded(time.Now().UTC(), domain.SessionError)
		if saveErr := b.sessions.Save(ctx, errored); saveErr != nil {
			b.log.Error("could not mark session errored", "error", saveErr)
		}
		return fmt.Errorf("tracker.Build: fetch positions: %w", err)
	}

	for asset, size := range byAsset {
		ledger, err := b.ledgers.GetOrCreate(ctx, wallet, asset)
		if err != nil {
			return fmt.Errorf("tracker.Build: get or create ledger: %w", err)
		}
		ledger = ledger.WithBaseline(size).WithPostBaseline(decimal.Zero)
		if err := b.ledgers.Save(ctx, ledger); err != nil {
			return fmt.Errorf("tracker.Build: save ledger: %w", err)
		}
	}

	session = session.WithSnapshotCompleted(time.Now().UTC(), snapshotSourcePositions)
	if err := b.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("tracker.Build: complete session: %w", err)
	}

	b.log.Info("snapshot completed",
		"wallet", domain.MaskAddress(wallet),
		"assets", len(byAsset),
	)
	return nil
}

// fetchPositions pagina GET /positions y agrega el tamaño por asset.
func (b *SnapshotBuilder) fetchPositions(ctx context.Context, wallet string) (map[string]decimal.Decimal, error) {
	byAsset := make(map[string]decimal.Decimal)
	for page := 0; page < snapshotMaxPages; page++ {
		positions, err := b.positions.WalletPositions(ctx, wallet, snapshotPageLimit, page*snapshotPageLimit)
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			if p.Asset == "" || p.Size.Sign() <= 0 {
				continue
			}
			byAsset[p.Asset] = byAsset[p.Asset].Add(p.Size)
		}
		if len(positions) < snapshotPageLimit {
			return byAsset, nil
		}
	}
	return byAsset, nil
}
