package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/alejandrodnm/polycopy/internal/queue"
)

// Task is one deduplicated wallet trade waiting for the consumer.
type Task struct {
	Wallet string
	Trade  domain.WalletTrade
}

// Config are the poller knobs.
type Config struct {
	// PollInterval is the wait between trade feed polls per wallet.
	PollInterval time.Duration
	// PageLimit is how many trades each poll requests.
	PageLimit int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 50
	}
	return c
}

// TradeTracker polls one wallet's public trades and enqueues the ones not seen
// before, oldest first. The baseline fetch marks the wallet's whole recent
// history as seen so pre-follow trades are never copied.
type TradeTracker struct {
	log   *slog.Logger
	cfg   Config
	feed  ports.TradeFeed
	seen  ports.SeenTradeStore
	tasks *queue.Queue[Task]
}

func NewTradeTracker(log *slog.Logger, cfg Config, feed ports.TradeFeed, seen ports.SeenTradeStore, tasks *queue.Queue[Task]) *TradeTracker {
	return &TradeTracker{log: log, cfg: cfg.withDefaults(), feed: feed, seen: seen, tasks: tasks}
}

// Run blocks polling the wallet until ctx is cancelled. Returns nil on clean
// shutdown.
func (t *TradeTracker) Run(ctx context.Context, wallet string) error {
	if !domain.IsHexAddress(wallet) {
		return fmt.Errorf("tracker.Run: invalid wallet address %q", domain.MaskAddress(wallet))
	}

	if err := t.markBaseline(ctx, wallet); err != nil {
		return err
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	t.log.Info("tracking wallet", "wallet", domain.MaskAddress(wallet), "poll_interval", t.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.pollOnce(ctx, wallet); err != nil {
				if errors.Is(err, queue.ErrShutdown) || ctx.Err() != nil {
					return nil
				}
				// Errores transitorios de la API no tumban el tracker.
				t.log.Warn("poll failed", "wallet", domain.MaskAddress(wallet), "error", err)
			}
		}
	}
}

// markBaseline marca como vistos los trades previos al inicio del seguimiento.
func (t *TradeTracker) markBaseline(ctx context.Context, wallet string) error {
	trades, err := t.feed.WalletTrades(ctx, wallet, t.cfg.PageLimit, 0)
	if err != nil {
		return fmt.Errorf("tracker.Run: baseline trade fetch: %w", err)
	}
	keys := make([]string, 0, len(trades))
	for _, tr := range trades {
		keys = append(keys, tr.Key())
	}
	if err := t.seen.AddBatch(ctx, wallet, keys); err != nil {
		return fmt.Errorf("tracker.Run: mark baseline trades: %w", err)
	}
	t.log.Info("baseline trades marked", "wallet", domain.MaskAddress(wallet), "count", len(keys))
	return nil
}

func (t *TradeTracker) pollOnce(ctx context.Context, wallet string) error {
	trades, err := t.feed.WalletTrades(ctx, wallet, t.cfg.PageLimit, 0)
	if err != nil {
		return err
	}

	// El feed devuelve los más recientes primero; se procesan en orden
	// cronológico para que el ledger evolucione igual que la wallet.
	for i := len(trades) - 1; i >= 0; i-- {
		tr := trades[i]
		key := tr.Key()

		dup, err := t.seen.Contains(ctx, wallet, key)
		if err != nil {
			return err
		}
		if dup {
			continue
		}
		if err := t.seen.Add(ctx, wallet, key); err != nil {
			return err
		}

		if err := t.tasks.Put(ctx, Task{Wallet: wallet, Trade: tr}); err != nil {
			return err
		}
		t.log.Debug("trade enqueued",
			"wallet", domain.MaskAddress(wallet),
			"asset", tr.Asset,
			"side", string(tr.Side),
			"size", tr.Size,
		)
	}
	return nil
}
