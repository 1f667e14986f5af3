package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/alejandrodnm/polycopy/internal/queue"
)

// RunnerConfig are the coordination knobs.
type RunnerConfig struct {
	// QueueSize bounds the trade task queue shared by all wallets.
	QueueSize int
	// DrainTimeout bounds how long shutdown waits for queued trades.
	DrainTimeout time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 15 * time.Second
	}
	return c
}

// Runner owns the whole tracking pipeline: one snapshot plus poller goroutine
// per wallet, a single consumer, and the queue between them. Run blocks until
// ctx is cancelled, then drains the queue before returning.
type Runner struct {
	log      *slog.Logger
	cfg      RunnerConfig
	wallets  []string
	snapshot *SnapshotBuilder
	tracker  *TradeTracker
	consumer *Consumer
	tasks    *queue.Queue[Task]
	sessions ports.SessionStore
}

// NewRunner builds the pipeline. tasks must be the same queue handed to the
// tracker and the consumer.
func NewRunner(log *slog.Logger, cfg RunnerConfig, wallets []string, snapshot *SnapshotBuilder, tracker *TradeTracker, consumer *Consumer, tasks *queue.Queue[Task], sessions ports.SessionStore) *Runner {
	return &Runner{
		log:      log,
		cfg:      cfg.withDefaults(),
		wallets:  wallets,
		snapshot: snapshot,
		tracker:  tracker,
		consumer: consumer,
		tasks:    tasks,
		sessions: sessions,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	if len(r.wallets) == 0 {
		return fmt.Errorf("tracker.Run: no wallets configured")
	}

	// El consumidor vive en su propio contexto para poder seguir drenando la
	// cola cuando los pollers ya han parado.
	drainCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		r.consumer.Run(drainCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, wallet := range r.wallets {
		g.Go(func() error {
			if err := r.snapshot.Build(gctx, wallet); err != nil {
				return err
			}
			return r.tracker.Run(gctx, wallet)
		})
	}

	runErr := g.Wait()

	// Parada ordenada: no entran más trades, se drena lo encolado y después
	// se corta el consumidor.
	r.tasks.Shutdown(false)
	drainTimeout, cancel := context.WithTimeout(context.Background(), r.cfg.DrainTimeout)
	defer cancel()
	if err := r.tasks.Join(drainTimeout); err != nil {
		r.log.Warn("trade queue did not drain before timeout", "pending", r.tasks.Len())
		r.tasks.Shutdown(true)
	}
	stopConsumer()
	consumerDone.Wait()

	r.endSessions(runErr)
	return runErr
}

// endSessions cierra las sesiones activas con el estado terminal que toque.
func (r *Runner) endSessions(runErr error) {
	status := domain.SessionEnded
	if runErr != nil {
		status = domain.SessionError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, wallet := range r.wallets {
		session, err := r.sessions.GetActive(ctx, wallet)
		if err != nil || session == nil {
			continue
		}
		ended := session.WithEnded(time.Now().UTC(), status)
		if err := r.sessions.Save(ctx, ended); err != nil {
			r.log.Error("could not end session", "wallet", domain.MaskAddress(wallet), "error", err)
		}
	}
}
