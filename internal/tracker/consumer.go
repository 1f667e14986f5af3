package tracker

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/engine"
	"github.com/alejandrodnm/polycopy/internal/queue"
)

// Consumer drains the task queue: every trade first updates the ledger, then
// runs the open/close policies. One consumer goroutine keeps ledger updates
// strictly ordered per wallet.
type Consumer struct {
	log   *slog.Logger
	tasks *queue.Queue[Task]
	post  *engine.PostTracking
	eng   *engine.Engine
}

func NewConsumer(log *slog.Logger, tasks *queue.Queue[Task], post *engine.PostTracking, eng *engine.Engine) *Consumer {
	return &Consumer{log: log, tasks: tasks, post: post, eng: eng}
}

// Run blocks consuming tasks until the queue shuts down or ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		task, err := c.tasks.Get(ctx)
		if err != nil {
			// ErrShutdown tras drenar, o ctx cancelado.
			return
		}
		c.handle(ctx, task)
		c.tasks.TaskDone()
	}
}

func (c *Consumer) handle(ctx context.Context, task Task) {
	ledger, err := c.post.ApplyTrade(ctx, task.Wallet, task.Trade)
	if err != nil {
		c.log.Error("ledger update failed",
			"wallet", domain.MaskAddress(task.Wallet),
			"asset", task.Trade.Asset,
			"error", err,
		)
		return
	}
	if ledger == nil {
		return
	}

	if err := c.eng.EvaluateAndExecute(ctx, task.Wallet, task.Trade, ledger); err != nil {
		c.log.Error("copy trade evaluation failed",
			"wallet", domain.MaskAddress(task.Wallet),
			"asset", task.Trade.Asset,
			"error", err,
		)
	}
}
