// Package reconcile confirms submitted orders against the authenticated CLOB
// trade feed and promotes positions with the authoritative fill numbers.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/events"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/alejandrodnm/polycopy/internal/queue"
)

// Config are the worker knobs.
type Config struct {
	// QueueSize bounds the pending-confirmation queue.
	QueueSize int
	// MaxAttempts is how many times the CLOB trade feed is polled per order.
	MaxAttempts int
	// PollInterval is the fixed wait between polls.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	return c
}

// Worker consumes OrderPlaced events from an in-process queue, polls the CLOB
// trade feed until the order shows up as a fill, and applies the fill to the
// position. Orders that never show up are reported, never retried forever.
type Worker struct {
	log       *slog.Logger
	cfg       Config
	pending   *queue.Queue[events.OrderPlaced]
	fills     ports.FillFeed
	positions ports.PositionStore
	sink      ports.ConfirmationSink
	bus       *events.Bus

	wg sync.WaitGroup
}

func NewWorker(log *slog.Logger, cfg Config, fills ports.FillFeed, positions ports.PositionStore, sink ports.ConfirmationSink, bus *events.Bus) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		log:       log,
		cfg:       cfg,
		pending:   queue.New[events.OrderPlaced](cfg.QueueSize),
		fills:     fills,
		positions: positions,
		sink:      sink,
		bus:       bus,
	}
}

// Subscribe wires the worker to the bus. Only successful submissions with an
// order id are reconcilable; the rest were already reported by the engine.
func (w *Worker) Subscribe() {
	w.bus.Subscribe(events.KindOrderPlaced, func(ev events.Event) {
		placed, ok := ev.(events.OrderPlaced)
		if !ok || !placed.Success || placed.OrderID == "" {
			return
		}
		if err := w.pending.TryPut(placed); err != nil {
			w.log.Error("confirmation queue rejected order", "order_id", placed.OrderID, "error", err)
			if errors.Is(err, queue.ErrFull) {
				w.bus.Publish(events.CopyTradeFailed{
					Reason:        "queue_full",
					PositionID:    placed.PositionID,
					OrderID:       placed.OrderID,
					TrackedWallet: placed.TrackedWallet,
					Asset:         placed.Asset,
					IsOpen:        placed.IsOpen,
					ErrorMessage:  "confirmation queue full, order will not be reconciled",
				})
			}
		}
	})
}

// Start launches the consumer goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			ev, err := w.pending.Get(ctx)
			if err != nil {
				return
			}
			w.process(ctx, ev)
			w.pending.TaskDone()
		}
	}()
}

// Stop drains the queue and waits for in-flight work, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) {
	w.pending.Shutdown(false)
	if err := w.pending.Join(ctx); err != nil {
		w.log.Warn("confirmation queue did not drain", "error", err)
		w.pending.Shutdown(true)
	}
	w.wg.Wait()
}

// matchedFill is a located fill plus the numeric strings that apply to our
// order (maker sub-order fields when we matched as maker, trade-level fields
// otherwise).
type matchedFill struct {
	trade  domain.ClobTrade
	size   string
	price  string
	feeBps string
}

func (w *Worker) process(ctx context.Context, ev events.OrderPlaced) {
	fill, found := w.pollForFill(ctx, ev)
	if !found {
		w.reportNotFound(ctx, ev)
		return
	}

	size, err := decimal.NewFromString(fill.size)
	if err != nil {
		w.reportParseError(ev, fmt.Errorf("size %q: %w", fill.size, err))
		return
	}
	price, err := decimal.NewFromString(fill.price)
	if err != nil {
		w.reportParseError(ev, fmt.Errorf("price %q: %w", fill.price, err))
		return
	}
	feeBps := decimal.Zero
	if fill.feeBps != "" {
		feeBps, err = decimal.NewFromString(fill.feeBps)
		if err != nil {
			w.reportParseError(ev, fmt.Errorf("fee_rate_bps %q: %w", fill.feeBps, err))
			return
		}
	}

	notional := size.Mul(price)
	fee := notional.Mul(feeBps).Div(decimal.NewFromInt(10000))

	var updated *domain.BotPosition
	if ev.IsOpen {
		updated, err = w.positions.ApplyEntryFill(ctx, ev.PositionID, notional, fee)
	} else {
		updated, err = w.positions.ConfirmClosed(ctx, ev.PositionID, notional, fee, ev.OrderID, fill.trade.TransactionHash, time.Now().UTC())
	}
	if err != nil {
		w.log.Error("position update failed", "position_id", ev.PositionID, "error", err)
		w.publishFailure(ev, "position_update_failed", err.Error())
		return
	}
	if updated == nil {
		// Missing row, or a close confirm raced a state change.
		reason := "position_not_found"
		if !ev.IsOpen {
			reason = "position_update_failed"
		}
		w.publishFailure(ev, reason, "position missing or not in a confirmable state")
		return
	}

	w.log.Info("fill confirmed",
		"position_id", updated.ID,
		"order_id", ev.OrderID,
		"is_open", ev.IsOpen,
		"notional", notional,
		"fee", fee,
	)
	w.sink.Confirmed(ctx, updated, fill.trade, ev.IsOpen)
	w.bus.Publish(events.PositionConfirmed{
		PositionID:    updated.ID,
		TrackedWallet: ev.TrackedWallet,
		Asset:         ev.Asset,
		IsOpen:        ev.IsOpen,
		OrderID:       ev.OrderID,
	})
}

// pollForFill queries the trade feed up to MaxAttempts times with a fixed wait
// in between. Feed errors count as a miss for that attempt.
func (w *Worker) pollForFill(ctx context.Context, ev events.OrderPlaced) (matchedFill, bool) {
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		trades, err := w.fills.TradesForAsset(ctx, ev.Asset)
		if err != nil {
			w.log.Warn("trade feed query failed", "asset", ev.Asset, "attempt", attempt, "error", err)
		} else if fill, ok := matchOrder(trades, ev.OrderID, ev.TransactionHash); ok {
			return fill, true
		}

		if attempt == w.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return matchedFill{}, false
		case <-time.After(w.cfg.PollInterval):
		}
	}
	return matchedFill{}, false
}

// matchOrder busca nuestro fill: primero como maker sub-order, luego como
// taker, y por último por transaction hash.
func matchOrder(trades []domain.ClobTrade, orderID, txHash string) (matchedFill, bool) {
	for _, t := range trades {
		for _, m := range t.MakerOrders {
			if m.OrderID == orderID {
				return matchedFill{trade: t, size: m.MatchedAmt, price: m.Price, feeBps: m.FeeRateBps}, true
			}
		}
	}
	for _, t := range trades {
		if t.TakerOrderID == orderID {
			return matchedFill{trade: t, size: t.Size, price: t.Price, feeBps: t.FeeRateBps}, true
		}
	}
	if txHash != "" {
		for _, t := range trades {
			if t.TransactionHash == txHash {
				return matchedFill{trade: t, size: t.Size, price: t.Price, feeBps: t.FeeRateBps}, true
			}
		}
	}
	return matchedFill{}, false
}

func (w *Worker) reportNotFound(ctx context.Context, ev events.OrderPlaced) {
	w.log.Error("order not found in trade feed",
		"order_id", ev.OrderID,
		"asset", ev.Asset,
		"attempts", w.cfg.MaxAttempts,
	)
	failed := events.CopyTradeFailed{
		Reason:        "trade_not_found",
		PositionID:    ev.PositionID,
		OrderID:       ev.OrderID,
		TrackedWallet: ev.TrackedWallet,
		Asset:         ev.Asset,
		IsOpen:        ev.IsOpen,
		ErrorMessage:  fmt.Sprintf("no fill after %d attempts", w.cfg.MaxAttempts),
	}
	if !ev.IsOpen {
		// Un cierre sin fill queda CLOSING_PENDING; adjunta el contexto del
		// intento para que el operador pueda seguirlo.
		if p, err := w.positions.Get(ctx, ev.PositionID); err == nil && p != nil {
			failed.TransactionHash = p.CloseTransactionHash
			failed.CloseRequestedAt = p.CloseRequestedAt
			failed.CloseAttempts = p.CloseAttempts
		}
	}
	w.bus.Publish(failed)
}

func (w *Worker) reportParseError(ev events.OrderPlaced, err error) {
	w.log.Error("unparseable fill", "order_id", ev.OrderID, "error", err)
	w.publishFailure(ev, "parse_trade_error", err.Error())
}

func (w *Worker) publishFailure(ev events.OrderPlaced, reason, msg string) {
	w.bus.Publish(events.CopyTradeFailed{
		Reason:        reason,
		PositionID:    ev.PositionID,
		OrderID:       ev.OrderID,
		TrackedWallet: ev.TrackedWallet,
		Asset:         ev.Asset,
		IsOpen:        ev.IsOpen,
		ErrorMessage:  msg,
	})
}
