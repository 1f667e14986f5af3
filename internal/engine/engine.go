package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/events"
	"github.com/alejandrodnm/polycopy/internal/ports"
	"github.com/alejandrodnm/polycopy/internal/strategy"
)

// Config are the orchestrator knobs.
type Config struct {
	// NotionalUSDC is the fixed size, in USDC, of every position the bot opens.
	NotionalUSDC float64
	Strategy     strategy.Settings
}

// Engine decides and executes copy trades for every ledger update. It submits
// orders fire-and-forget; the reconciliation worker picks up the emitted
// OrderPlaced events and confirms fills against the CLOB trade feed.
type Engine struct {
	log       *slog.Logger
	cfg       Config
	ledgers   ports.TrackingStore
	positions ports.PositionStore
	executor  ports.OrderExecutor
	account   *AccountValue
	bus       *events.Bus
}

func New(log *slog.Logger, cfg Config, ledgers ports.TrackingStore, positions ports.PositionStore, executor ports.OrderExecutor, account *AccountValue, bus *events.Bus) *Engine {
	return &Engine{
		log:       log,
		cfg:       cfg,
		ledgers:   ledgers,
		positions: positions,
		executor:  executor,
		account:   account,
		bus:       bus,
	}
}

// EvaluateAndExecute runs the open or close policy for an already-applied
// trade and executes whatever it decides. ledger is the post-update row.
func (e *Engine) EvaluateAndExecute(ctx context.Context, wallet string, trade domain.WalletTrade, ledger *domain.TrackingLedger) error {
	if ledger == nil {
		return nil
	}
	switch trade.Side {
	case domain.SideBuy:
		return e.handleBuy(ctx, wallet, trade, ledger)
	case domain.SideSell:
		return e.handleSell(ctx, wallet, trade, ledger)
	}
	return nil
}

func (e *Engine) handleBuy(ctx context.Context, wallet string, trade domain.WalletTrade, ledger *domain.TrackingLedger) error {
	open, err := e.positions.ListOpenByLedger(ctx, ledger.ID)
	if err != nil {
		return fmt.Errorf("engine.handleBuy: list open positions: %w", err)
	}
	activeLedgers, err := e.positions.CountActiveLedgers(ctx, wallet)
	if err != nil {
		return fmt.Errorf("engine.handleBuy: count active ledgers: %w", err)
	}

	// Las dos valoraciones son best-effort: si la API o el RPC fallan se
	// evalúa solo con el umbral absoluto de shares. El post-tracking se valora
	// al curPrice actual de la posición, no al precio del trade que disparó.
	accountValue := decimal.Zero
	if v, err := e.account.TotalValue(ctx, wallet); err != nil {
		e.log.Warn("account value unavailable, percent gate disabled", "error", err)
	} else {
		accountValue = v
	}
	postValue := decimal.Zero
	if mark := e.account.AssetMarkPrice(ctx, wallet, ledger.Asset); mark.Sign() > 0 {
		postValue = ledger.PostBaselineShares.Mul(mark)
	}

	ok, reason := strategy.ShouldOpen(strategy.OpenInput{
		Ledger:             ledger,
		OpenPositionsCount: len(open),
		ActiveLedgersCount: activeLedgers,
		AccountTotalValue:  accountValue,
		PostTrackingValue:  postValue,
	}, e.cfg.Strategy)
	if !ok {
		e.log.Debug("open denied", "asset", ledger.Asset, "reason", reason)
		return nil
	}
	e.log.Info("opening position", "asset", ledger.Asset, "reason", reason)

	notional := decimal.NewFromFloat(e.cfg.NotionalUSDC)
	res, err := e.executor.PlaceBuy(ctx, ledger.Asset, notional)
	if err != nil || !res.Success {
		msg := res.Error
		if err != nil {
			msg = err.Error()
		}
		e.log.Error("buy submission failed", "asset", ledger.Asset, "error", msg)
		e.bus.Publish(events.CopyTradeFailed{
			Reason:          "order_placement_failed",
			OrderID:         res.OrderID,
			TrackedWallet:   wallet,
			Asset:           ledger.Asset,
			IsOpen:          true,
			ErrorMessage:    msg,
			TransactionHash: res.FirstTransactionHash(),
		})
		return nil
	}

	// shares_held es una estimación a partir del precio del trade copiado; el
	// worker de reconciliación la corrige con el fill real.
	shares := notional
	var entryPrice *decimal.Decimal
	if trade.Price.Sign() > 0 {
		shares = notional.Div(trade.Price)
		p := trade.Price
		entryPrice = &p
	}
	if shares.Sign() <= 0 {
		shares = notional
	}

	pos := domain.NewBotPosition(ledger.ID, wallet, ledger.Asset, shares, entryPrice, notional)
	if err := e.positions.Save(ctx, pos); err != nil {
		return fmt.Errorf("engine.handleBuy: save position: %w", err)
	}

	if ledger.CloseStageRef == nil {
		ref := ledger.PostBaselineShares
		if _, err := e.ledgers.SetCloseStageRef(ctx, wallet, ledger.Asset, &ref); err != nil {
			return fmt.Errorf("engine.handleBuy: init close stage ref: %w", err)
		}
	}

	notionalF, _ := notional.Float64()
	e.bus.Publish(events.OrderPlaced{
		OrderID:         res.OrderID,
		PositionID:      pos.ID,
		TrackedWallet:   wallet,
		Asset:           ledger.Asset,
		IsOpen:          true,
		Amount:          notionalF,
		AmountKind:      events.AmountUSDC,
		Success:         true,
		TransactionHash: res.FirstTransactionHash(),
	})
	return nil
}

func (e *Engine) handleSell(ctx context.Context, wallet string, trade domain.WalletTrade, ledger *domain.TrackingLedger) error {
	open, err := e.positions.ListOpenByLedger(ctx, ledger.ID)
	if err != nil {
		return fmt.Errorf("engine.handleSell: list open positions: %w", err)
	}

	n, reason := strategy.PositionsToClose(strategy.CloseInput{
		Ledger:             ledger,
		OpenPositionsCount: len(open),
	}, e.cfg.Strategy)
	if n == 0 {
		e.log.Debug("close skipped", "asset", ledger.Asset, "reason", reason)
		return nil
	}
	e.log.Info("closing positions", "asset", ledger.Asset, "count", n, "reason", reason)

	transitioned := 0
	for _, pos := range open[:n] {
		ok, err := e.closePosition(ctx, wallet, pos)
		if err != nil {
			return err
		}
		if ok {
			transitioned++
		}
	}

	if transitioned > 0 {
		// Arranca una nueva etapa: el siguiente cierre se mide contra el
		// balance post-baseline que queda ahora.
		ref := ledger.PostBaselineShares
		if _, err := e.ledgers.SetCloseStageRef(ctx, wallet, ledger.Asset, &ref); err != nil {
			return fmt.Errorf("engine.handleSell: reset close stage ref: %w", err)
		}
	}
	return nil
}

// closePosition submits the sell and marks the position CLOSING_PENDING even
// when submission fails, so the reconciliation worker and the operator can see
// the attempt. Only fill confirmation moves a position to CLOSED. Reports
// whether the position actually transitioned: vanished rows do not count
// toward the caller's stage-reference reset.
func (e *Engine) closePosition(ctx context.Context, wallet string, pos *domain.BotPosition) (bool, error) {
	res, submitErr := e.executor.PlaceSellShares(ctx, pos.Asset, pos.SharesHeld)

	updated, err := e.positions.MarkClosingPending(ctx, pos.ID, res.OrderID, res.FirstTransactionHash(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("engine.closePosition: mark closing pending: %w", err)
	}
	if updated == nil {
		e.log.Warn("position vanished before close", "position_id", pos.ID)
		e.bus.Publish(events.CopyTradeFailed{
			Reason:        "position_not_found",
			PositionID:    pos.ID,
			OrderID:       res.OrderID,
			TrackedWallet: wallet,
			Asset:         pos.Asset,
			IsOpen:        false,
		})
		return false, nil
	}

	if submitErr != nil || !res.Success {
		msg := res.Error
		if submitErr != nil {
			msg = submitErr.Error()
		}
		e.log.Error("sell submission failed", "asset", pos.Asset, "position_id", pos.ID, "error", msg)
		e.bus.Publish(events.CopyTradeFailed{
			Reason:           "order_placement_failed",
			PositionID:       updated.ID,
			OrderID:          res.OrderID,
			TrackedWallet:    wallet,
			Asset:            pos.Asset,
			IsOpen:           false,
			ErrorMessage:     msg,
			TransactionHash:  res.FirstTransactionHash(),
			CloseRequestedAt: updated.CloseRequestedAt,
			CloseAttempts:    updated.CloseAttempts,
		})
		return true, nil
	}

	shares, _ := pos.SharesHeld.Float64()
	e.bus.Publish(events.OrderPlaced{
		OrderID:         res.OrderID,
		PositionID:      updated.ID,
		TrackedWallet:   wallet,
		Asset:           pos.Asset,
		IsOpen:          false,
		Amount:          shares,
		AmountKind:      events.AmountShares,
		Success:         true,
		TransactionHash: res.FirstTransactionHash(),
	})
	return true, nil
}
