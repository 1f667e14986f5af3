package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/engine"
	"github.com/alejandrodnm/polycopy/internal/events"
	"github.com/alejandrodnm/polycopy/internal/strategy"
)

type engineFixture struct {
	eng       *engine.Engine
	ledgers   *memTrackingStore
	positions *memPositionStore
	executor  *stubExecutor
	feed      *stubPositionFeed
	placed    *[]events.OrderPlaced
	failed    *[]events.CopyTradeFailed
}

func newEngineFixture(t *testing.T, executor *stubExecutor) *engineFixture {
	t.Helper()

	ledgers := newMemTrackingStore()
	positions := newMemPositionStore()
	bus := events.NewBus()

	var placed []events.OrderPlaced
	var failed []events.CopyTradeFailed
	bus.Subscribe(events.KindOrderPlaced, func(ev events.Event) {
		placed = append(placed, ev.(events.OrderPlaced))
	})
	bus.Subscribe(events.KindCopyTradeFailed, func(ev events.Event) {
		failed = append(failed, ev.(events.CopyTradeFailed))
	})

	feed := &stubPositionFeed{value: decimal.NewFromInt(500)}
	account := engine.NewAccountValue(testLogger(),
		&stubBalances{balance: decimal.NewFromInt(500)},
		feed,
	)

	cfg := engine.Config{
		NotionalUSDC: 10,
		Strategy: strategy.Settings{
			MaxPositionsPerLedger:   3,
			MaxActiveLedgers:        5,
			AssetMinPositionShares:  50,
			AssetMinPositionPercent: 2,
			CloseTotalThresholdPct:  80,
		},
	}

	eng := engine.New(testLogger(), cfg, ledgers, positions, executor, account, bus)
	return &engineFixture{
		eng:       eng,
		ledgers:   ledgers,
		positions: positions,
		executor:  executor,
		feed:      feed,
		placed:    &placed,
		failed:    &failed,
	}
}

func (f *engineFixture) seedLedger(t *testing.T, post float64, ref *float64) *domain.TrackingLedger {
	t.Helper()
	l := domain.NewTrackingLedger(testWallet, "token-1").
		WithPostBaseline(decimal.NewFromFloat(post))
	if ref != nil {
		r := decimal.NewFromFloat(*ref)
		l = l.WithCloseStageRef(&r)
	}
	require.NoError(t, f.ledgers.Save(context.Background(), l))
	return l
}

func (f *engineFixture) seedOpenPosition(t *testing.T, ledger *domain.TrackingLedger, shares float64, openedAt time.Time) *domain.BotPosition {
	t.Helper()
	entry := decimal.NewFromFloat(0.5)
	p := domain.NewBotPosition(ledger.ID, testWallet, ledger.Asset,
		decimal.NewFromFloat(shares), &entry, decimal.NewFromInt(10))
	p.OpenedAt = openedAt
	require.NoError(t, f.positions.Save(context.Background(), p))
	return p
}

func TestHandleBuy_OpensPosition(t *testing.T) {
	executor := &stubExecutor{buyRes: domain.OrderResult{
		Success:           true,
		OrderID:           "order-1",
		TransactionHashes: []string{"0xhash1"},
	}}
	f := newEngineFixture(t, executor)
	ledger := f.seedLedger(t, 100, nil)

	trade := makeTrade(domain.SideBuy, 100)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	require.Len(t, executor.buyCalls, 1)
	assert.True(t, executor.buyCalls[0].Equal(decimal.NewFromInt(10)))

	open, err := f.positions.ListOpenByLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	// notional 10 al precio 0.5 → 20 shares estimadas
	assert.True(t, open[0].SharesHeld.Equal(decimal.NewFromInt(20)))
	assert.True(t, open[0].EntryCost.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, open[0].EntryPrice)

	// La primera posición fija la referencia de etapa de cierre.
	saved, err := f.ledgers.Get(context.Background(), testWallet, "token-1")
	require.NoError(t, err)
	require.NotNil(t, saved.CloseStageRef)
	assert.True(t, saved.CloseStageRef.Equal(decimal.NewFromInt(100)))

	require.Len(t, *f.placed, 1)
	ev := (*f.placed)[0]
	assert.True(t, ev.IsOpen)
	assert.True(t, ev.Success)
	assert.Equal(t, "order-1", ev.OrderID)
	assert.Equal(t, events.AmountUSDC, ev.AmountKind)
	assert.Equal(t, 10.0, ev.Amount)
	assert.Equal(t, "0xhash1", ev.TransactionHash)
	assert.Empty(t, *f.failed)
}

func TestHandleBuy_DeniedBelowThresholds(t *testing.T) {
	executor := &stubExecutor{}
	f := newEngineFixture(t, executor)
	// post=4 < 50 shares; sin posiciones en el feed no hay mark price y el
	// gate porcentual tampoco abre.
	ledger := f.seedLedger(t, 4, nil)

	trade := makeTrade(domain.SideBuy, 4)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	assert.Empty(t, executor.buyCalls)
	open, err := f.positions.ListOpenByLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Empty(t, *f.placed)
}

func TestHandleBuy_PercentGateUsesMarkPrice(t *testing.T) {
	executor := &stubExecutor{buyRes: domain.OrderResult{Success: true, OrderID: "order-1"}}
	f := newEngineFixture(t, executor)
	f.feed.positions = []domain.WalletPosition{
		{Asset: "token-other", CurPrice: decimal.NewFromFloat(0.1)},
		{Asset: "token-1", CurPrice: decimal.NewFromFloat(0.8)},
	}
	// post=30 < 50 shares. Al curPrice actual 30×0.8=24 sobre cuenta 1000 =
	// 2.4% >= 2%; al precio del trade (0.1) serían 3 y no abriría.
	ledger := f.seedLedger(t, 30, nil)

	trade := makeTrade(domain.SideBuy, 30)
	trade.Price = decimal.NewFromFloat(0.1)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	require.Len(t, executor.buyCalls, 1)
	open, err := f.positions.ListOpenByLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestHandleBuy_MarkPriceUnavailableDeniesPercentGate(t *testing.T) {
	executor := &stubExecutor{}
	f := newEngineFixture(t, executor)
	f.feed.err = errors.New("data api: 503")
	ledger := f.seedLedger(t, 30, nil)

	trade := makeTrade(domain.SideBuy, 30)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	assert.Empty(t, executor.buyCalls)
	assert.Empty(t, *f.placed)
}

func TestHandleBuy_SubmissionFailure(t *testing.T) {
	executor := &stubExecutor{buyRes: domain.OrderResult{
		Success: false,
		Error:   "not enough balance / allowance",
	}}
	f := newEngineFixture(t, executor)
	ledger := f.seedLedger(t, 100, nil)

	trade := makeTrade(domain.SideBuy, 100)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	open, err := f.positions.ListOpenByLedger(context.Background(), ledger.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	require.Len(t, *f.failed, 1)
	ev := (*f.failed)[0]
	assert.Equal(t, "order_placement_failed", ev.Reason)
	assert.True(t, ev.IsOpen)
	assert.Equal(t, "not enough balance / allowance", ev.ErrorMessage)
	assert.Empty(t, *f.placed)
}

func TestHandleSell_ClosesOldestFirst(t *testing.T) {
	executor := &stubExecutor{sellRes: domain.OrderResult{
		Success:           true,
		OrderID:           "close-1",
		TransactionHashes: []string{"0xclosehash"},
	}}
	f := newEngineFixture(t, executor)

	ref := 100.0
	ledger := f.seedLedger(t, 60, &ref)
	now := time.Now().UTC()
	oldest := f.seedOpenPosition(t, ledger, 20, now.Add(-2*time.Hour))
	newest := f.seedOpenPosition(t, ledger, 30, now.Add(-1*time.Hour))

	// ref=100, post=60 → 40% cerrado; umbral 80 entre 2 posiciones → cierra 1.
	trade := makeTrade(domain.SideSell, 40)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	require.Len(t, executor.sellCalls, 1)
	assert.True(t, executor.sellCalls[0].Equal(decimal.NewFromInt(20)))

	closed, err := f.positions.Get(context.Background(), oldest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosingPending, closed.Status)
	assert.Equal(t, "close-1", closed.CloseOrderID)
	assert.Equal(t, 1, closed.CloseAttempts)

	untouched, err := f.positions.Get(context.Background(), newest.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, untouched.Status)

	saved, err := f.ledgers.Get(context.Background(), testWallet, "token-1")
	require.NoError(t, err)
	require.NotNil(t, saved.CloseStageRef)
	assert.True(t, saved.CloseStageRef.Equal(decimal.NewFromInt(60)))

	require.Len(t, *f.placed, 1)
	ev := (*f.placed)[0]
	assert.False(t, ev.IsOpen)
	assert.Equal(t, events.AmountShares, ev.AmountKind)
	assert.Equal(t, 20.0, ev.Amount)
}

func TestHandleSell_NoStageProgress(t *testing.T) {
	executor := &stubExecutor{}
	f := newEngineFixture(t, executor)

	ref := 100.0
	ledger := f.seedLedger(t, 95, &ref)
	f.seedOpenPosition(t, ledger, 20, time.Now().UTC())

	trade := makeTrade(domain.SideSell, 5)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	assert.Empty(t, executor.sellCalls)
	assert.Empty(t, *f.placed)
}

func TestHandleSell_VanishedPositionKeepsStageRef(t *testing.T) {
	executor := &stubExecutor{sellRes: domain.OrderResult{Success: true, OrderID: "close-1"}}
	f := newEngineFixture(t, executor)

	ref := 100.0
	ledger := f.seedLedger(t, 0, &ref)
	f.seedOpenPosition(t, ledger, 20, time.Now().UTC())
	f.positions.closeVanishes = true

	trade := makeTrade(domain.SideSell, 100)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	require.Len(t, *f.failed, 1)
	assert.Equal(t, "position_not_found", (*f.failed)[0].Reason)
	assert.Empty(t, *f.placed)

	// Si ninguna posición llegó a transicionar, la referencia de etapa no
	// avanza: el siguiente SELL mide contra la misma base.
	saved, err := f.ledgers.Get(context.Background(), testWallet, "token-1")
	require.NoError(t, err)
	require.NotNil(t, saved.CloseStageRef)
	assert.True(t, saved.CloseStageRef.Equal(decimal.NewFromInt(100)))
}

func TestHandleSell_SubmissionFailureStillPending(t *testing.T) {
	executor := &stubExecutor{sellErr: errors.New("clob: 503")}
	f := newEngineFixture(t, executor)

	ref := 100.0
	ledger := f.seedLedger(t, 0, &ref)
	pos := f.seedOpenPosition(t, ledger, 20, time.Now().UTC())

	trade := makeTrade(domain.SideSell, 100)
	require.NoError(t, f.eng.EvaluateAndExecute(context.Background(), testWallet, trade, ledger))

	// El fallo de envío no deja la posición OPEN: queda CLOSING_PENDING para
	// que el siguiente SELL la reintente.
	updated, err := f.positions.Get(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosingPending, updated.Status)
	assert.Equal(t, 1, updated.CloseAttempts)

	require.Len(t, *f.failed, 1)
	ev := (*f.failed)[0]
	assert.Equal(t, "order_placement_failed", ev.Reason)
	assert.False(t, ev.IsOpen)
	assert.Equal(t, "clob: 503", ev.ErrorMessage)
	assert.Equal(t, 1, ev.CloseAttempts)
	assert.Empty(t, *f.placed)
}
