package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const testWallet = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger_ApplyBuy(t *testing.T) {
	l := domain.NewTrackingLedger(testWallet, "token-1").WithBaseline(dec("100"))

	l = l.ApplyBuy(dec("30")).ApplyBuy(dec("7.5"))

	assert.True(t, l.PostBaselineShares.Equal(dec("37.5")))
	assert.True(t, l.BaselineShares.Equal(dec("100")))
}

func TestLedger_ApplySell_DrainsPostBaselineFirst(t *testing.T) {
	l := domain.NewTrackingLedger(testWallet, "token-1").
		WithBaseline(dec("100")).
		WithPostBaseline(dec("40"))

	l = l.ApplySell(dec("25"))

	assert.True(t, l.PostBaselineShares.Equal(dec("15")))
	assert.True(t, l.BaselineShares.Equal(dec("100")))
}

func TestLedger_ApplySell_ExcessErodesBaseline(t *testing.T) {
	l := domain.NewTrackingLedger(testWallet, "token-1").
		WithBaseline(dec("100")).
		WithPostBaseline(dec("40"))

	l = l.ApplySell(dec("65"))

	assert.True(t, l.PostBaselineShares.IsZero())
	assert.True(t, l.BaselineShares.Equal(dec("75")))
}

func TestLedger_ApplySell_BaselineFlooredAtZero(t *testing.T) {
	l := domain.NewTrackingLedger(testWallet, "token-1").
		WithBaseline(dec("10")).
		WithPostBaseline(dec("5"))

	l = l.ApplySell(dec("1000"))

	assert.True(t, l.PostBaselineShares.IsZero())
	assert.True(t, l.BaselineShares.IsZero())
}

func TestLedger_WithCloseStageRef_CopiesValue(t *testing.T) {
	ref := dec("40")
	l := domain.NewTrackingLedger(testWallet, "token-1").WithCloseStageRef(&ref)

	ref = dec("999")

	require.NotNil(t, l.CloseStageRef)
	assert.True(t, l.CloseStageRef.Equal(dec("40")))

	l = l.WithCloseStageRef(nil)
	assert.Nil(t, l.CloseStageRef)
}

func openPosition() *domain.BotPosition {
	entry := dec("0.5")
	return domain.NewBotPosition(uuid.New(), testWallet, "token-1",
		decimal.NewFromInt(20), &entry, decimal.NewFromInt(10))
}

func TestPosition_ClosingPendingIsReentrant(t *testing.T) {
	p := openPosition()

	p = p.WithClosingPending("order-1", "", time.Now().UTC())
	require.NotNil(t, p)
	assert.True(t, p.IsClosingPending())
	assert.Equal(t, 1, p.CloseAttempts)
	assert.Equal(t, "order-1", p.CloseOrderID)

	// Reintento: sobreescribe metadata y suma intento.
	p = p.WithClosingPending("order-2", "0xabc", time.Now().UTC())
	require.NotNil(t, p)
	assert.Equal(t, 2, p.CloseAttempts)
	assert.Equal(t, "order-2", p.CloseOrderID)
	assert.Equal(t, "0xabc", p.CloseTransactionHash)
}

func TestPosition_IllegalTransitionsReturnNil(t *testing.T) {
	p := openPosition()

	// CLOSED solo se alcanza desde CLOSING_PENDING.
	assert.Nil(t, p.WithClosed(dec("14"), dec("0.14"), "o1", "", time.Now().UTC()))

	p = p.WithClosingPending("o1", "", time.Now().UTC())
	require.NotNil(t, p)
	p = p.WithClosed(dec("14"), dec("0.14"), "o1", "0xfill", time.Now().UTC())
	require.NotNil(t, p)
	assert.Equal(t, domain.StatusClosed, p.Status)

	assert.Nil(t, p.WithClosingPending("o2", "", time.Now().UTC()))
}

func TestPosition_WithClosedAccumulatesFees(t *testing.T) {
	p := openPosition().WithEntryFill(dec("10.2"), dec("0.05"))
	require.NotNil(t, p)
	assert.True(t, p.EntryCost.Equal(dec("10.2")))

	p = p.WithClosingPending("o1", "", time.Now().UTC())
	require.NotNil(t, p)
	p = p.WithClosed(dec("14"), dec("0.14"), "", "", time.Now().UTC())
	require.NotNil(t, p)

	assert.True(t, p.Fees.Equal(dec("0.19")))
	require.NotNil(t, p.CloseProceeds)
	assert.True(t, p.CloseProceeds.Equal(dec("14")))
	// Metadata vacía no pisa la registrada al pedir el cierre.
	assert.Equal(t, "o1", p.CloseOrderID)
}

func TestComputePnL(t *testing.T) {
	p := openPosition()
	assert.Nil(t, domain.ComputePnL(p).Realized)

	p = p.WithClosingPending("o1", "", time.Now().UTC())
	require.NotNil(t, p)
	p = p.WithClosed(dec("14"), dec("0.14"), "o1", "", time.Now().UTC())
	require.NotNil(t, p)

	pnl := domain.ComputePnL(p)
	require.NotNil(t, pnl.Realized)
	require.NotNil(t, pnl.Net)
	assert.True(t, pnl.Realized.Equal(dec("4")))
	assert.True(t, pnl.Net.Equal(dec("3.86")))
	assert.True(t, pnl.Fees.Equal(dec("0.14")))
}

func TestTradeKey_Preference(t *testing.T) {
	tr := domain.WalletTrade{
		ID:              "abc",
		TransactionHash: "0xdead",
		Timestamp:       time.Unix(1700000000, 0).UTC(),
		ConditionID:     "cond",
		Outcome:         "Yes",
		Price:           dec("0.5"),
		Size:            dec("10"),
	}
	assert.Equal(t, "tx:0xdead", tr.Key())

	tr.TransactionHash = ""
	assert.Equal(t, "id:abc", tr.Key())

	tr.ID = ""
	assert.Equal(t, "cmp:1700000000|cond|Yes|0.5|10", tr.Key())
}
