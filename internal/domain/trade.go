package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a trade as reported by the Data API.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// WalletTrade is a normalized trade of the tracked wallet (Data API GET /trades).
// Asset is the Polymarket positionId / token_id and is the primary identity,
// together with the wallet, for all ledger accounting.
type WalletTrade struct {
	ID              string
	Timestamp       time.Time
	ConditionID     string
	Asset           string
	Outcome         string
	OutcomeIndex    int
	Side            TradeSide
	Price           decimal.Decimal
	Size            decimal.Decimal
	TransactionHash string
	Title           string
	Slug            string
}

// Key returns a stable deduplication key for the trade.
// Prefiere transaction hash, luego id, luego compuesto ts|market|outcome|price|size.
func (t WalletTrade) Key() string {
	if t.TransactionHash != "" {
		return "tx:" + t.TransactionHash
	}
	if t.ID != "" {
		return "id:" + t.ID
	}
	return fmt.Sprintf("cmp:%d|%s|%s|%s|%s",
		t.Timestamp.Unix(), t.ConditionID, t.Outcome, t.Price.String(), t.Size.String())
}

// WalletPosition is one current position of the tracked wallet (Data API GET /positions).
type WalletPosition struct {
	Asset        string
	ConditionID  string
	Outcome      string
	Size         decimal.Decimal
	CurPrice     decimal.Decimal
	CurrentValue decimal.Decimal
}

// MakerOrder is a sub-order inside a CLOB trade (our order may appear here
// when it rested in the book before matching).
type MakerOrder struct {
	OrderID    string
	Price      string
	MatchedAmt string
	FeeRateBps string
}

// ClobTrade is a fill from the authenticated CLOB trade feed, used to confirm
// that a submitted order actually executed. Numeric fields stay as the API's
// strings until the reconciliation worker parses them.
type ClobTrade struct {
	ID              string
	TakerOrderID    string
	Market          string
	AssetID         string
	Side            string
	Size            string
	Price           string
	FeeRateBps      string
	Status          string
	TransactionHash string
	MakerOrders     []MakerOrder
}

// OrderResult is the outcome of submitting a market order to the CLOB.
type OrderResult struct {
	Success           bool
	OrderID           string
	TransactionHashes []string
	Status            string
	Error             string
}

// FirstTransactionHash returns the first tx hash from the submission response,
// or empty. Used as a fallback key when matching fills.
func (r OrderResult) FirstTransactionHash() string {
	if len(r.TransactionHashes) == 0 {
		return ""
	}
	return r.TransactionHashes[0]
}
