package polymarket

// trades.go — feeds públicos de la Data API: trades, posiciones y valor de una
// wallet. Implementa ports.TradeFeed y ports.PositionFeed.

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

type rawDataTrade struct {
	ID              string      `json:"id"`
	ProxyWallet     string      `json:"proxyWallet"`
	ConditionID     string      `json:"conditionId"`
	Asset           string      `json:"asset"`
	Side            string      `json:"side"`
	Outcome         string      `json:"outcome"`
	OutcomeIndex    json.Number `json:"outcomeIndex"`
	Price           json.Number `json:"price"`
	Size            json.Number `json:"size"`
	Timestamp       json.Number `json:"timestamp"`
	TransactionHash string      `json:"transactionHash"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
}

type rawDataPosition struct {
	Asset        string      `json:"asset"`
	ConditionID  string      `json:"conditionId"`
	Outcome      string      `json:"outcome"`
	Size         json.Number `json:"size"`
	CurPrice     json.Number `json:"curPrice"`
	CurrentValue json.Number `json:"currentValue"`
}

type rawDataValue struct {
	User  string      `json:"user"`
	Value json.Number `json:"value"`
}

// WalletTrades obtiene los trades públicos de la wallet, los más recientes
// primero.
func (c *Client) WalletTrades(ctx context.Context, wallet string, limit, offset int) ([]domain.WalletTrade, error) {
	url := fmt.Sprintf("%s/trades?user=%s&limit=%d&offset=%d&takerOnly=false",
		c.dataBase, wallet, limit, offset)

	var resp []rawDataTrade
	if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.WalletTrades: %w", err)
	}

	trades := make([]domain.WalletTrade, 0, len(resp))
	for _, rt := range resp {
		trades = append(trades, rt.toDomain())
	}
	return trades, nil
}

// WalletPositions obtiene las posiciones actuales de la wallet.
func (c *Client) WalletPositions(ctx context.Context, wallet string, limit, offset int) ([]domain.WalletPosition, error) {
	url := fmt.Sprintf("%s/positions?user=%s&limit=%d&offset=%d",
		c.dataBase, wallet, limit, offset)

	var resp []rawDataPosition
	if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.WalletPositions: %w", err)
	}

	positions := make([]domain.WalletPosition, 0, len(resp))
	for _, rp := range resp {
		positions = append(positions, domain.WalletPosition{
			Asset:        rp.Asset,
			ConditionID:  rp.ConditionID,
			Outcome:      rp.Outcome,
			Size:         numberToDecimal(rp.Size),
			CurPrice:     numberToDecimal(rp.CurPrice),
			CurrentValue: numberToDecimal(rp.CurrentValue),
		})
	}
	return positions, nil
}

// WalletPositionsValue devuelve el valor mark-to-market de las posiciones
// abiertas de la wallet.
func (c *Client) WalletPositionsValue(ctx context.Context, wallet string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/value?user=%s", c.dataBase, wallet)

	var resp []rawDataValue
	if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("polymarket.WalletPositionsValue: %w", err)
	}
	if len(resp) == 0 {
		return decimal.Zero, nil
	}
	return numberToDecimal(resp[0].Value), nil
}

func (rt rawDataTrade) toDomain() domain.WalletTrade {
	outcomeIndex, _ := strconv.Atoi(rt.OutcomeIndex.String())
	return domain.WalletTrade{
		ID:              rt.ID,
		Timestamp:       parseTradeTimestamp(rt.Timestamp),
		ConditionID:     rt.ConditionID,
		Asset:           rt.Asset,
		Outcome:         rt.Outcome,
		OutcomeIndex:    outcomeIndex,
		Side:            domain.TradeSide(rt.Side),
		Price:           numberToDecimal(rt.Price),
		Size:            numberToDecimal(rt.Size),
		TransactionHash: rt.TransactionHash,
		Title:           rt.Title,
		Slug:            rt.Slug,
	}
}

// numberToDecimal convierte un json.Number a decimal sin pasar por float.
func numberToDecimal(n json.Number) decimal.Decimal {
	if n.String() == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// Unix en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	// ISO 8601
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
