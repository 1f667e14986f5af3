package polymarket

// clob.go — historial autenticado de trades del CLOB. Implementa
// ports.FillFeed para que el worker de reconciliación confirme fills.

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

type rawClobMakerOrder struct {
	OrderID       string `json:"order_id"`
	Price         string `json:"price"`
	MatchedAmount string `json:"matched_amount"`
	FeeRateBps    string `json:"fee_rate_bps"`
}

type rawClobTrade struct {
	ID              string              `json:"id"`
	TakerOrderID    string              `json:"taker_order_id"`
	Market          string              `json:"market"`
	AssetID         string              `json:"asset_id"`
	Side            string              `json:"side"`
	Size            string              `json:"size"`
	Price           string              `json:"price"`
	FeeRateBps      string              `json:"fee_rate_bps"`
	Status          string              `json:"status"`
	TransactionHash string              `json:"transaction_hash"`
	MakerOrders     []rawClobMakerOrder `json:"maker_orders"`
}

// TradesForAsset devuelve los trades propios del CLOB para un token.
// Requiere credenciales L2 ya derivadas.
func (ac *AuthClient) TradesForAsset(ctx context.Context, asset string) ([]domain.ClobTrade, error) {
	if err := ac.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("polymarket.TradesForAsset: creds: %w", err)
	}

	path := fmt.Sprintf("/data/trades?asset_id=%s", asset)

	var resp []rawClobTrade
	if err := ac.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.TradesForAsset: %w", err)
	}

	trades := make([]domain.ClobTrade, 0, len(resp))
	for _, rt := range resp {
		makers := make([]domain.MakerOrder, 0, len(rt.MakerOrders))
		for _, mo := range rt.MakerOrders {
			makers = append(makers, domain.MakerOrder{
				OrderID:    mo.OrderID,
				Price:      mo.Price,
				MatchedAmt: mo.MatchedAmount,
				FeeRateBps: mo.FeeRateBps,
			})
		}
		trades = append(trades, domain.ClobTrade{
			ID:              rt.ID,
			TakerOrderID:    rt.TakerOrderID,
			Market:          rt.Market,
			AssetID:         rt.AssetID,
			Side:            rt.Side,
			Size:            rt.Size,
			Price:           rt.Price,
			FeeRateBps:      rt.FeeRateBps,
			Status:          rt.Status,
			TransactionHash: rt.TransactionHash,
			MakerOrders:     makers,
		})
	}
	return trades, nil
}
