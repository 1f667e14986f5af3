package polymarket

// trading.go — ejecución real de órdenes contra el CLOB de Polymarket.
//
// Implementa ports.OrderExecutor con órdenes de mercado FOK: las compras por
// notional fijo en USDC y las ventas por cantidad exacta de shares. El precio
// marketable se toma del lado contrario del libro justo antes de firmar.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg           string   `json:"errorMsg"`
	OrderID            string   `json:"orderID"`
	TakingAmount       string   `json:"takingAmount"`
	MakingAmount       string   `json:"makingAmount"`
	Status             string   `json:"status"`
	Success            bool     `json:"success"`
	TransactionsHashes []string `json:"transactionsHashes"`
}

type clobPriceResponse struct {
	Price string `json:"price"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient over an authenticated CLOB client.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{auth: auth}
}

// PlaceBuy firma y envía una orden de mercado BUY por un notional fijo en USDC.
func (tc *TradingClient) PlaceBuy(ctx context.Context, asset string, notional decimal.Decimal) (domain.OrderResult, error) {
	// Para cruzar el libro al comprar se usa el mejor ask.
	price, err := tc.marketPrice(ctx, asset, "SELL")
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading.PlaceBuy: price: %w", err)
	}
	return tc.placeMarketOrder(ctx, asset, price, notional.InexactFloat64(), gomodel.BUY)
}

// PlaceSellShares firma y envía una orden de mercado SELL por una cantidad
// exacta de shares.
func (tc *TradingClient) PlaceSellShares(ctx context.Context, asset string, shares decimal.Decimal) (domain.OrderResult, error) {
	// Para cruzar el libro al vender se usa el mejor bid.
	price, err := tc.marketPrice(ctx, asset, "BUY")
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading.PlaceSellShares: price: %w", err)
	}
	return tc.placeMarketOrder(ctx, asset, price, shares.InexactFloat64(), gomodel.SELL)
}

func (tc *TradingClient) placeMarketOrder(ctx context.Context, asset string, price, size float64, side gomodel.Side) (domain.OrderResult, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading.placeMarketOrder: creds: %w", err)
	}

	negRisk, err := tc.isNegRisk(ctx, asset)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading.placeMarketOrder: neg-risk: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(asset, price, size, side, negRisk)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading.placeMarketOrder: sign: %w", err)
	}

	sideStr := "BUY"
	if side == gomodel.SELL {
		sideStr = "SELL"
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       asset,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          sideStr,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "FOK",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("trading.placeMarketOrder: post: %w", err)
	}

	// Un rechazo del CLOB no es un error de transporte: se devuelve el
	// resultado para que el motor lo registre y emita el evento de fallo.
	return domain.OrderResult{
		Success:           resp.Success && resp.ErrorMsg == "",
		OrderID:           resp.OrderID,
		TransactionHashes: resp.TransactionsHashes,
		Status:            resp.Status,
		Error:             resp.ErrorMsg,
	}, nil
}

// marketPrice devuelve el mejor precio del lado dado del libro.
func (tc *TradingClient) marketPrice(ctx context.Context, asset, side string) (float64, error) {
	url := fmt.Sprintf("%s/price?token_id=%s&side=%s", tc.auth.clobBase, asset, side)

	var resp clobPriceResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("no liquidity for token %s side %s", asset, side)
	}
	return price, nil
}

// isNegRisk consulta si el token usa el adapter NegRisk.
func (tc *TradingClient) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)

	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}
	return resp.NegRisk, nil
}
