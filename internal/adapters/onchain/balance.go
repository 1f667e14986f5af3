// Package onchain lee balances directamente de la blockchain de Polygon.
// Implementa ports.BalanceReader sobre el contrato ERC-20 de USDC.e.
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	usdcDecimals = 6
)

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// BalanceReader consulta el balance de USDC.e de una wallet por RPC.
type BalanceReader struct {
	rpc *ethclient.Client
}

// NewBalanceReader abre la conexión RPC a Polygon.
func NewBalanceReader(rpcURL string) (*BalanceReader, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc: %w", err)
	}
	return &BalanceReader{rpc: rpc}, nil
}

// Close cierra la conexión RPC.
func (br *BalanceReader) Close() {
	br.rpc.Close()
}

// USDCBalance devuelve el balance de USDC.e de la wallet en unidades enteras.
func (br *BalanceReader) USDCBalance(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if !common.IsHexAddress(wallet) {
		return decimal.Zero, fmt.Errorf("onchain.USDCBalance: invalid address %q", wallet)
	}

	callData, err := balanceOfABI.Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.USDCBalance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := br.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.USDCBalance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.USDCBalance: unpack: %w", err)
	}
	if len(vals) == 0 {
		return decimal.Zero, fmt.Errorf("onchain.USDCBalance: unpack: empty result")
	}

	raw, ok := vals[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("onchain.USDCBalance: unexpected type %T", vals[0])
	}
	return decimal.NewFromBigInt(raw, -usdcDecimals), nil
}
