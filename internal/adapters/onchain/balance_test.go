package onchain_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/adapters/onchain"
)

const testWallet = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

// newRPCServer responde eth_call con el resultado fijado.
func newRPCServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "eth_call", req.Method)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, result)
	}))
}

func TestUSDCBalance_DecodesUnits(t *testing.T) {
	// 123456789 unidades crudas = 123.456789 USDC.e
	srv := newRPCServer(t, "0x00000000000000000000000000000000000000000000000000000000075bcd15")
	defer srv.Close()

	br, err := onchain.NewBalanceReader(srv.URL)
	require.NoError(t, err)
	defer br.Close()

	bal, err := br.USDCBalance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("123.456789")))
}

func TestUSDCBalance_EmptyCallResult(t *testing.T) {
	srv := newRPCServer(t, "0x")
	defer srv.Close()

	br, err := onchain.NewBalanceReader(srv.URL)
	require.NoError(t, err)
	defer br.Close()

	_, err = br.USDCBalance(context.Background(), testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unpack")
	assert.NotContains(t, err.Error(), "%!w")
}

func TestUSDCBalance_InvalidAddress(t *testing.T) {
	srv := newRPCServer(t, "0x")
	defer srv.Close()

	br, err := onchain.NewBalanceReader(srv.URL)
	require.NoError(t, err)
	defer br.Close()

	_, err = br.USDCBalance(context.Background(), "not-an-address")
	assert.Error(t, err)
}
