package polymarket

// gamma.go — metadata de mercados vía Gamma API. Solo se usa para poner
// nombres legibles en las notificaciones, nunca en el camino de trading.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const gammaMarketsPath = "/markets"

// gammaMarket contiene la metadata de un mercado de Gamma.
// Gamma devuelve clobTokenIds como un string JSON con un array dentro.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	Slug         string `json:"slug"`
	ClobTokenIDs string `json:"clobTokenIds"`
	Outcomes     string `json:"outcomes"`
}

// MarketTitles resuelve token id → título de mercado, con caché en memoria.
type MarketTitles struct {
	client *Client

	mu    sync.Mutex
	cache map[string]string
}

// NewMarketTitles creates a title resolver over the given client.
func NewMarketTitles(client *Client) *MarketTitles {
	return &MarketTitles{
		client: client,
		cache:  make(map[string]string),
	}
}

// MarketTitle devuelve la question del mercado al que pertenece el token.
// Devuelve "" sin error si Gamma no conoce el token.
func (mt *MarketTitles) MarketTitle(ctx context.Context, asset string) (string, error) {
	mt.mu.Lock()
	if title, ok := mt.cache[asset]; ok {
		mt.mu.Unlock()
		return title, nil
	}
	mt.mu.Unlock()

	url := fmt.Sprintf("%s%s?clob_token_ids=%s", mt.client.gammaBase, gammaMarketsPath, asset)

	var resp []gammaMarket
	if err := mt.client.get(ctx, mt.client.gammaLimiter, url, &resp); err != nil {
		return "", fmt.Errorf("gamma.MarketTitle: %w", err)
	}
	if len(resp) == 0 {
		slog.Debug("gamma has no market for token", "asset", asset)
		return "", nil
	}

	gm := resp[0]
	mt.mu.Lock()
	// Cachear todos los tokens del mercado, no solo el consultado.
	for _, tokenID := range parseTokenIDs(gm.ClobTokenIDs) {
		mt.cache[tokenID] = gm.Question
	}
	if _, ok := mt.cache[asset]; !ok {
		mt.cache[asset] = gm.Question
	}
	title := mt.cache[asset]
	mt.mu.Unlock()

	return title, nil
}

// parseTokenIDs decodifica el string "[\"123\",\"456\"]" que devuelve Gamma.
func parseTokenIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
