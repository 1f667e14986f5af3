package engine_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memTrackingStore guarda los ledgers en memoria, clave wallet|asset.
type memTrackingStore struct {
	mu      sync.Mutex
	ledgers map[string]*domain.TrackingLedger
}

func newMemTrackingStore() *memTrackingStore {
	return &memTrackingStore{ledgers: map[string]*domain.TrackingLedger{}}
}

func (s *memTrackingStore) key(wallet, asset string) string { return wallet + "|" + asset }

func (s *memTrackingStore) Get(_ context.Context, wallet, asset string) (*domain.TrackingLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[s.key(wallet, asset)]
	if !ok {
		return nil, nil
	}
	c := *l
	return &c, nil
}

func (s *memTrackingStore) GetOrCreate(ctx context.Context, wallet, asset string) (*domain.TrackingLedger, error) {
	if l, err := s.Get(ctx, wallet, asset); err != nil || l != nil {
		return l, err
	}
	l := domain.NewTrackingLedger(wallet, asset)
	s.mu.Lock()
	s.ledgers[s.key(wallet, asset)] = l
	s.mu.Unlock()
	c := *l
	return &c, nil
}

func (s *memTrackingStore) Save(_ context.Context, ledger *domain.TrackingLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ledger
	s.ledgers[s.key(ledger.TrackedWallet, ledger.Asset)] = &c
	return nil
}

func (s *memTrackingStore) ListByWallet(_ context.Context, wallet string) ([]*domain.TrackingLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TrackingLedger
	for _, l := range s.ledgers {
		if l.TrackedWallet == wallet {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memTrackingStore) SetCloseStageRef(_ context.Context, wallet, asset string, ref *decimal.Decimal) (*domain.TrackingLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[s.key(wallet, asset)]
	if !ok {
		return nil, nil
	}
	updated := l.WithCloseStageRef(ref)
	s.ledgers[s.key(wallet, asset)] = updated
	c := *updated
	return &c, nil
}

// memPositionStore guarda posiciones en memoria respetando la máquina de
// estados igual que el store real.
type memPositionStore struct {
	mu        sync.Mutex
	positions map[uuid.UUID]*domain.BotPosition

	// closeVanishes simula una fila borrada bajo los pies del engine:
	// MarkClosingPending responde (nil, nil) como el store real.
	closeVanishes bool
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: map[uuid.UUID]*domain.BotPosition{}}
}

func (s *memPositionStore) Get(_ context.Context, id uuid.UUID) (*domain.BotPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (s *memPositionStore) Save(_ context.Context, p *domain.BotPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.positions[p.ID] = &c
	return nil
}

func (s *memPositionStore) list(filter func(*domain.BotPosition) bool) []*domain.BotPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.BotPosition
	for _, p := range s.positions {
		if filter(p) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (s *memPositionStore) ListOpenByLedger(_ context.Context, ledgerID uuid.UUID) ([]*domain.BotPosition, error) {
	return s.list(func(p *domain.BotPosition) bool {
		return p.LedgerID == ledgerID && p.Status == domain.StatusOpen
	}), nil
}

func (s *memPositionStore) ListOpenByWallet(_ context.Context, wallet string) ([]*domain.BotPosition, error) {
	return s.list(func(p *domain.BotPosition) bool {
		return p.TrackedWallet == wallet && p.Status == domain.StatusOpen
	}), nil
}

func (s *memPositionStore) ListByWallet(_ context.Context, wallet string) ([]*domain.BotPosition, error) {
	return s.list(func(p *domain.BotPosition) bool { return p.TrackedWallet == wallet }), nil
}

func (s *memPositionStore) CountActiveLedgers(_ context.Context, wallet string) (int, error) {
	open := s.list(func(p *domain.BotPosition) bool {
		return p.TrackedWallet == wallet && p.Status == domain.StatusOpen
	})
	seen := map[uuid.UUID]bool{}
	for _, p := range open {
		seen[p.LedgerID] = true
	}
	return len(seen), nil
}

func (s *memPositionStore) MarkClosingPending(_ context.Context, id uuid.UUID, orderID, txHash string, requestedAt time.Time) (*domain.BotPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || s.closeVanishes {
		return nil, nil
	}
	updated := p.WithClosingPending(orderID, txHash, requestedAt)
	if updated == nil {
		return nil, nil
	}
	s.positions[id] = updated
	c := *updated
	return &c, nil
}

func (s *memPositionStore) ConfirmClosed(_ context.Context, id uuid.UUID, proceeds, closeFee decimal.Decimal, orderID, txHash string, closedAt time.Time) (*domain.BotPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	updated := p.WithClosed(proceeds, closeFee, orderID, txHash, closedAt)
	if updated == nil {
		return nil, nil
	}
	s.positions[id] = updated
	c := *updated
	return &c, nil
}

func (s *memPositionStore) ApplyEntryFill(_ context.Context, id uuid.UUID, entryCost, openFee decimal.Decimal) (*domain.BotPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	updated := p.WithEntryFill(entryCost, openFee)
	s.positions[id] = updated
	c := *updated
	return &c, nil
}

// stubExecutor devuelve resultados programados y registra las llamadas.
type stubExecutor struct {
	mu        sync.Mutex
	buyRes    domain.OrderResult
	buyErr    error
	sellRes   domain.OrderResult
	sellErr   error
	buyCalls  []decimal.Decimal
	sellCalls []decimal.Decimal
}

func (s *stubExecutor) PlaceBuy(_ context.Context, _ string, notional decimal.Decimal) (domain.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyCalls = append(s.buyCalls, notional)
	return s.buyRes, s.buyErr
}

func (s *stubExecutor) PlaceSellShares(_ context.Context, _ string, shares decimal.Decimal) (domain.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellCalls = append(s.sellCalls, shares)
	return s.sellRes, s.sellErr
}

type stubBalances struct {
	balance decimal.Decimal
	err     error
}

func (s *stubBalances) USDCBalance(context.Context, string) (decimal.Decimal, error) {
	return s.balance, s.err
}

type stubPositionFeed struct {
	positions []domain.WalletPosition
	value     decimal.Decimal
	err       error
}

func (s *stubPositionFeed) WalletPositions(context.Context, string, int, int) ([]domain.WalletPosition, error) {
	return s.positions, s.err
}

func (s *stubPositionFeed) WalletPositionsValue(context.Context, string) (decimal.Decimal, error) {
	return s.value, s.err
}
