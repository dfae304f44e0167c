package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

type stakeKey struct {
	marketID int64
	account  model.AccountID
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[int64]*model.Market
	stakes  map[stakeKey]*model.Stake
	ledger  []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[int64]*model.Market),
		stakes:  make(map[stakeKey]*model.Stake),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %d: %w", m.ID, ErrExists)
	}

	// Store a copy to avoid external mutation.
	copy := *m
	s.markets[m.ID] = &copy
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id int64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

func (s *MemoryStore) CountMarkets(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

func (s *MemoryStore) ResolveMarket(_ context.Context, id int64, outcome model.Choice, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	if m.Resolved {
		return fmt.Errorf("resolve market %d: %w", id, ErrConflict)
	}
	m.Resolved = true
	m.Outcome = outcome
	m.ResolvedAt = &at
	return nil
}

func (s *MemoryStore) GetStake(_ context.Context, marketID int64, account model.AccountID) (model.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.stakes[stakeKey{marketID, account}]; ok {
		return *st, nil
	}
	return zeroStake(marketID, account), nil
}

func (s *MemoryStore) ListStakes(_ context.Context, marketID int64) ([]model.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Stake
	for k, st := range s.stakes {
		if k.marketID == marketID {
			result = append(result, *st)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Account < result[j].Account })
	return result, nil
}

func (s *MemoryStore) RecordBet(_ context.Context, e *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[e.MarketID]
	if !ok {
		return fmt.Errorf("market %d: %w", e.MarketID, ErrNotFound)
	}
	if m.Resolved {
		return fmt.Errorf("bet on market %d: %w", e.MarketID, ErrConflict)
	}

	if e.Side != model.ChoiceYes && e.Side != model.ChoiceNo {
		return fmt.Errorf("bet on market %d: invalid side %s", e.MarketID, e.Side)
	}

	key := stakeKey{e.MarketID, e.Account}
	st, ok := s.stakes[key]
	if !ok {
		zero := zeroStake(e.MarketID, e.Account)
		st = &zero
		s.stakes[key] = st
	}

	// Single lock covers stake, total and ledger so no reader sees half.
	if e.Side == model.ChoiceYes {
		st.YesStake = st.YesStake.Add(e.Amount)
		m.TotalYesStake = m.TotalYesStake.Add(e.Amount)
	} else {
		st.NoStake = st.NoStake.Add(e.Amount)
		m.TotalNoStake = m.TotalNoStake.Add(e.Amount)
	}
	s.ledger = append(s.ledger, *e)
	return nil
}

func (s *MemoryStore) RecordClaim(_ context.Context, e *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stakes[stakeKey{e.MarketID, e.Account}]
	if !ok {
		return fmt.Errorf("claim on market %d by %s: %w", e.MarketID, e.Account, ErrNotFound)
	}
	if st.Claimed {
		return fmt.Errorf("claim on market %d by %s: %w", e.MarketID, e.Account, ErrConflict)
	}
	st.Claimed = true
	s.ledger = append(s.ledger, *e)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByMarket(_ context.Context, marketID int64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.MarketID == marketID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByAccount(_ context.Context, account model.AccountID) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.Account == account {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) Balance(_ context.Context, account model.AccountID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.ledger {
		if e.Account == account && e.Kind == model.EntryPayout {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func zeroStake(marketID int64, account model.AccountID) model.Stake {
	return model.Stake{
		MarketID: marketID,
		Account:  account,
		YesStake: decimal.Zero,
		NoStake:  decimal.Zero,
	}
}
