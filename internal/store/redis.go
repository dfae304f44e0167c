package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for market views. It only serves reads that tolerate staleness up to
// the TTL; settlement decisions always read the primary. Writers call
// Invalidate after each committed change.
//
// A read that fetched from the primary before a commit must not repopulate
// the cache after that commit's Invalidate. Each Invalidate bumps gen, and a
// fill is dropped when gen moved since its primary read.
type CachedStore struct {
	primary MarketReader
	rdb     *redis.Client
	ttl     time.Duration

	mu  sync.RWMutex // fills hold R across check+SET, Invalidate holds W
	gen uint64
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary MarketReader, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	gen := s.generation()
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, marketKey(id), m, gen)
	return m, nil
}

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	data, err := s.rdb.Get(ctx, marketListKey).Bytes()
	if err == nil {
		var markets []model.Market
		if json.Unmarshal(data, &markets) == nil {
			return markets, nil
		}
	}

	gen := s.generation()
	markets, err := s.primary.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}

	s.cache(ctx, marketListKey, markets, gen)
	return markets, nil
}

// Invalidate drops the cached view of a market and the market list; the
// next read re-populates from the primary.
func (s *CachedStore) Invalidate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.rdb.Del(ctx, marketKey(id), marketListKey).Err()
}

// --- Cache helpers ---

func (s *CachedStore) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// cache stores v unless an Invalidate ran after gen was read. It reports
// whether a write was attempted.
func (s *CachedStore) cache(ctx context.Context, key string, v any, gen uint64) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gen != gen {
		return false
	}
	s.rdb.Set(ctx, key, data, s.ttl)
	return true
}

const marketListKey = "settlement:markets"

func marketKey(id int64) string { return fmt.Sprintf("settlement:market:%d", id) }
