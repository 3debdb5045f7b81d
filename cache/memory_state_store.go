package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/brandpulse-io/adconnect/domain"
)

// stateKey is the single slot the pending auth state occupies.
const stateKey = "pending"

// MemoryStateStore implements AuthStateStore using ttlcache, so stale
// states vanish on their own even if never validated.
type MemoryStateStore struct {
	cache *ttlcache.Cache[string, domain.AuthState]
	ttl   time.Duration
}

// NewMemoryStateStore creates an in-memory state store whose entries
// expire after ttl.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	c := ttlcache.New(
		ttlcache.WithTTL[string, domain.AuthState](ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.AuthState](),
	)
	go c.Start()

	return &MemoryStateStore{cache: c, ttl: ttl}
}

func (s *MemoryStateStore) Set(_ context.Context, state domain.AuthState) error {
	s.cache.Set(stateKey, state, s.ttl)
	return nil
}

func (s *MemoryStateStore) Get(_ context.Context) (domain.AuthState, error) {
	item := s.cache.Get(stateKey)
	if item == nil {
		return domain.AuthState{}, ErrStateNotFound
	}
	return item.Value(), nil
}

func (s *MemoryStateStore) Delete(_ context.Context) error {
	s.cache.Delete(stateKey)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStateStore) Close() error {
	s.cache.Stop()
	return nil
}
