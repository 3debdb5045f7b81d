// Package redis provides a Redis-backed AuthStateStore for deployments
// where the callback may land on a different instance than the one that
// started the flow.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
)

// StateStore implements cache.AuthStateStore on Redis. The entry carries
// the state TTL so Redis expires abandoned flows by itself.
type StateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStateStore creates a StateStore. prefix namespaces the key so several
// services can share one Redis.
func NewStateStore(client *redis.Client, prefix string, ttl time.Duration) *StateStore {
	return &StateStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *StateStore) key() string {
	return fmt.Sprintf("%s:authstate:pending", s.prefix)
}

func (s *StateStore) Set(ctx context.Context, state domain.AuthState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal auth state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store auth state: %w", err)
	}
	return nil
}

func (s *StateStore) Get(ctx context.Context) (domain.AuthState, error) {
	payload, err := s.client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AuthState{}, cache.ErrStateNotFound
	}
	if err != nil {
		return domain.AuthState{}, fmt.Errorf("load auth state: %w", err)
	}
	var state domain.AuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.AuthState{}, fmt.Errorf("decode auth state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("delete auth state: %w", err)
	}
	return nil
}
