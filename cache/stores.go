// Package cache defines the storage interfaces for the pending auth state
// and the per-platform connection records, plus memory-backed
// implementations. Persistent backends live in cache/redis, storage
// (bbolt) and mongodb.
package cache

import (
	"context"
	"errors"

	"github.com/brandpulse-io/adconnect/domain"
)

// ErrStateNotFound is returned when no pending auth state exists.
var ErrStateNotFound = errors.New("auth state not found")

// ErrConnectionNotFound is returned for platforms with no stored record.
var ErrConnectionNotFound = errors.New("connection not found")

// AuthStateStore holds the single pending anti-CSRF state. Set overwrites
// any prior pending state; backends expire entries after the state TTL on
// their own in addition to the service-level timestamp check.
type AuthStateStore interface {
	Set(ctx context.Context, state domain.AuthState) error
	Get(ctx context.Context) (domain.AuthState, error)
	Delete(ctx context.Context) error
}

// ConnectionStore persists connection records keyed by platform. Writes
// are last-write-wins and atomic per key.
type ConnectionStore interface {
	Get(ctx context.Context, platform domain.Platform) (domain.ConnectionRecord, error)
	Put(ctx context.Context, record domain.ConnectionRecord) error
}
