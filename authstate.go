// Package adconnect coordinates the TikTok OAuth connection flow for the
// marketing dashboard: anti-CSRF state tokens, the authorization state
// machine, and persistence of the resulting connection records.
package adconnect

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/log"
)

// StateTTL is how long a generated state token stays valid.
const StateTTL = 5 * time.Minute

// StateService issues and validates the single-use anti-CSRF state token
// round-tripped through the authorization redirect.
type StateService struct {
	store  cache.AuthStateStore
	clock  clock.Clock
	logger log.Logger
}

func NewStateService(store cache.AuthStateStore, clk clock.Clock, logger log.Logger) *StateService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &StateService{store: store, clock: clk, logger: logger}
}

// Generate creates a high-entropy state token and stores it as the single
// pending state, overwriting any prior one.
func (s *StateService) Generate(ctx context.Context) (string, error) {
	token := uuid.NewString()
	err := s.store.Set(ctx, domain.AuthState{
		Value:     token,
		Timestamp: s.clock.Now(),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Validate consumes the pending state. It returns true only when a
// pending state exists, matches the candidate, and is younger than
// StateTTL. The pending state is deleted on every outcome; a second call
// with the same token always fails. Internal errors are logged and
// treated as validation failure, never surfaced.
func (s *StateService) Validate(ctx context.Context, candidate string) bool {
	defer func() {
		if err := s.store.Delete(ctx); err != nil {
			s.logger.Warn(ctx, "failed to delete pending auth state", nil)
		}
	}()

	stored, err := s.store.Get(ctx)
	if err != nil {
		s.logger.Warn(ctx, "state validation without pending state", nil)
		return false
	}
	if stored.Value != candidate {
		s.logger.Warn(ctx, "state token mismatch", nil)
		return false
	}
	if s.clock.Now().Sub(stored.Timestamp) >= StateTTL {
		s.logger.Warn(ctx, "state token expired", map[string]interface{}{
			"age_seconds": int(s.clock.Now().Sub(stored.Timestamp).Seconds()),
		})
		return false
	}
	return true
}
