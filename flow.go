package adconnect

import (
	"context"
	"errors"
	"sync"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/log"
	"github.com/brandpulse-io/adconnect/tiktok"
	"github.com/brandpulse-io/adconnect/vault"
)

// FlowState is the orchestrator's position in the authorization flow.
type FlowState string

const (
	FlowIdle             FlowState = "idle"
	FlowAuthorizing      FlowState = "authorizing"
	FlowAwaitingCallback FlowState = "awaiting_callback"
	FlowExchanging       FlowState = "exchanging"
	FlowConnected        FlowState = "connected"
	FlowError            FlowState = "error"
)

// maxExchangeAttempts bounds operator-triggered retries of a failed
// exchange before the flow must restart from idle.
const maxExchangeAttempts = 3

// ErrFlowCancelled resolves the completion channel when the operator
// aborts the flow, or when a restart abandons an in-flight one.
var ErrFlowCancelled = errors.New("authorization cancelled")

// Exchanger is the authorization-code grant, implemented by
// tiktok.ExchangeClient.
type Exchanger interface {
	Exchange(ctx context.Context, params tiktok.ExchangeParams) (domain.TokenBundle, error)
}

// FlowResult is delivered on the completion channel when the flow reaches
// a terminal state.
type FlowResult struct {
	Record domain.ConnectionRecord
	Err    error
}

// FlowService drives the three-legged authorization:
//
//	idle -> authorizing -> awaiting_callback -> exchanging -> connected
//
// with error reachable from every non-terminal state. It owns the write
// path to the TikTok connection record. Completion is signalled on a
// channel resolved by the callback route; nothing polls.
type FlowService struct {
	states      *StateService
	connections cache.ConnectionStore
	vault       vault.Vault
	exchanger   Exchanger
	clock       clock.Clock
	logger      log.Logger

	mu       sync.Mutex
	state    FlowState
	attempts int
	lastCode string
	done     chan FlowResult
}

func NewFlowService(
	states *StateService,
	connections cache.ConnectionStore,
	v vault.Vault,
	exchanger Exchanger,
	clk clock.Clock,
	logger log.Logger,
) *FlowService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &FlowService{
		states:      states,
		connections: connections,
		vault:       v,
		exchanger:   exchanger,
		clock:       clk,
		logger:      logger,
		state:       FlowIdle,
	}
}

// State returns the current flow state.
func (f *FlowService) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns the completion channel of the current flow. It receives
// exactly one FlowResult when the flow reaches connected, exhausts its
// retries, or is cancelled or restarted. Grab the channel right after
// BeginAuthorization; it is nil before the flow starts and after it
// resolves.
func (f *FlowService) Done() <-chan FlowResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// BeginAuthorization starts a new flow: generates the state token, builds
// the provider authorization URL, and persists a pending connection
// record holding the encrypted credentials so the callback can complete
// the exchange without re-prompting the operator.
func (f *FlowService) BeginAuthorization(ctx context.Context, creds domain.Credentials) (string, error) {
	missing := map[string]bool{
		"appId":        creds.AppID == "",
		"clientSecret": creds.ClientSecret == "",
		"redirectUri":  creds.RedirectURI == "",
	}
	for _, absent := range missing {
		if absent {
			return "", autherrors.NewValidation("missing required credentials", missing)
		}
	}

	f.mu.Lock()
	prev := f.done
	f.state = FlowAuthorizing
	f.attempts = 0
	f.lastCode = ""
	f.done = make(chan FlowResult, 1)
	f.mu.Unlock()

	// A restart abandons any in-flight flow; its waiter is released the
	// same way a cancel would.
	if prev != nil {
		prev <- FlowResult{Err: ErrFlowCancelled}
	}

	state, err := f.states.Generate(ctx)
	if err != nil {
		stateErr := autherrors.NewNetwork("could not issue state token", err)
		f.fail(stateErr)
		return "", stateErr
	}

	authURL, err := tiktok.BuildAuthURL(creds.AppID, creds.RedirectURI, state)
	if err != nil {
		f.fail(err)
		return "", err
	}

	record := domain.ConnectionRecord{
		Platform:           domain.PlatformTikTok,
		Status:             domain.StatusPending,
		VerificationStatus: domain.VerificationPending,
		AppID:              creds.AppID,
		ClientSecret:       f.vault.Encrypt(creds.ClientSecret),
		RedirectURI:        creds.RedirectURI,
		LastUpdated:        f.clock.Now().UTC(),
	}
	if err := f.connections.Put(ctx, record); err != nil {
		f.fail(err)
		return "", err
	}

	f.mu.Lock()
	f.state = FlowAwaitingCallback
	f.mu.Unlock()

	f.logger.Info(ctx, "authorization started", map[string]interface{}{
		"app_id": creds.AppID,
	})
	return authURL, nil
}

// HandleCallback resumes the flow when the provider redirects back with
// an authorization code and the state token.
func (f *FlowService) HandleCallback(ctx context.Context, authCode, state string) (domain.ConnectionRecord, error) {
	if authCode == "" || state == "" {
		var missing []string
		if authCode == "" {
			missing = append(missing, "auth_code")
		}
		if state == "" {
			missing = append(missing, "state")
		}
		err := autherrors.NewMissingParameters(missing...)
		f.fail(err)
		return domain.ConnectionRecord{}, err
	}

	if !f.states.Validate(ctx, state) {
		err := autherrors.NewInvalidState("state validation failed, possible CSRF or stale callback")
		f.fail(err)
		return domain.ConnectionRecord{}, err
	}

	f.mu.Lock()
	f.state = FlowExchanging
	f.lastCode = authCode
	f.mu.Unlock()

	return f.exchange(ctx, authCode)
}

// Retry re-attempts a failed exchange with the last callback's code. The
// retry bound counts all attempts, the original included.
func (f *FlowService) Retry(ctx context.Context) (domain.ConnectionRecord, error) {
	f.mu.Lock()
	if f.state != FlowExchanging || f.lastCode == "" {
		f.mu.Unlock()
		return domain.ConnectionRecord{}, autherrors.NewInvalidState("no failed exchange to retry")
	}
	code := f.lastCode
	f.mu.Unlock()

	return f.exchange(ctx, code)
}

// Cancel aborts the flow without recording a failure. Closing the consent
// popup is a user decision, not an error, but the completion channel
// still resolves with ErrFlowCancelled so no waiter is left hanging.
func (f *FlowService) Cancel(ctx context.Context) {
	f.mu.Lock()
	f.state = FlowIdle
	f.attempts = 0
	f.lastCode = ""
	done := f.done
	f.done = nil
	f.mu.Unlock()

	if done != nil {
		done <- FlowResult{Err: ErrFlowCancelled}
	}

	if err := f.states.store.Delete(ctx); err != nil {
		f.logger.Warn(ctx, "could not delete pending state on cancel", nil)
	}
	f.logger.Info(ctx, "authorization cancelled by operator", nil)
}

func (f *FlowService) exchange(ctx context.Context, code string) (domain.ConnectionRecord, error) {
	f.mu.Lock()
	f.attempts++
	attempt := f.attempts
	f.mu.Unlock()

	record, err := f.connections.Get(ctx, domain.PlatformTikTok)
	if err != nil {
		wrapped := autherrors.NewNotConfigured("tiktok")
		f.fail(wrapped)
		return domain.ConnectionRecord{}, wrapped
	}

	f.logger.Info(ctx, "exchanging authorization code", map[string]interface{}{
		"attempt": attempt,
	})

	bundle, err := f.exchanger.Exchange(ctx, tiktok.ExchangeParams{
		Code:         code,
		AppID:        record.AppID,
		ClientSecret: f.vault.Decrypt(record.ClientSecret),
		RedirectURI:  record.RedirectURI,
	})
	if err != nil {
		f.logger.Error(ctx, "token exchange attempt failed", err, map[string]interface{}{
			"attempt": attempt,
		})
		if attempt >= maxExchangeAttempts {
			f.fail(err)
			return domain.ConnectionRecord{}, err
		}
		// Flow stays in exchanging; the operator may trigger Retry.
		return domain.ConnectionRecord{}, err
	}

	now := f.clock.Now().UTC()
	record.Status = domain.StatusConnected
	record.VerificationStatus = domain.VerificationVerified
	record.AccessToken = f.vault.Encrypt(bundle.AccessToken)
	record.RefreshToken = f.vault.Encrypt(bundle.RefreshToken)
	record.TokenExpiry = bundle.TokenExpiry
	record.LastVerified = now
	record.LastUpdated = now

	if err := f.connections.Put(ctx, record); err != nil {
		f.fail(err)
		return domain.ConnectionRecord{}, err
	}

	f.mu.Lock()
	f.state = FlowConnected
	done := f.done
	f.done = nil
	f.mu.Unlock()

	if done != nil {
		done <- FlowResult{Record: record}
	}

	f.logger.Info(ctx, "platform connected", map[string]interface{}{
		"platform": string(domain.PlatformTikTok),
	})
	return record, nil
}

// fail moves the flow to the error state and resolves the completion
// channel.
func (f *FlowService) fail(err error) {
	f.mu.Lock()
	f.state = FlowError
	done := f.done
	f.done = nil
	f.mu.Unlock()

	if done != nil {
		done <- FlowResult{Err: err}
	}
}
