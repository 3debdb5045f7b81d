package errors

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind identifies the failure class of an AuthError. Callers branch on the
// kind, not on message text.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindMissingParameters Kind = "missing_parameters"
	KindInvalidState      Kind = "invalid_state"
	KindInvalidResponse   Kind = "invalid_response"
	KindTimestamp         Kind = "timestamp"
	KindNetwork           Kind = "network"
	KindProvider          Kind = "provider"
	KindNotConfigured     Kind = "not_configured"
	KindTokenRefresh      Kind = "token_refresh"
)

// AuthError is the single error type crossing the orchestrator boundary.
// Every instance carries a Kind from the taxonomy above and the wall-clock
// timestamp at which it was raised.
type AuthError struct {
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`

	// Missing names the absent input fields for validation failures.
	Missing []string `json:"missing,omitempty"`
	// Status and Body carry the upstream HTTP status and raw response body
	// for provider and invalid-response failures.
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`

	cause error
}

func (e *AuthError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s (missing: %s)", e.Kind, e.Description, strings.Join(e.Missing, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *AuthError) Unwrap() error { return e.cause }

// Is reports kind equality, so errors.Is(err, &AuthError{Kind: KindNetwork})
// matches any network failure.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err is an AuthError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *AuthError
	for ; err != nil; err = unwrapOnce(err) {
		if e, ok := err.(*AuthError); ok {
			ae = e
			break
		}
	}
	return ae != nil && ae.Kind == kind
}

func unwrapOnce(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func newError(kind Kind, description string) *AuthError {
	return &AuthError{
		Kind:        kind,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}

// NewValidation reports missing or malformed caller input. The missing map
// uses field name -> absent, matching the shape the dashboard displays.
func NewValidation(description string, missing map[string]bool) *AuthError {
	err := newError(KindValidation, description)
	for field, absent := range missing {
		if absent {
			err.Missing = append(err.Missing, field)
		}
	}
	sort.Strings(err.Missing)
	return err
}

// NewMissingParameters reports an OAuth callback arriving without the
// auth_code or state query parameters.
func NewMissingParameters(missing ...string) *AuthError {
	err := newError(KindMissingParameters, "missing required callback parameters")
	err.Missing = append(err.Missing, missing...)
	sort.Strings(err.Missing)
	return err
}

// NewInvalidState reports an anti-CSRF state token that failed validation.
func NewInvalidState(description string) *AuthError {
	return newError(KindInvalidState, description)
}

// NewInvalidResponse reports an upstream 2xx whose body violates the token
// contract. The raw body is retained for diagnostics only and must not be
// shown in the primary UI.
func NewInvalidResponse(description, body string) *AuthError {
	err := newError(KindInvalidResponse, description)
	err.Body = body
	return err
}

// NewTimestamp reports a computed or parsed expiry that is not a valid
// point in time.
func NewTimestamp(description string, cause error) *AuthError {
	err := newError(KindTimestamp, description)
	err.cause = cause
	return err
}

// NewNetwork reports a transport-level failure (connect, TLS, timeout).
func NewNetwork(description string, cause error) *AuthError {
	err := newError(KindNetwork, description)
	err.cause = cause
	return err
}

// NewProvider reports a non-2xx answer from the provider or proxy.
func NewProvider(description string, status int, body string) *AuthError {
	err := newError(KindProvider, description)
	err.Status = status
	err.Body = body
	return err
}

// NewNotConfigured reports an API call attempted before the platform has a
// stored access token.
func NewNotConfigured(platform string) *AuthError {
	return newError(KindNotConfigured, platform+" not configured")
}

// NewTokenRefresh reports a failed pre-call token refresh. The original
// call must not proceed with the stale token.
func NewTokenRefresh(cause error) *AuthError {
	err := newError(KindTokenRefresh, "failed to refresh access token")
	err.cause = cause
	return err
}
