package domain

import "time"

// Platform identifies an advertising platform connection slot.
type Platform string

const (
	PlatformTikTok Platform = "tiktok"
	PlatformMeta   Platform = "meta"
	PlatformGoogle Platform = "google"
)

// ConnectionStatus is the lifecycle state of a platform connection.
type ConnectionStatus string

const (
	StatusPending   ConnectionStatus = "pending"
	StatusConnected ConnectionStatus = "connected"
	StatusError     ConnectionStatus = "error"
)

// VerificationStatus records whether the stored credentials have been
// proven against the platform API.
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "pending"
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
)

// Credentials are the operator-supplied TikTok app credentials. Immutable
// for the duration of one authorization attempt.
type Credentials struct {
	AppID        string `json:"appId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
}

// TokenBundle is the normalized result of a token exchange or refresh.
// TokenExpiry is always computed as receipt time + expires_in; it is never
// taken verbatim from the provider.
type TokenBundle struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
}

// ConnectionRecord is the persisted per-platform credential and status
// bundle. Token fields are stored encrypted by the vault; AppID and the
// status fields are plain.
type ConnectionRecord struct {
	Platform           Platform           `json:"platform" bson:"platform"`
	Status             ConnectionStatus   `json:"status" bson:"status"`
	VerificationStatus VerificationStatus `json:"verificationStatus" bson:"verification_status"`
	AppID              string             `json:"appId" bson:"app_id"`
	ClientSecret       string             `json:"clientSecret,omitempty" bson:"client_secret,omitempty"`
	RedirectURI        string             `json:"redirectUri,omitempty" bson:"redirect_uri,omitempty"`
	AccessToken        string             `json:"accessToken,omitempty" bson:"access_token,omitempty"`
	RefreshToken       string             `json:"refreshToken,omitempty" bson:"refresh_token,omitempty"`
	TokenExpiry        time.Time          `json:"tokenExpiry,omitempty" bson:"token_expiry,omitempty"`
	LastVerified       time.Time          `json:"lastVerified,omitempty" bson:"last_verified,omitempty"`
	LastUpdated        time.Time          `json:"lastUpdated" bson:"last_updated"`
}

// Redacted returns a copy safe to return from status endpoints: secret
// and token fields are cleared, expiry and status survive.
func (r ConnectionRecord) Redacted() ConnectionRecord {
	r.ClientSecret = ""
	r.AccessToken = ""
	r.RefreshToken = ""
	return r
}

// AuthState is the single pending anti-CSRF token for an in-flight
// authorization. At most one lives per session; it expires five minutes
// after creation regardless of use.
type AuthState struct {
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
