// Package tiktok implements the TikTok Business API token lifecycle:
// authorization URL construction, the authorization-code and refresh
// grants, and the authenticated API client used for campaign reads.
package tiktok

import "time"

const (
	// APIBase is the TikTok Business API root.
	APIBase = "https://business-api.tiktok.com/open_api/v1.3"
	// AuthURL is the consent page the browser is sent to.
	AuthURL = "https://business-api.tiktok.com/portal/auth"

	// ExchangeEndpoint and RefreshEndpoint are the provider token grants.
	ExchangeEndpoint = APIBase + "/oauth2/access_token/"
	RefreshEndpoint  = APIBase + "/oauth2/refresh_token/"

	// AdvertiserInfoPath, CampaignListPath and CampaignStatsPath are the
	// API paths the dashboard reads.
	AdvertiserInfoPath = "/advertiser/info/"
	CampaignListPath   = "/campaign/get/"
	CampaignStatsPath  = "/campaign/stats/"
)

// Scopes are requested during authorization, joined by commas in the URL.
var Scopes = []string{"user.info", "ad.read", "ad.write"}

const (
	// grantTimeout bounds the exchange and refresh calls.
	grantTimeout = 15 * time.Second

	// DefaultExpiresIn is assumed when the provider omits expires_in.
	DefaultExpiresIn = 7200

	// minAuthCodeLength rejects obviously truncated authorization codes
	// before any network call.
	minAuthCodeLength = 10
)

// tokenData is the inner payload of a successful grant response.
type tokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// grantEnvelope is the provider's response wrapper.
type grantEnvelope struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    tokenData `json:"data"`
}
