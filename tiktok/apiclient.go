package tiktok

import (
	"context"
	"net/url"
	"time"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/log"
	"github.com/brandpulse-io/adconnect/vault"
)

// refreshWindow is how close to expiry a token may get before a call
// triggers a refresh first.
const refreshWindow = 5 * time.Minute

// Fetcher issues an HTTP request and decodes the JSON response.
// Satisfied by httpx.Client.
type Fetcher interface {
	Do(ctx context.Context, method, target string, headers map[string]string, body, out any) error
}

// ClientFactory builds authenticated API clients from the stored TikTok
// connection. It checks token freshness on every build and refreshes
// synchronously when the token is inside the refresh window; a failed
// refresh aborts the build so no call goes out with a stale token.
type ClientFactory struct {
	connections cache.ConnectionStore
	vault       vault.Vault
	refresher   Refresher
	fetch       Fetcher
	clock       clock.Clock
	logger      log.Logger
	apiBase     string
}

func NewClientFactory(
	connections cache.ConnectionStore,
	v vault.Vault,
	refresher Refresher,
	fetch Fetcher,
	clk clock.Clock,
	logger log.Logger,
) *ClientFactory {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &ClientFactory{
		connections: connections,
		vault:       v,
		refresher:   refresher,
		fetch:       fetch,
		clock:       clk,
		logger:      logger,
		apiBase:     APIBase,
	}
}

// WithAPIBase points the built clients at a different API root.
func (f *ClientFactory) WithAPIBase(base string) *ClientFactory {
	f.apiBase = base
	return f
}

// Client returns an authenticated APIClient for the TikTok connection.
func (f *ClientFactory) Client(ctx context.Context) (*APIClient, error) {
	record, err := f.connections.Get(ctx, domain.PlatformTikTok)
	if err != nil || record.AccessToken == "" {
		return nil, autherrors.NewNotConfigured("tiktok")
	}

	accessToken := record.AccessToken
	if until := record.TokenExpiry.Sub(f.clock.Now()); until <= refreshWindow {
		f.logger.Info(ctx, "access token near expiry, refreshing", map[string]interface{}{
			"seconds_left": int(until.Seconds()),
		})
		bundle, err := f.refresher.Refresh(ctx, RefreshParams{
			RefreshToken: f.vault.Decrypt(record.RefreshToken),
			AppID:        record.AppID,
			ClientSecret: f.vault.Decrypt(record.ClientSecret),
		})
		if err != nil {
			return nil, autherrors.NewTokenRefresh(err)
		}
		// Only the in-memory token fields change here; the connection
		// record's write path belongs to the flow orchestrator.
		accessToken = f.vault.Encrypt(bundle.AccessToken)
		record.AccessToken = accessToken
		record.RefreshToken = f.vault.Encrypt(bundle.RefreshToken)
		record.TokenExpiry = bundle.TokenExpiry
	}

	token := f.vault.Decrypt(accessToken)
	if token == "" {
		return nil, autherrors.NewNotConfigured("tiktok")
	}

	return &APIClient{
		base:   f.apiBase,
		token:  token,
		fetch:  f.fetch,
		logger: f.logger,
	}, nil
}

// APIClient issues authenticated calls through the resilient fetch layer.
type APIClient struct {
	base   string
	token  string
	fetch  Fetcher
	logger log.Logger
}

func (c *APIClient) headers() map[string]string {
	return map[string]string{"Access-Token": c.token}
}

// Get issues an authenticated GET with optional query parameters.
func (c *APIClient) Get(ctx context.Context, path string, params url.Values, out any) error {
	target := c.base + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return c.fetch.Do(ctx, "GET", target, c.headers(), nil, out)
}

// Post issues an authenticated POST. See the Fetcher's idempotence caveat
// before adding new POST call sites.
func (c *APIClient) Post(ctx context.Context, path string, body, out any) error {
	return c.fetch.Do(ctx, "POST", c.base+path, c.headers(), body, out)
}

// advertiserList is the advertiser/info response payload.
type advertiserList struct {
	Data struct {
		List []struct {
			AdvertiserID   string `json:"advertiser_id"`
			AdvertiserName string `json:"advertiser_name"`
		} `json:"list"`
	} `json:"data"`
}

// VerifyAccess probes advertiser/info with the given token and reports
// whether the platform accepts it. Errors map to false; this is a probe,
// not an operation.
func (f *ClientFactory) VerifyAccess(ctx context.Context, accessToken, advertiserID string) bool {
	params := url.Values{}
	params.Set("advertiser_ids", `["`+advertiserID+`"]`)

	var out advertiserList
	err := f.fetch.Do(ctx, "GET", f.apiBase+AdvertiserInfoPath+"?"+params.Encode(),
		map[string]string{"Access-Token": accessToken}, nil, &out)
	if err != nil {
		f.logger.Warn(ctx, "advertiser access probe failed", map[string]interface{}{
			"advertiser_id": advertiserID,
		})
		return false
	}
	return len(out.Data.List) > 0
}

// Campaign is one row of the campaign list.
type Campaign struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	Status       string `json:"operation_status"`
	Objective    string `json:"objective_type"`
}

type campaignListEnvelope struct {
	Data struct {
		List []Campaign `json:"list"`
	} `json:"data"`
}

// ListCampaigns fetches the campaign list for an advertiser. Callers must
// surface errors, never silently show an empty list.
func (c *APIClient) ListCampaigns(ctx context.Context, advertiserID string) ([]Campaign, error) {
	params := url.Values{}
	params.Set("advertiser_id", advertiserID)

	var out campaignListEnvelope
	if err := c.Get(ctx, CampaignListPath, params, &out); err != nil {
		return nil, err
	}
	return out.Data.List, nil
}
