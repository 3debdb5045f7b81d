package tiktok

import (
	"context"
	"net/http"
	"time"

	"github.com/brandpulse-io/adconnect/domain"
	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/log"
)

// RefreshParams are the inputs of the refresh-token grant.
type RefreshParams struct {
	RefreshToken string
	AppID        string
	ClientSecret string
}

// Refresher obtains a fresh TokenBundle from a refresh token. Implemented
// by RefreshClient; the client factory takes the interface so tests can
// substitute a fake.
type Refresher interface {
	Refresh(ctx context.Context, params RefreshParams) (domain.TokenBundle, error)
}

// RefreshClient performs the refresh-token grant. Same response contract
// as the exchange: non-empty access token, expiry computed locally.
type RefreshClient struct {
	endpoint string
	http     *http.Client
	clock    clock.Clock
	logger   log.Logger
}

func NewRefreshClient(clk clock.Clock, logger log.Logger) *RefreshClient {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &RefreshClient{
		endpoint: RefreshEndpoint,
		http:     &http.Client{Timeout: grantTimeout},
		clock:    clk,
		logger:   logger,
	}
}

// WithEndpoint redirects the grant, for tests or for routing through a
// backend proxy that keeps the client secret off less trusted hosts.
func (c *RefreshClient) WithEndpoint(endpoint string) *RefreshClient {
	c.endpoint = endpoint
	return c
}

func (c *RefreshClient) Refresh(ctx context.Context, params RefreshParams) (domain.TokenBundle, error) {
	missing := map[string]bool{
		"refreshToken": params.RefreshToken == "",
		"appId":        params.AppID == "",
		"clientSecret": params.ClientSecret == "",
	}
	for _, absent := range missing {
		if absent {
			return domain.TokenBundle{}, autherrors.NewValidation("missing required refresh inputs", missing)
		}
	}

	c.logger.Info(ctx, "refreshing access token", map[string]interface{}{"app_id": params.AppID})

	body := map[string]string{
		"app_id":        params.AppID,
		"secret":        params.ClientSecret,
		"refresh_token": params.RefreshToken,
	}
	data, err := postGrant(ctx, c.http, c.endpoint, body)
	if err != nil {
		c.logger.Error(ctx, "token refresh failed", err, map[string]interface{}{"app_id": params.AppID})
		return domain.TokenBundle{}, err
	}

	bundle, err := normalizeGrant(data, c.clock.Now())
	if err != nil {
		return domain.TokenBundle{}, err
	}

	c.logger.Info(ctx, "token refresh succeeded", map[string]interface{}{
		"expiry": bundle.TokenExpiry.Format(time.RFC3339),
	})
	return bundle, nil
}
