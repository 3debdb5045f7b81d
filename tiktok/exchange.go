package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brandpulse-io/adconnect/domain"
	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/log"
)

// ExchangeParams are the inputs of the authorization-code grant.
type ExchangeParams struct {
	Code         string
	AppID        string
	ClientSecret string
	RedirectURI  string
}

// ExchangeClient performs the authorization-code grant against the
// provider token endpoint. One POST per call; no partial state survives
// a failure.
type ExchangeClient struct {
	endpoint string
	http     *http.Client
	clock    clock.Clock
	logger   log.Logger
}

// NewExchangeClient creates an ExchangeClient against the production
// endpoint. Tests override the endpoint with WithEndpoint.
func NewExchangeClient(clk clock.Clock, logger log.Logger) *ExchangeClient {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &ExchangeClient{
		endpoint: ExchangeEndpoint,
		http:     &http.Client{Timeout: grantTimeout},
		clock:    clk,
		logger:   logger,
	}
}

// WithEndpoint redirects the grant to a different URL and returns the
// client for chaining.
func (c *ExchangeClient) WithEndpoint(endpoint string) *ExchangeClient {
	c.endpoint = endpoint
	return c
}

// Exchange validates its inputs, performs the grant, and normalizes the
// response into a TokenBundle with a locally computed expiry.
func (c *ExchangeClient) Exchange(ctx context.Context, params ExchangeParams) (domain.TokenBundle, error) {
	// All checks run before the verdict so the error names every bad field.
	missing := map[string]bool{
		"code":         len(params.Code) < minAuthCodeLength,
		"appId":        params.AppID == "",
		"clientSecret": params.ClientSecret == "",
		"redirectUri":  params.RedirectURI == "",
	}
	for _, absent := range missing {
		if absent {
			return domain.TokenBundle{}, autherrors.NewValidation("invalid or missing exchange inputs", missing)
		}
	}

	c.logger.Info(ctx, "starting token exchange", map[string]interface{}{
		"app_id":      params.AppID,
		"code_prefix": params.Code[:minAuthCodeLength] + "...",
	})

	body := map[string]string{
		"app_id":     params.AppID,
		"secret":     params.ClientSecret,
		"auth_code":  params.Code,
		"grant_type": "authorization_code",
	}
	data, err := postGrant(ctx, c.http, c.endpoint, body)
	if err != nil {
		c.logger.Error(ctx, "token exchange failed", err, map[string]interface{}{"app_id": params.AppID})
		return domain.TokenBundle{}, err
	}

	bundle, err := normalizeGrant(data, c.clock.Now())
	if err != nil {
		c.logger.Error(ctx, "token exchange returned unusable expiry", err, nil)
		return domain.TokenBundle{}, err
	}

	c.logger.Info(ctx, "token exchange succeeded", map[string]interface{}{
		"expiry": bundle.TokenExpiry.Format(time.RFC3339),
	})
	return bundle, nil
}

// postGrant sends one grant POST and returns the inner token payload.
// Shared between the exchange and refresh clients.
func postGrant(ctx context.Context, client *http.Client, endpoint string, body map[string]string) (tokenData, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return tokenData{}, fmt.Errorf("encode grant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return tokenData{}, autherrors.NewNetwork("build grant request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return tokenData{}, autherrors.NewNetwork("token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenData{}, autherrors.NewNetwork("read token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return tokenData{}, autherrors.NewProvider("token endpoint rejected request", resp.StatusCode, string(raw))
	}

	var envelope grantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return tokenData{}, autherrors.NewInvalidResponse("token response is not valid JSON", string(raw))
	}
	if envelope.Data.AccessToken == "" {
		return tokenData{}, autherrors.NewInvalidResponse("token response missing access token", string(raw))
	}
	return envelope.Data, nil
}

// normalizeGrant computes the expiry from expires_in at receipt time and
// validates the resulting instant.
func normalizeGrant(data tokenData, receivedAt time.Time) (domain.TokenBundle, error) {
	expiresIn := data.ExpiresIn
	if expiresIn == 0 {
		expiresIn = DefaultExpiresIn
	}
	if expiresIn < 0 {
		return domain.TokenBundle{}, autherrors.NewTimestamp(
			fmt.Sprintf("negative expires_in %d", expiresIn), nil)
	}

	expiry := receivedAt.Add(time.Duration(expiresIn) * time.Second)
	if expiry.IsZero() || !expiry.After(receivedAt.Add(-time.Second)) {
		return domain.TokenBundle{}, autherrors.NewTimestamp("computed expiry is not a valid instant", nil)
	}

	return domain.TokenBundle{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		TokenExpiry:  expiry.UTC(),
	}, nil
}
