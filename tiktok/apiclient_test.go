package tiktok

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/internal/clock"
	"github.com/brandpulse-io/adconnect/vault"
)

type fetchCall struct {
	method  string
	target  string
	headers map[string]string
	body    any
}

type fakeFetcher struct {
	calls    []fetchCall
	response string
	err      error
}

func (f *fakeFetcher) Do(_ context.Context, method, target string, headers map[string]string, body, out any) error {
	f.calls = append(f.calls, fetchCall{method: method, target: target, headers: headers, body: body})
	if f.err != nil {
		return f.err
	}
	if out != nil && f.response != "" {
		return json.Unmarshal([]byte(f.response), out)
	}
	return nil
}

type fakeRefresher struct {
	calls  int
	params RefreshParams
	bundle domain.TokenBundle
	err    error
}

func (f *fakeRefresher) Refresh(_ context.Context, params RefreshParams) (domain.TokenBundle, error) {
	f.calls++
	f.params = params
	if f.err != nil {
		return domain.TokenBundle{}, f.err
	}
	return f.bundle, nil
}

type factoryFixture struct {
	factory     *ClientFactory
	connections *cache.MemoryConnectionStore
	vault       vault.Vault
	fetch       *fakeFetcher
	refresher   *fakeRefresher
	clock       *clock.Fixed
}

func newFactoryFixture(t *testing.T) *factoryFixture {
	t.Helper()
	fx := &factoryFixture{
		connections: cache.NewMemoryConnectionStore(),
		vault:       vault.NewObfuscator("factory-test-key", nil),
		fetch:       &fakeFetcher{},
		refresher:   &fakeRefresher{},
		clock:       &clock.Fixed{At: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	fx.factory = NewClientFactory(fx.connections, fx.vault, fx.refresher, fx.fetch, fx.clock, nil).
		WithAPIBase("https://api.test")
	return fx
}

// seedConnection stores a connected record whose token expires at the
// given instant.
func (fx *factoryFixture) seedConnection(t *testing.T, expiry time.Time) {
	t.Helper()
	err := fx.connections.Put(context.Background(), domain.ConnectionRecord{
		Platform:     domain.PlatformTikTok,
		Status:       domain.StatusConnected,
		AppID:        "123",
		ClientSecret: fx.vault.Encrypt("s3cr3t"),
		AccessToken:  fx.vault.Encrypt("AT"),
		RefreshToken: fx.vault.Encrypt("RT"),
		TokenExpiry:  expiry,
	})
	require.NoError(t, err)
}

func TestClientFreshTokenSkipsRefresh(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(10*time.Minute))

	client, err := fx.factory.Client(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fx.refresher.calls, "a token outside the refresh window must not be refreshed")

	require.NoError(t, client.Get(context.Background(), "/advertiser/info/", nil, nil))
	require.Len(t, fx.fetch.calls, 1)
	assert.Equal(t, "AT", fx.fetch.calls[0].headers["Access-Token"])
}

func TestClientRefreshesInsideWindow(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(4*time.Minute))
	fx.refresher.bundle = domain.TokenBundle{
		AccessToken:  "AT-new",
		RefreshToken: "RT-new",
		TokenExpiry:  fx.clock.At.Add(2 * time.Hour),
	}

	client, err := fx.factory.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fx.refresher.calls)
	assert.Equal(t, RefreshParams{RefreshToken: "RT", AppID: "123", ClientSecret: "s3cr3t"}, fx.refresher.params)

	require.NoError(t, client.Get(context.Background(), "/campaign/get/", nil, nil))
	require.Len(t, fx.fetch.calls, 1)
	assert.Equal(t, "AT-new", fx.fetch.calls[0].headers["Access-Token"])
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(-time.Hour))
	fx.refresher.bundle = domain.TokenBundle{
		AccessToken:  "AT-new",
		RefreshToken: "RT-new",
		TokenExpiry:  fx.clock.At.Add(2 * time.Hour),
	}

	_, err := fx.factory.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fx.refresher.calls)
}

func TestClientRefreshFailureAbortsBuild(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(time.Minute))
	fx.refresher.err = autherrors.NewProvider("refresh rejected", 401, "")

	_, err := fx.factory.Client(context.Background())
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindTokenRefresh))
	assert.Empty(t, fx.fetch.calls, "no API call may go out with a stale token")
}

func TestClientNotConfigured(t *testing.T) {
	fx := newFactoryFixture(t)

	_, err := fx.factory.Client(context.Background())
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindNotConfigured))
}

func TestClientRecordWithoutTokenNotConfigured(t *testing.T) {
	fx := newFactoryFixture(t)
	require.NoError(t, fx.connections.Put(context.Background(), domain.ConnectionRecord{
		Platform: domain.PlatformTikTok,
		Status:   domain.StatusPending,
		AppID:    "123",
	}))

	_, err := fx.factory.Client(context.Background())
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindNotConfigured))
}

func TestClientGetEncodesQuery(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(10*time.Minute))

	client, err := fx.factory.Client(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Get(context.Background(), "/campaign/stats/", map[string][]string{
		"advertiser_id": {"999"},
	}, nil))
	require.Len(t, fx.fetch.calls, 1)
	assert.Equal(t, "https://api.test/campaign/stats/?advertiser_id=999", fx.fetch.calls[0].target)
}

func TestVerifyAccess(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.fetch.response = `{"data":{"list":[{"advertiser_id":"999","advertiser_name":"Acme"}]}}`

	ok := fx.factory.VerifyAccess(context.Background(), "AT", "999")
	assert.True(t, ok)
	require.Len(t, fx.fetch.calls, 1)
	assert.Equal(t, "AT", fx.fetch.calls[0].headers["Access-Token"])
	assert.True(t, strings.HasPrefix(fx.fetch.calls[0].target, "https://api.test/advertiser/info/?"))
}

func TestVerifyAccessEmptyListIsFalse(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.fetch.response = `{"data":{"list":[]}}`

	assert.False(t, fx.factory.VerifyAccess(context.Background(), "AT", "999"))
}

func TestVerifyAccessErrorIsFalse(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.fetch.err = autherrors.NewNetwork("unreachable", nil)

	assert.False(t, fx.factory.VerifyAccess(context.Background(), "AT", "999"))
}

func TestListCampaigns(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(10*time.Minute))
	fx.fetch.response = `{"data":{"list":[
		{"campaign_id":"c1","campaign_name":"Spring Sale","operation_status":"ENABLE","objective_type":"TRAFFIC"},
		{"campaign_id":"c2","campaign_name":"Brand Push","operation_status":"DISABLE","objective_type":"REACH"}
	]}}`

	client, err := fx.factory.Client(context.Background())
	require.NoError(t, err)

	campaigns, err := client.ListCampaigns(context.Background(), "999")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "Spring Sale", campaigns[0].CampaignName)
	assert.Equal(t, "DISABLE", campaigns[1].Status)
}

func TestListCampaignsSurfacesError(t *testing.T) {
	fx := newFactoryFixture(t)
	fx.seedConnection(t, fx.clock.At.Add(10*time.Minute))
	fx.fetch.err = autherrors.NewProvider("rate limited", 429, "")

	client, err := fx.factory.Client(context.Background())
	require.NoError(t, err)

	_, err = client.ListCampaigns(context.Background(), "999")
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindProvider))
}
