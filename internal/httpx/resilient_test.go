package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherrors "github.com/brandpulse-io/adconnect/errors"
)

// relayTo builds a Relay whose rewrite points every request at base,
// carrying the original target in a query parameter like the public
// relays do.
func relayTo(name, base string) Relay {
	return Relay{
		Name:    name,
		Rewrite: func(target string) string { return base + "/?url=" + target },
	}
}

func jsonServer(t *testing.T, calls *int32, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDoDirectSuccessSkipsRelays(t *testing.T) {
	var direct, relayed int32
	server := jsonServer(t, &direct, http.StatusOK, `{"ok":true}`)
	relay := jsonServer(t, &relayed, http.StatusOK, `{"ok":true}`)

	client := NewClient([]Relay{relayTo("relay", relay.URL)}, nil)

	var out map[string]bool
	err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil, &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&direct))
	assert.Equal(t, int32(0), atomic.LoadInt32(&relayed), "relays must not be tried after a direct success")
}

func TestDoFallsBackToFirstWorkingRelay(t *testing.T) {
	var first, second int32
	working := jsonServer(t, &first, http.StatusOK, `{"via":"relay-1"}`)
	unused := jsonServer(t, &second, http.StatusOK, `{"via":"relay-2"}`)

	client := NewClient([]Relay{
		relayTo("relay-1", working.URL),
		relayTo("relay-2", unused.URL),
	}, nil)

	var out map[string]string
	err := client.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/down", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "relay-1", out["via"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&first))
	assert.Equal(t, int32(0), atomic.LoadInt32(&second), "later relays must not run after a relay success")
}

func TestDoExhaustionSurfacesLastFailure(t *testing.T) {
	var first, second int32
	relay1 := jsonServer(t, &first, http.StatusBadGateway, `{"error":"relay one down"}`)
	relay2 := jsonServer(t, &second, http.StatusServiceUnavailable, `{"error":"relay two down"}`)

	client := NewClient([]Relay{
		relayTo("relay-1", relay1.URL),
		relayTo("relay-2", relay2.URL),
	}, nil)

	err := client.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/down", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))

	var ae *autherrors.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusServiceUnavailable, ae.Status, "the last attempt's failure is the one raised")
}

func TestDoDirectOnlyWithoutRelays(t *testing.T) {
	client := NewClient(nil, nil)

	err := client.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1/down", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindNetwork))
}

func TestDoSendsHeadersAndBody(t *testing.T) {
	var gotToken string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("Access-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(nil, nil)
	err := client.Do(context.Background(), http.MethodPost, server.URL,
		map[string]string{"Access-Token": "AT"},
		map[string]string{"advertiser_id": "999"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "AT", gotToken)
	assert.Equal(t, map[string]string{"advertiser_id": "999"}, gotBody)
}

func TestDoRejectsNonJSONSuccess(t *testing.T) {
	var calls int32
	server := jsonServer(t, &calls, http.StatusOK, `<html>relay interstitial</html>`)

	client := NewClient(nil, nil)
	var out map[string]any
	err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil, &out)
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindInvalidResponse))
}

func TestDefaultRelayRewrites(t *testing.T) {
	relays := DefaultRelays()
	require.Len(t, relays, 3)

	target := "https://business-api.tiktok.com/open_api/v1.3/campaign/get/?advertiser_id=1"

	assert.Equal(t, "corsproxy.io", relays[0].Name)
	assert.True(t, strings.HasPrefix(relays[0].Rewrite(target), "https://corsproxy.io/?"))
	assert.NotContains(t, relays[0].Rewrite(target), "advertiser_id=1", "target must be query-escaped")

	assert.Equal(t, "allorigins", relays[1].Name)
	assert.True(t, strings.HasPrefix(relays[1].Rewrite(target), "https://api.allorigins.win/raw?url="))

	assert.Equal(t, "cors-anywhere", relays[2].Name)
	assert.Equal(t, "https://cors-anywhere.herokuapp.com/"+target, relays[2].Rewrite(target))
}
