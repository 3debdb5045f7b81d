package tiktok

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/internal/clock"
)

func validRefreshParams() RefreshParams {
	return RefreshParams{
		RefreshToken: "RT-old",
		AppID:        "123",
		ClientSecret: "s3cr3t",
	}
}

func TestRefreshValidatesBeforeNetwork(t *testing.T) {
	var calls int32
	server := grantServer(t, &calls, http.StatusOK, `{}`)
	client := NewRefreshClient(&clock.Fixed{At: testReceivedAt}, nil).WithEndpoint(server.URL)

	cases := []struct {
		name   string
		mutate func(*RefreshParams)
	}{
		{"missing refresh token", func(p *RefreshParams) { p.RefreshToken = "" }},
		{"missing app id", func(p *RefreshParams) { p.AppID = "" }},
		{"missing secret", func(p *RefreshParams) { p.ClientSecret = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validRefreshParams()
			tc.mutate(&params)
			_, err := client.Refresh(context.Background(), params)
			require.Error(t, err)
			assert.True(t, autherrors.IsKind(err, autherrors.KindValidation))
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRefreshRotatesBothTokens(t *testing.T) {
	var calls int32
	server := grantServer(t, &calls, http.StatusOK,
		`{"code":0,"message":"OK","data":{"access_token":"AT-new","refresh_token":"RT-new","expires_in":7200}}`)
	client := NewRefreshClient(&clock.Fixed{At: testReceivedAt}, nil).WithEndpoint(server.URL)

	bundle, err := client.Refresh(context.Background(), validRefreshParams())
	require.NoError(t, err)
	assert.Equal(t, "AT-new", bundle.AccessToken)
	assert.Equal(t, "RT-new", bundle.RefreshToken)
	assert.Equal(t, testReceivedAt.Add(2*time.Hour), bundle.TokenExpiry)
}

func TestRefreshMissingAccessToken(t *testing.T) {
	var calls int32
	server := grantServer(t, &calls, http.StatusOK, `{"code":40100,"message":"refresh_token invalid","data":{}}`)
	client := NewRefreshClient(&clock.Fixed{At: testReceivedAt}, nil).WithEndpoint(server.URL)

	_, err := client.Refresh(context.Background(), validRefreshParams())
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindInvalidResponse))
}

func TestRefreshProviderRejection(t *testing.T) {
	var calls int32
	server := grantServer(t, &calls, http.StatusUnauthorized, `{"message":"expired"}`)
	client := NewRefreshClient(&clock.Fixed{At: testReceivedAt}, nil).WithEndpoint(server.URL)

	_, err := client.Refresh(context.Background(), validRefreshParams())
	require.Error(t, err)
	assert.True(t, autherrors.IsKind(err, autherrors.KindProvider))
}

func TestRefreshSendsProviderWireFormat(t *testing.T) {
	var captured map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"access_token":"AT","refresh_token":"RT","expires_in":7200}}`))
	}))
	defer server.Close()
	client := NewRefreshClient(&clock.Fixed{At: testReceivedAt}, nil).WithEndpoint(server.URL)

	_, err := client.Refresh(context.Background(), validRefreshParams())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"app_id":        "123",
		"secret":        "s3cr3t",
		"refresh_token": "RT-old",
	}, captured)
}
