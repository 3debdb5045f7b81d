// Package httpx implements the resilient fetch strategy the dashboard
// uses against the TikTok Business API: a direct request first, then an
// ordered chain of relay rewrites of the same URL, first success wins.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/log"
)

// Relay rewrites a target URL into a relayed form. The relay set is
// deployment configuration: the public CORS relays below are the
// prototype defaults, production should point at a backend-controlled
// proxy allowlist instead.
type Relay struct {
	Name    string
	Rewrite func(target string) string
}

// DefaultRelays returns the historical public relay chain, in order.
func DefaultRelays() []Relay {
	return []Relay{
		{
			Name:    "corsproxy.io",
			Rewrite: func(target string) string { return "https://corsproxy.io/?" + url.QueryEscape(target) },
		},
		{
			Name:    "allorigins",
			Rewrite: func(target string) string { return "https://api.allorigins.win/raw?url=" + url.QueryEscape(target) },
		},
		{
			Name:    "cors-anywhere",
			Rewrite: func(target string) string { return "https://cors-anywhere.herokuapp.com/" + target },
		},
	}
}

// Client issues requests with relay fallback.
//
// GET requests are safe to retry across relays. POST is not idempotent at
// this layer: a relay that delivered the request upstream but failed to
// return the response will cause a duplicate side effect on retry. The
// token endpoints tolerate this; any new POST use must weigh it.
type Client struct {
	http           *http.Client
	relays         []Relay
	attemptTimeout time.Duration
	logger         log.Logger
}

// NewClient creates a Client with a per-attempt timeout of 10 seconds.
// A nil relays slice means direct-only.
func NewClient(relays []Relay, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		http:           &http.Client{},
		relays:         relays,
		attemptTimeout: 10 * time.Second,
		logger:         logger,
	}
}

// Do issues the request directly, then through each relay in order, and
// decodes the first successful JSON response into out. When every attempt
// fails the returned error wraps the last failure, not the first; the
// attempt log holds the rest.
func (c *Client) Do(ctx context.Context, method, target string, headers map[string]string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = raw
	}

	lastErr := c.attempt(ctx, "direct", method, target, headers, payload, out)
	if lastErr == nil {
		return nil
	}

	for _, relay := range c.relays {
		err := c.attempt(ctx, relay.Name, method, relay.Rewrite(target), headers, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return lastErr
}

func (c *Client) attempt(ctx context.Context, via, method, target string, headers map[string]string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return autherrors.NewNetwork("build request for "+via, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "fetch attempt failed", map[string]interface{}{
			"via": via, "method": method,
		})
		return autherrors.NewNetwork("request via "+via, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn(ctx, "fetch attempt body read failed", map[string]interface{}{"via": via})
		return autherrors.NewNetwork("read response via "+via, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn(ctx, "fetch attempt rejected", map[string]interface{}{
			"via": via, "status": resp.StatusCode,
		})
		return autherrors.NewProvider("request via "+via+" failed", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.logger.Warn(ctx, "fetch attempt returned non-JSON body", map[string]interface{}{"via": via})
			return autherrors.NewInvalidResponse("response via "+via+" is not valid JSON", string(raw))
		}
	}

	c.logger.Debug(ctx, "fetch attempt succeeded", map[string]interface{}{
		"via": via, "status": resp.StatusCode,
	})
	return nil
}
