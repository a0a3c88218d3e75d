// Package stalker is a client for Stalker/MAG middleware portals. The portal
// speaks a single load.php endpoint driven by type/action query parameters;
// every call after the MAC handshake carries the bearer token the handshake
// returned.
package stalker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/opentv/opentv/internal/httpclient"
)

// ItemKind selects which portal catalog a call addresses.
type ItemKind string

const (
	KindLive   ItemKind = "itv"
	KindVOD    ItemKind = "vod"
	KindSeries ItemKind = "series"
)

// Client talks to one Stalker portal on behalf of one MAC identity.
type Client struct {
	portal *url.URL
	mac    string
	token  string
	httpc  *http.Client
	log    zerolog.Logger

	// Page fetches run concurrently; the semaphore bounds how many are in
	// flight and the limiter spaces them out so large catalogs don't hammer
	// the portal.
	pageSem     *semaphore.Weighted
	pageLimiter *rate.Limiter
}

// NewClient validates the portal parameters and builds a client. No request
// leaves the process until Handshake.
func NewClient(rawURL, mac, userAgent string, pageConcurrency int64, pagesPerSecond float64, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("stalker: missing portal URL")
	}
	if mac == "" {
		return nil, errors.New("stalker: missing MAC address")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("stalker: parse portal URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("stalker: portal URL %q has no scheme or host", rawURL)
	}
	if pageConcurrency < 1 {
		pageConcurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(pagesPerSecond), 1)
	}
	return &Client{
		portal:      u,
		mac:         mac,
		httpc:       httpclient.WithUserAgent(nil, userAgent),
		log:         log,
		pageSem:     semaphore.NewWeighted(pageConcurrency),
		pageLimiter: limiter,
	}, nil
}

// jsEnvelope is the portal's universal response wrapper.
type jsEnvelope struct {
	JS json.RawMessage `json:"js"`
}

// getJS performs one portal call and decodes the js payload into v.
func (c *Client) getJS(ctx context.Context, typ, action string, extra url.Values, v any) error {
	u := *c.portal
	q := u.Query()
	q.Set("type", typ)
	q.Set("action", action)
	q.Set("JsHttpRequest", "1-xml")
	for k, vals := range extra {
		for _, val := range vals {
			q.Add(k, val)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cookie", fmt.Sprintf("mac=%s; stb_lang=en; timezone=UTC", url.QueryEscape(c.mac)))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := httpclient.DoWithRetry(ctx, c.httpc, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return fmt.Errorf("stalker %s/%s: %w", typ, action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stalker %s/%s: unexpected status %s", typ, action, resp.Status)
	}
	var env jsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("stalker %s/%s: decode: %w", typ, action, err)
	}
	if len(env.JS) == 0 {
		return fmt.Errorf("stalker %s/%s: empty js payload", typ, action)
	}
	if err := json.Unmarshal(env.JS, v); err != nil {
		return fmt.Errorf("stalker %s/%s: decode js: %w", typ, action, err)
	}
	return nil
}

// Handshake obtains the bearer token for this MAC. It must complete before
// any catalog call.
func (c *Client) Handshake(ctx context.Context) error {
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.getJS(ctx, "stb", "handshake", url.Values{"token": []string{""}}, &payload); err != nil {
		return err
	}
	if payload.Token == "" {
		return errors.New("stalker: handshake returned no token")
	}
	c.token = payload.Token
	return nil
}
