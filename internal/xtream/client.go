// Package xtream is a client for Xtream-Codes compatible provider panels. One
// client serves a single source; all endpoints go through player_api.php with
// an action query parameter.
package xtream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/opentv/opentv/internal/httpclient"
)

const (
	actionLiveStreams      = "get_live_streams"
	actionLiveCategories   = "get_live_categories"
	actionVODStreams       = "get_vod_streams"
	actionVODCategories    = "get_vod_categories"
	actionSeries           = "get_series"
	actionSeriesCategories = "get_series_categories"
	actionSeriesInfo       = "get_series_info"
	actionShortEPG         = "get_simple_data_table"
)

// liveStreamExtension is used when a stream carries no container extension.
const liveStreamExtension = "ts"

// Client talks to one Xtream panel.
type Client struct {
	apiURL   *url.URL // player_api.php endpoint with credentials applied
	origin   string   // scheme://host[:port] for playback URL synthesis
	username string
	password string
	httpc    *http.Client
	log      zerolog.Logger

	now func() time.Time // test hook for EPG staleness
}

// NewClient validates the panel credentials and builds a client. Missing URL,
// username or password fails immediately; no request leaves the process.
func NewClient(rawURL, username, password, userAgent string, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("xtream: missing panel URL")
	}
	if username == "" {
		return nil, errors.New("xtream: missing username")
	}
	if password == "" {
		return nil, errors.New("xtream: missing password")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("xtream: parse panel URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("xtream: panel URL %q has no scheme or host", rawURL)
	}
	q := u.Query()
	q.Set("username", username)
	q.Set("password", password)
	u.RawQuery = q.Encode()
	return &Client{
		apiURL:   u,
		origin:   u.Scheme + "://" + u.Host,
		username: username,
		password: password,
		httpc:    httpclient.WithUserAgent(nil, userAgent),
		log:      log,
		now:      time.Now,
	}, nil
}

// getJSON fetches one API action and decodes the response into v. extra query
// parameters (stream_id, series_id) are appended to the credentialed URL.
func (c *Client) getJSON(ctx context.Context, action string, extra url.Values, v any) error {
	u := *c.apiURL
	q := u.Query()
	q.Set("action", action)
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
	resp, err := httpclient.DoWithRetry(ctx, c.httpc, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return fmt.Errorf("xtream %s: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("xtream %s: unexpected status %s", action, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("xtream %s: decode: %w", action, err)
	}
	return nil
}
