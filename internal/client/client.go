// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package client talks to the ClickUp v2 REST API and turns stream
// definitions into lazy record sequences.
package client

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/clickup-tap/internal/httputil"
	"github.com/pdiddy/clickup-tap/internal/metrics"
	"github.com/pdiddy/clickup-tap/internal/records"
	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

const (
	// DefaultBaseURL is the ClickUp v2 API root.
	DefaultBaseURL   = "https://api.clickup.com/api/v2"
	DefaultUserAgent = "clickup-tap/0.1"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxPages  = 1000

	bodySnippetLen = 256
)

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client issues authenticated GET requests against the ClickUp API.
type Client struct {
	cfg     types.APIConfig
	http    *http.Client
	metrics *metrics.Metrics
}

// New returns a Client. Zero-valued settings in cfg take their defaults. A
// nil httpClient gets one with cfg.Timeout.
func New(cfg types.APIConfig, httpClient *http.Client, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, metrics: m}
}

// Get fetches BaseURL+path and decodes the JSON body. stream labels the
// request in metrics and logs.
func (c *Client) Get(ctx context.Context, stream, path string) (any, error) {
	reqURL := c.cfg.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		c.metrics.Request(stream, 0, time.Since(start))
		return nil, fmt.Errorf("GET %s: %w", reqURL, err)
	}
	defer resp.Body.Close()
	c.metrics.Request(stream, resp.StatusCode, time.Since(start))

	slog.DebugContext(ctx, "fetched", "stream", stream, "url", reqURL,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLen))
		return nil, &HTTPError{URL: reqURL, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	payload, err := records.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", reqURL, err)
	}
	return payload, nil
}

// Records returns the records of def under the parent context pc. The
// sequence is lazy: nothing is fetched until it is ranged over, and pages
// are fetched as the caller consumes them. Each call starts from the first
// page. The first error ends the sequence.
//
// Paginated streams request page=0,1,... until the API reports last_page,
// a page comes back empty, or MaxPages is reached.
func (c *Client) Records(ctx context.Context, def *streams.Definition, pc types.Context) iter.Seq2[types.Record, error] {
	return func(yield func(types.Record, error) bool) {
		path, err := def.Resolve(pc)
		if err != nil {
			yield(nil, err)
			return
		}

		for page := 0; ; page++ {
			reqPath := path
			if def.Paginate() {
				if reqPath, err = withPage(path, page); err != nil {
					yield(nil, err)
					return
				}
			}

			payload, err := c.Get(ctx, def.Name(), reqPath)
			if err != nil {
				yield(nil, err)
				return
			}

			recs, err := def.Rule().Extract(payload)
			if err != nil {
				yield(nil, fmt.Errorf("GET %s: %w", reqPath, err))
				return
			}
			for _, r := range recs {
				if !yield(r, nil) {
					return
				}
			}

			if !def.Paginate() || len(recs) == 0 || lastPage(payload) {
				return
			}
			if page+1 >= c.cfg.MaxPages {
				slog.WarnContext(ctx, "page limit reached", "stream", def.Name(), "path", path, "max_pages", c.cfg.MaxPages)
				return
			}
		}
	}
}

// withPage sets the page query parameter on a resolved path.
func withPage(path string, page int) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing path %q: %w", path, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func lastPage(payload any) bool {
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	last, _ := obj["last_page"].(bool)
	return last
}
