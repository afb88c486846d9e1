// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers for talking to rate-limited APIs.
package httputil

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// HTTP 429 responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// MaxRetryDelay caps any single wait, including server-advertised ones.
var MaxRetryDelay = 2 * time.Minute

// now is replaced in tests that exercise X-RateLimit-Reset.
var now = time.Now

const defaultMaxRetries = 5

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests). The wait before each retry is taken from the Retry-After
// header (seconds), then from ClickUp's X-RateLimit-Reset header (unix
// seconds), and otherwise doubles from RetryBaseDelay on every attempt.
//
// When maxRetries is 0 the default (5) is used. On each 429 the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last 429 response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt >= maxRetries {
			return resp, nil
		}

		wait := retryDelay(resp.Header, attempt)

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		slog.DebugContext(ctx, "rate limited",
			"url", req.URL.Redacted(), "wait", wait, "attempt", attempt+1, "max_retries", maxRetries)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// retryDelay picks the wait before the next attempt.
func retryDelay(h http.Header, attempt int) time.Duration {
	if s := h.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
			return capDelay(time.Duration(secs) * time.Second)
		}
	}
	if s := h.Get("X-RateLimit-Reset"); s != "" {
		if reset, err := strconv.ParseInt(s, 10, 64); err == nil {
			if d := time.Unix(reset, 0).Sub(now()); d > 0 {
				return capDelay(d)
			}
		}
	}
	return capDelay(time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay)
}

func capDelay(d time.Duration) time.Duration {
	if d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}
