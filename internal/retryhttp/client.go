// Package retryhttp is the shared transport wrapper for every network call
// the workers make: outbox pull/ack, the chat provider, and the notification
// API. It retries transport failures and HTTP 429/5xx with capped exponential
// backoff plus jitter, honoring a server-supplied Retry-After hint when
// present.
package retryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/briefmarket/backend/internal/metrics"
)

// Config bounds the retry behavior. Zero fields fall back to defaults.
type Config struct {
	MaxAttempts int           // total tries, including the first (default 4)
	BaseDelay   time.Duration // first backoff step (default 250ms)
	MaxDelay    time.Duration // backoff cap (default 5s)
	JitterRatio float64       // +/- fraction of the delay (default 0.3)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.JitterRatio <= 0 {
		c.JitterRatio = 0.3
	}
	return c
}

// StatusError is returned for non-retryable HTTP responses and for the final
// retryable response once attempts are exhausted.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Client struct {
	http *http.Client
	cfg  Config
	// sleep is swapped out in tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	return &Client{
		http:  &http.Client{Timeout: 30 * time.Second},
		cfg:   cfg.withDefaults(),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetJSON performs a GET and decodes the response body into out. op labels
// errors so exhaustion reports which operation failed.
func (c *Client) GetJSON(ctx context.Context, op, url, bearer string, out any) error {
	return c.do(ctx, op, http.MethodGet, url, bearer, nil, out)
}

// PostJSON performs a POST with a JSON body and decodes the response into out
// (out may be nil).
func (c *Client) PostJSON(ctx context.Context, op, url, bearer string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, url, bearer, raw, out)
}

func (c *Client) do(ctx context.Context, op, method, url, bearer string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.HTTPRetries.WithLabelValues(op).Inc()
			delay := c.backoff(attempt-1, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", op, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", op, err)
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return fmt.Errorf("%s: read response: %w", op, readErr)
			}
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", op, err)
			}
			return nil
		}

		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
		if !retryable(resp.StatusCode) {
			return statusErr
		}
		statusErr.Body = withRetryAfter(statusErr.Body, resp.Header.Get("Retry-After"))
		lastErr = &hintedError{err: statusErr, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, c.cfg.MaxAttempts, lastErr)
}

// backoff computes base*2^attempt capped at MaxDelay with +/- JitterRatio
// jitter, unless the previous response carried a usable Retry-After hint,
// which wins outright.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	if h, ok := lastErr.(*hintedError); ok && h.retryAfter > 0 {
		return h.retryAfter
	}
	d := c.cfg.BaseDelay << uint(attempt)
	if d > c.cfg.MaxDelay || d <= 0 {
		d = c.cfg.MaxDelay
	}
	jitter := time.Duration((rand.Float64()*2 - 1) * c.cfg.JitterRatio * float64(d))
	d += jitter
	if d < 0 {
		d = 0
	}
	return d
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// hintedError carries the Retry-After hint alongside the status error.
type hintedError struct {
	err        error
	retryAfter time.Duration
}

func (h *hintedError) Error() string { return h.err.Error() }
func (h *hintedError) Unwrap() error { return h.err }

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func withRetryAfter(body, hint string) string {
	if hint == "" {
		return body
	}
	return body + " (retry-after " + hint + "s)"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
