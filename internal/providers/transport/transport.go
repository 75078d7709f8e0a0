// Package transport is the HTTP plumbing shared by provider adapters: rate
// limiting, retries on network errors and status mapping.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	shelferrors "github.com/lepinkainen/shelfscout/internal/errors"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
)

const (
	defaultAttempts = 3
	maxBackoff      = 10 * time.Second
	userAgent       = "shelfscout/1.0 (+https://github.com/lepinkainen/shelfscout)"
)

// ErrNotFound is returned for HTTP 404. Adapters turn it into a nil record.
var ErrNotFound = errors.New("not found")

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type Client struct {
	source   string
	http     HTTPDoer
	limiter  *ratelimit.Limiter
	attempts int
	header   http.Header
	// backoff is replaced in tests.
	backoff func(attempt int) time.Duration
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// New builds a client for source. A nil doer gets a 10 second http.Client,
// a nil limiter means no rate limiting.
func New(source string, doer HTTPDoer, limiter *ratelimit.Limiter, opts ...Option) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{
		source:   source,
		http:     doer,
		limiter:  limiter,
		attempts: defaultAttempts,
		header:   http.Header{"User-Agent": {userAgent}},
		backoff:  backoffDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Source() string { return c.source }

// GetJSON decodes the response body of a GET into target.
func (c *Client) GetJSON(ctx context.Context, endpoint string, target any) error {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.source, redact(endpoint), err)
	}
	return nil
}

// Get returns the body of a successful GET, retrying network failures.
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.attempts {
			return nil, err
		}
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		rateErr := shelferrors.RateLimitFromResponse(c.source, resp)
		c.limiter.Backoff(rateErr.RetryAfter)
		return nil, rateErr
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: unexpected status %d: %s", c.source, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return io.ReadAll(resp.Body)
}

func isRetryable(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if errors.Is(urlErr.Err, context.Canceled) || errors.Is(urlErr.Err, context.DeadlineExceeded) {
			return false
		}
		if urlErr.Timeout() {
			return true
		}
		if strings.Contains(urlErr.Error(), "connection") {
			return true
		}
	}
	return false
}

// backoffDelay doubles from one second, capped.
func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	return min(delay, maxBackoff)
}

// redact drops the query string, which can carry API keys.
func redact(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
