// Package hardcover is the provider adapter for the Hardcover GraphQL API.
package hardcover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hasura/go-graphql-client"

	"github.com/lepinkainen/shelfscout/internal/cache"
	shelferrors "github.com/lepinkainen/shelfscout/internal/errors"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
)

const (
	ID             = "hardcover"
	defaultBaseURL = "https://api.hardcover.app/v1/graphql"
)

var ErrMissingToken = errors.New("hardcover token not configured")

type Client struct {
	provider.Unsupported

	token     string
	endpoint  string
	transport http.RoundTripper
	timeout   time.Duration
	limiter   *ratelimit.Limiter
	cache     *cache.DB
	logger    *slog.Logger
}

var _ provider.Adapter = (*Client)(nil)

// New builds the adapter. token may carry the "Bearer " prefix or not.
func New(token string, opts ...providers.Option) *Client {
	cfg := providers.Resolve(ID, providers.Config{
		BaseURL: defaultBaseURL,
		// Hardcover allows 60 requests per minute.
		Limiter: ratelimit.Every("Hardcover", time.Second),
	}, opts)

	rt, timeout := http.DefaultTransport, 15*time.Second
	if hc, ok := cfg.HTTPClient.(*http.Client); ok {
		if hc.Transport != nil {
			rt = hc.Transport
		}
		if hc.Timeout > 0 {
			timeout = hc.Timeout
		}
	}

	return &Client{
		token:     strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")),
		endpoint:  cfg.BaseURL,
		transport: rt,
		timeout:   timeout,
		limiter:   cfg.Limiter,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
	}
}

func (c *Client) ID() string   { return ID }
func (c *Client) Name() string { return "Hardcover" }

func (c *Client) Configured() bool { return c.token != "" }

func (c *Client) Capabilities() provider.Capability {
	return provider.SearchByISBN | provider.SearchByText | provider.SearchByExternalID
}

func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrMissingToken
	}
	var resp struct {
		Me []struct {
			ID int `json:"id"`
		} `json:"me"`
	}
	if err := c.exec(ctx, `query Ping { me { id } }`, nil, &resp); err != nil {
		return fmt.Errorf("hardcover ping: %w", err)
	}
	return nil
}

// exec runs one GraphQL operation and decodes its data into target.
func (c *Client) exec(ctx context.Context, query string, variables map[string]any, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	auth := &authTransport{token: c.token, next: c.transport}
	gql := graphql.NewClient(c.endpoint, &http.Client{Transport: auth, Timeout: c.timeout})

	data, err := gql.ExecRaw(ctx, query, variables)
	if auth.rateErr != nil {
		c.limiter.Backoff(auth.rateErr.RetryAfter)
		return auth.rateErr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", ID, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s: decode response: %w", ID, err)
	}
	return nil
}

// authTransport adds the bearer token and remembers a 429 so exec can
// report it as a rate limit rather than a generic GraphQL failure.
type authTransport struct {
	token   string
	next    http.RoundTripper
	rateErr *shelferrors.RateLimitError
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.rateErr = shelferrors.RateLimitFromResponse(ID, resp)
	}
	return resp, nil
}
