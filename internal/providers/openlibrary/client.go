// Package openlibrary is the provider adapter for openlibrary.org.
package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/shelfscout/internal/cache"
	"github.com/lepinkainen/shelfscout/internal/coverfile"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
)

const (
	ID                  = "openlibrary"
	defaultBaseURL      = "https://openlibrary.org"
	defaultCoverBaseURL = "https://covers.openlibrary.org"
	// OpenLibrary asks clients to stay around one request per second.
	defaultRatePerSecond = 1
	maxSubjects          = 15
	maxEditions          = 50
)

type Client struct {
	provider.Unsupported

	baseURL      string
	coverBaseURL string
	http         *transport.Client
	cache        *cache.DB
	covers       *coverfile.Store
	logger       *slog.Logger
}

var _ provider.Adapter = (*Client)(nil)

func New(opts ...providers.Option) *Client {
	cfg := providers.Resolve(ID, providers.Config{
		BaseURL:      defaultBaseURL,
		CoverBaseURL: defaultCoverBaseURL,
		Limiter:      ratelimit.New("OpenLibrary", defaultRatePerSecond),
	}, opts)
	return &Client{
		baseURL:      cfg.BaseURL,
		coverBaseURL: cfg.CoverBaseURL,
		http:         cfg.Transport(ID),
		cache:        cfg.Cache,
		covers:       cfg.Covers,
		logger:       cfg.Logger,
	}
}

func (c *Client) ID() string   { return ID }
func (c *Client) Name() string { return "Open Library" }

func (c *Client) Capabilities() provider.Capability {
	caps := provider.SearchByISBN | provider.SearchByText | provider.SearchByExternalID
	if c.covers != nil {
		caps |= provider.FetchCover
	}
	return caps
}

// Ping looks up a well-known edition.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.http.Get(ctx, c.baseURL+"/isbn/9780140447934.json")
	if err != nil && !errors.Is(err, transport.ErrNotFound) {
		return fmt.Errorf("open library ping: %w", err)
	}
	return nil
}
