// Package providers holds what the concrete provider adapters under it have
// in common: construction options and helpers for building records.
package providers

import (
	"log/slog"
	"strings"

	"github.com/lepinkainen/shelfscout/internal/cache"
	"github.com/lepinkainen/shelfscout/internal/coverfile"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
)

// Config is the resolved set of options an adapter is built with.
type Config struct {
	BaseURL      string
	CoverBaseURL string
	HTTPClient   transport.HTTPDoer
	Cache        *cache.DB
	Limiter      *ratelimit.Limiter
	Covers       *coverfile.Store
	Logger       *slog.Logger
}

type Option func(*Config)

// WithBaseURL points the adapter at a different API root, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(c *Config) {
		if base != "" {
			c.BaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

func WithCoverBaseURL(base string) Option {
	return func(c *Config) {
		if base != "" {
			c.CoverBaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

func WithHTTPClient(doer transport.HTTPDoer) Option {
	return func(c *Config) {
		if doer != nil {
			c.HTTPClient = doer
		}
	}
}

// WithCache enables response caching. A nil DB disables it.
func WithCache(db *cache.DB) Option {
	return func(c *Config) { c.Cache = db }
}

func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Config) {
		if limiter != nil {
			c.Limiter = limiter
		}
	}
}

// WithCoverStore sets where downloaded cover images go. Adapters without a
// store cannot fetch cover images.
func WithCoverStore(store *coverfile.Store) Option {
	return func(c *Config) { c.Covers = store }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// Resolve applies opts over defaults and tags the logger with source.
func Resolve(source string, defaults Config, opts []Option) Config {
	cfg := defaults
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Logger = cfg.Logger.With("provider", source)
	return cfg
}

// Transport builds the HTTP client for cfg.
func (c Config) Transport(source string, opts ...transport.Option) *transport.Client {
	return transport.New(source, c.HTTPClient, c.Limiter, opts...)
}
