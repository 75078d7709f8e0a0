// Package goodreads is the provider adapter that scrapes goodreads.com book
// pages. Goodreads has no public API.
package goodreads

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/lepinkainen/shelfscout/internal/cache"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
	"github.com/lepinkainen/shelfscout/internal/record"
)

const (
	ID             = "goodreads"
	defaultBaseURL = "https://www.goodreads.com"

	RenderHTTP     = "http"
	RenderHeadless = "headless"
)

var bookID = regexp.MustCompile(`^\d+`)

type Client struct {
	provider.Unsupported

	baseURL string
	pages   PageFetcher
	cache   *cache.DB
	logger  *slog.Logger
}

var _ provider.Adapter = (*Client)(nil)

// New builds the adapter. render selects how pages are fetched: RenderHTTP
// or RenderHeadless.
func New(render string, opts ...providers.Option) *Client {
	cfg := providers.Resolve(ID, providers.Config{
		BaseURL: defaultBaseURL,
		Limiter: ratelimit.Every("Goodreads", 2*time.Second),
	}, opts)

	var pages PageFetcher = NewHTTPFetcher(cfg.Transport(ID))
	if render == RenderHeadless {
		pages = &limitedFetcher{limiter: cfg.Limiter, next: NewHeadlessFetcher(0)}
	}
	return &Client{baseURL: cfg.BaseURL, pages: pages, cache: cfg.Cache, logger: cfg.Logger}
}

// WithPageFetcher replaces how pages are fetched.
func (c *Client) WithPageFetcher(f PageFetcher) *Client {
	c.pages = f
	return c
}

func (c *Client) ID() string   { return ID }
func (c *Client) Name() string { return "Goodreads" }

func (c *Client) Capabilities() provider.Capability {
	return provider.SearchByISBN | provider.SearchByExternalID
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.pages.Fetch(ctx, c.baseURL+"/")
	return err
}

func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*record.Record, error) {
	return c.lookup(ctx, "isbn_"+isbn, c.baseURL+"/book/isbn/"+isbn)
}

// SearchByExternalID takes a Goodreads book id, with or without its slug.
func (c *Client) SearchByExternalID(ctx context.Context, id string) (*record.Record, error) {
	n := bookID.FindString(id)
	if n == "" {
		return nil, nil
	}
	return c.lookup(ctx, "id_"+n, c.baseURL+"/book/show/"+n)
}

func (c *Client) lookup(ctx context.Context, key, url string) (*record.Record, error) {
	p, found, err := transport.Lookup(c.cache, ID, key, func() (page, error) {
		html, err := c.pages.Fetch(ctx, url)
		if err != nil {
			return page{}, err
		}
		p, ok, err := parsePage(html)
		if err != nil {
			return page{}, err
		}
		if !ok {
			return page{}, transport.ErrNotFound
		}
		return p, nil
	})
	if err != nil || !found {
		return nil, err
	}
	return pageRecord(p), nil
}

func pageRecord(p page) *record.Record {
	r := record.New().
		Set(record.Title, p.Title).
		Set(record.ExternalID, p.ID).
		Set(record.Description, p.Description).
		Set(record.Format, p.Format).
		Set(record.Language, p.Language).
		Set(record.PublishDate, p.Published).
		SetInt(record.Pages, p.Pages)
	if code, err := query.NormalizeISBN(p.ISBN); err == nil {
		r.Set(record.ISBN, code)
	}
	r.Add(record.Authors, p.Authors...)
	r.Add(record.Series, p.Series...)
	r.Add(record.Subjects, p.Genres...)
	r.SetImage(0, record.Large, record.FileReference{URL: p.Image})
	return r
}

// limitedFetcher applies the adapter's rate limit to a fetcher that does not
// go through transport.
type limitedFetcher struct {
	limiter *ratelimit.Limiter
	next    PageFetcher
}

func (f *limitedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.next.Fetch(ctx, url)
}
