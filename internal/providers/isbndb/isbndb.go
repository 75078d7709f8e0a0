// Package isbndb is the provider adapter for the ISBNdb v2 API. It needs an
// API key; without one every lookup finds nothing.
package isbndb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lepinkainen/shelfscout/internal/cache"
	"github.com/lepinkainen/shelfscout/internal/coverfile"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/providers/textmatch"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
	"github.com/lepinkainen/shelfscout/internal/record"
)

const (
	ID             = "isbndb"
	defaultBaseURL = "https://api2.isbndb.com"
	pageSize       = 20
)

var ErrMissingAPIKey = errors.New("isbndb API key not configured")

type book struct {
	Title         string   `json:"title"`
	TitleLong     string   `json:"title_long"`
	ISBN          string   `json:"isbn"`
	ISBN13        string   `json:"isbn13"`
	Publisher     string   `json:"publisher"`
	Language      string   `json:"language"`
	DatePublished string   `json:"date_published"`
	Binding       string   `json:"binding"`
	Edition       string   `json:"edition"`
	Pages         int      `json:"pages"`
	Overview      string   `json:"overview"`
	Synopsis      string   `json:"synopsis"`
	Image         string   `json:"image"`
	ImageOriginal string   `json:"image_original"`
	Authors       []string `json:"authors"`
	Subjects      []string `json:"subjects"`
}

type Client struct {
	provider.Unsupported

	apiKey  string
	baseURL string
	http    *transport.Client
	cache   *cache.DB
	covers  *coverfile.Store
	logger  *slog.Logger
}

var _ provider.Adapter = (*Client)(nil)

func New(apiKey string, opts ...providers.Option) *Client {
	cfg := providers.Resolve(ID, providers.Config{
		BaseURL: defaultBaseURL,
		// Free tier: 1 request per second
		Limiter: ratelimit.New("ISBNdb", 1),
	}, opts)
	return &Client{
		apiKey:  apiKey,
		baseURL: cfg.BaseURL,
		http:    cfg.Transport(ID, transport.WithHeader("Authorization", apiKey)),
		cache:   cfg.Cache,
		covers:  cfg.Covers,
		logger:  cfg.Logger,
	}
}

func (c *Client) ID() string   { return ID }
func (c *Client) Name() string { return "ISBNdb" }

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

func (c *Client) Capabilities() provider.Capability {
	caps := provider.SearchByISBN | provider.SearchByText
	if c.covers != nil {
		caps |= provider.FetchCover
	}
	return caps
}

func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrMissingAPIKey
	}
	_, err := c.http.Get(ctx, c.baseURL+"/book/9780140447934")
	if err != nil && !errors.Is(err, transport.ErrNotFound) {
		return fmt.Errorf("isbndb ping: %w", err)
	}
	return nil
}

func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*record.Record, error) {
	b, found, err := c.bookByISBN(ctx, isbn)
	if err != nil || !found {
		return nil, err
	}
	return bookRecord(b), nil
}

func (c *Client) SearchByText(ctx context.Context, criteria query.Text) (*record.Record, error) {
	if !c.Configured() {
		return nil, nil
	}
	terms := strings.Join(strings.Fields(strings.Join([]string{criteria.Title, criteria.Author, criteria.Keywords}, " ")), " ")
	if terms == "" {
		terms = criteria.Publisher
	}

	books, found, err := transport.Lookup(c.cache, ID, "text_"+strings.ToLower(terms), func() ([]book, error) {
		var resp struct {
			Total int    `json:"total"`
			Books []book `json:"books"`
		}
		endpoint := fmt.Sprintf("%s/books/%s?page=1&pageSize=%d", c.baseURL, url.PathEscape(terms), pageSize)
		if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}
		if len(resp.Books) == 0 {
			return nil, transport.ErrNotFound
		}
		return resp.Books, nil
	})
	if err != nil || !found {
		return nil, err
	}

	candidates := make([]textmatch.Candidate, len(books))
	for i, b := range books {
		candidates[i] = textmatch.Candidate{Title: b.Title, Authors: b.Authors, Publisher: b.Publisher}
	}
	best, ok := textmatch.Best(criteria, candidates)
	if !ok {
		return nil, nil
	}
	return bookRecord(books[best]), nil
}

// FetchCoverImage downloads the one cover ISBNdb has; the store scales it to
// the tier.
func (c *Client) FetchCoverImage(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
	if c.covers == nil {
		return nil, provider.ErrNotSupported
	}
	b, found, err := c.bookByISBN(ctx, isbn)
	if err != nil || !found {
		return nil, err
	}
	return c.covers.Fetch(ctx, ID, isbn, providers.First(b.ImageOriginal, b.Image), tier)
}

func (c *Client) bookByISBN(ctx context.Context, isbn string) (book, bool, error) {
	if !c.Configured() {
		return book{}, false, nil
	}
	return transport.Lookup(c.cache, ID, "isbn_"+isbn, func() (book, error) {
		var resp struct {
			Book book `json:"book"`
		}
		if err := c.http.GetJSON(ctx, c.baseURL+"/book/"+isbn, &resp); err != nil {
			return book{}, err
		}
		if resp.Book.Title == "" && resp.Book.ISBN == "" && resp.Book.ISBN13 == "" {
			return book{}, transport.ErrNotFound
		}
		return resp.Book, nil
	})
}

func bookRecord(b book) *record.Record {
	r := record.New().
		Set(record.Title, b.Title).
		Set(record.PublishDate, b.DatePublished).
		Set(record.Language, b.Language).
		Set(record.Format, b.Binding).
		SetInt(record.Pages, b.Pages).
		Set(record.Description, providers.StripHTML(providers.First(b.Synopsis, b.Overview)))

	if code, err := query.NormalizeISBN(providers.First(b.ISBN13, b.ISBN)); err == nil {
		r.Set(record.ISBN, code)
	}
	// title_long carries the subtitle after a colon.
	if rest, ok := strings.CutPrefix(b.TitleLong, b.Title+":"); ok {
		r.Set(record.Subtitle, rest)
	}

	r.Add(record.Authors, b.Authors...)
	r.Add(record.Publishers, b.Publisher)
	for _, s := range b.Subjects {
		if s != "Subjects" {
			r.Add(record.Subjects, s)
		}
	}
	r.SetImage(0, record.Large, record.FileReference{URL: providers.First(b.ImageOriginal, b.Image)})
	return r
}
