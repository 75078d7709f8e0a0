// Package googlebooks is the provider adapter for the Google Books volumes API.
package googlebooks

import (
	"context"
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
	ID             = "googlebooks"
	defaultBaseURL = "https://www.googleapis.com/books/v1"
	maxResults     = 10
)

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		PrintType           string   `json:"printType"`
		Categories          []string `json:"categories"`
		Language            string   `json:"language"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks imageLinks `json:"imageLinks"`
	} `json:"volumeInfo"`
}

type imageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
	Small          string `json:"small"`
	Medium         string `json:"medium"`
	Large          string `json:"large"`
	ExtraLarge     string `json:"extraLarge"`
}

// forTier picks the closest link for tier, falling back to smaller ones.
func (l imageLinks) forTier(tier record.SizeTier) string {
	var link string
	switch tier {
	case record.Small:
		link = providers.First(l.Thumbnail, l.SmallThumbnail)
	case record.Medium:
		link = providers.First(l.Medium, l.Small, l.Thumbnail)
	default:
		link = providers.First(l.Large, l.ExtraLarge, l.Medium, l.Small, l.Thumbnail)
	}
	// The API hands out http links to an https-capable host.
	return strings.Replace(link, "http://", "https://", 1)
}

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
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

// New builds the adapter. The API key is optional; without one Google
// applies a lower anonymous quota.
func New(apiKey string, opts ...providers.Option) *Client {
	cfg := providers.Resolve(ID, providers.Config{
		BaseURL: defaultBaseURL,
		Limiter: ratelimit.New("Google Books", 2),
	}, opts)
	return &Client{
		apiKey:  apiKey,
		baseURL: cfg.BaseURL,
		http:    cfg.Transport(ID),
		cache:   cfg.Cache,
		covers:  cfg.Covers,
		logger:  cfg.Logger,
	}
}

func (c *Client) ID() string   { return ID }
func (c *Client) Name() string { return "Google Books" }

func (c *Client) Capabilities() provider.Capability {
	caps := provider.SearchByISBN | provider.SearchByText | provider.SearchByExternalID
	if c.covers != nil {
		caps |= provider.FetchCover
	}
	return caps
}

func (c *Client) Ping(ctx context.Context) error {
	var resp volumesResponse
	if err := c.http.GetJSON(ctx, c.endpoint("/volumes", url.Values{"q": {"isbn:0140447938"}, "maxResults": {"1"}}), &resp); err != nil {
		return fmt.Errorf("google books ping: %w", err)
	}
	return nil
}

func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*record.Record, error) {
	v, found, err := c.volumeByISBN(ctx, isbn)
	if err != nil || !found {
		return nil, err
	}
	return volumeRecord(v), nil
}

func (c *Client) SearchByText(ctx context.Context, criteria query.Text) (*record.Record, error) {
	var terms []string
	add := func(prefix, value string) {
		if value != "" {
			terms = append(terms, prefix+value)
		}
	}
	add("", criteria.Keywords)
	add("intitle:", criteria.Title)
	add("inauthor:", criteria.Author)
	add("inpublisher:", criteria.Publisher)
	q := strings.Join(terms, " ")

	resp, found, err := transport.Lookup(c.cache, ID, "text_"+strings.ToLower(q), func() (volumesResponse, error) {
		return c.search(ctx, q, maxResults)
	})
	if err != nil || !found {
		return nil, err
	}

	candidates := make([]textmatch.Candidate, len(resp.Items))
	for i, v := range resp.Items {
		candidates[i] = textmatch.Candidate{Title: v.VolumeInfo.Title, Authors: v.VolumeInfo.Authors, Publisher: v.VolumeInfo.Publisher}
	}
	best, ok := textmatch.Best(criteria, candidates)
	if !ok {
		return nil, nil
	}
	return volumeRecord(resp.Items[best]), nil
}

// SearchByExternalID takes a Google Books volume id.
func (c *Client) SearchByExternalID(ctx context.Context, id string) (*record.Record, error) {
	id = strings.TrimSpace(id)
	v, found, err := transport.Lookup(c.cache, ID, "id_"+id, func() (volume, error) {
		var v volume
		err := c.http.GetJSON(ctx, c.endpoint("/volumes/"+url.PathEscape(id), nil), &v)
		return v, err
	})
	if err != nil || !found {
		return nil, err
	}
	return volumeRecord(v), nil
}

func (c *Client) FetchCoverImage(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
	if c.covers == nil {
		return nil, provider.ErrNotSupported
	}
	v, found, err := c.volumeByISBN(ctx, isbn)
	if err != nil || !found {
		return nil, err
	}
	link := v.VolumeInfo.ImageLinks.forTier(tier)
	if link == "" {
		return nil, nil
	}
	return c.covers.Fetch(ctx, ID, isbn, link, tier)
}

func (c *Client) volumeByISBN(ctx context.Context, isbn string) (volume, bool, error) {
	return transport.Lookup(c.cache, ID, "isbn_"+isbn, func() (volume, error) {
		resp, err := c.search(ctx, "isbn:"+isbn, 1)
		if err != nil {
			return volume{}, err
		}
		return resp.Items[0], nil
	})
}

func (c *Client) search(ctx context.Context, q string, limit int) (volumesResponse, error) {
	var resp volumesResponse
	params := url.Values{"q": {q}, "maxResults": {fmt.Sprint(limit)}}
	if err := c.http.GetJSON(ctx, c.endpoint("/volumes", params), &resp); err != nil {
		return volumesResponse{}, err
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		return volumesResponse{}, transport.ErrNotFound
	}
	return resp, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if len(params) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + params.Encode()
}

func volumeRecord(v volume) *record.Record {
	info := v.VolumeInfo
	r := record.New().
		Set(record.Title, info.Title).
		Set(record.Subtitle, info.Subtitle).
		Set(record.ExternalID, v.ID).
		Set(record.PublishDate, info.PublishedDate).
		Set(record.Description, providers.StripHTML(info.Description)).
		Set(record.Language, info.Language).
		SetInt(record.Pages, info.PageCount)

	var isbn13, isbn10 string
	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			isbn13 = id.Identifier
		case "ISBN_10":
			isbn10 = id.Identifier
		}
	}
	if code, err := query.NormalizeISBN(providers.First(isbn13, isbn10)); err == nil {
		r.Set(record.ISBN, code)
	}

	r.Add(record.Authors, info.Authors...)
	r.Add(record.Publishers, info.Publisher)
	r.Add(record.Subjects, info.Categories...)
	r.SetImage(0, record.Small, record.FileReference{URL: info.ImageLinks.forTier(record.Small)})
	if info.ImageLinks.Large != "" || info.ImageLinks.ExtraLarge != "" {
		r.SetImage(0, record.Large, record.FileReference{URL: info.ImageLinks.forTier(record.Large)})
	}
	return r
}
