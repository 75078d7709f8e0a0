package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

var tierSuffix = map[record.SizeTier]string{
	record.Small:  "S",
	record.Medium: "M",
	record.Large:  "L",
}

// FetchCoverEditions follows the edition to its work and lists the ISBNs of
// the work's other editions.
func (c *Client) FetchCoverEditions(ctx context.Context, isbn string) ([]string, error) {
	editions, _, err := transport.Lookup(c.cache, ID, "editions_"+isbn, func() ([]string, error) {
		var ed edition
		if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/isbn/%s.json", c.baseURL, isbn), &ed); err != nil {
			return nil, err
		}
		if len(ed.Works) == 0 {
			return nil, transport.ErrNotFound
		}

		var resp editionsResponse
		endpoint := fmt.Sprintf("%s%s/editions.json?limit=%d", c.baseURL, ed.Works[0].Key, maxEditions)
		if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}

		var out []string
		seen := map[string]bool{}
		for _, e := range resp.Entries {
			code := firstISBN(slices.Concat(e.ISBN13, e.ISBN10))
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, code)
		}
		if len(out) == 0 {
			return nil, transport.ErrNotFound
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return editions, nil
}

// FetchCoverImage downloads from the covers service. default=false makes a
// missing cover a 404 instead of a blank placeholder.
func (c *Client) FetchCoverImage(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
	if c.covers == nil {
		return nil, provider.ErrNotSupported
	}
	code, err := query.NormalizeISBN(isbn)
	if err != nil {
		return nil, nil
	}
	suffix, ok := tierSuffix[tier]
	if !ok {
		return nil, errors.New("openlibrary: unknown size tier " + tier.String())
	}
	url := fmt.Sprintf("%s/b/isbn/%s-%s.jpg?default=false", c.coverBaseURL, code, suffix)
	return c.covers.Fetch(ctx, ID, code, url, tier)
}
