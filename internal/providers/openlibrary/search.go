package openlibrary

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/providers/textmatch"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*record.Record, error) {
	data, found, err := transport.Lookup(c.cache, ID, "isbn_"+isbn, func() (bookData, error) {
		var result map[string]bookData
		endpoint := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", c.baseURL, isbn)
		if err := c.http.GetJSON(ctx, endpoint, &result); err != nil {
			return bookData{}, err
		}
		book, ok := result["ISBN:"+isbn]
		if !ok || book.Title == "" {
			return bookData{}, transport.ErrNotFound
		}
		return book, nil
	})
	if err != nil || !found {
		return nil, err
	}
	return bookDataRecord(isbn, data), nil
}

func (c *Client) SearchByText(ctx context.Context, criteria query.Text) (*record.Record, error) {
	params := url.Values{}
	setIf(params, "title", criteria.Title)
	setIf(params, "author", criteria.Author)
	setIf(params, "publisher", criteria.Publisher)
	setIf(params, "q", criteria.Keywords)
	params.Set("limit", "10")

	key := "text_" + strings.ToLower(params.Encode())
	resp, found, err := transport.Lookup(c.cache, ID, key, func() (searchResponse, error) {
		var resp searchResponse
		if err := c.http.GetJSON(ctx, c.baseURL+"/search.json?"+params.Encode(), &resp); err != nil {
			return searchResponse{}, err
		}
		if len(resp.Docs) == 0 {
			return searchResponse{}, transport.ErrNotFound
		}
		return resp, nil
	})
	if err != nil || !found {
		return nil, err
	}

	candidates := make([]textmatch.Candidate, len(resp.Docs))
	for i, d := range resp.Docs {
		candidates[i] = textmatch.Candidate{Title: d.Title, Authors: d.AuthorName, Publisher: providers.First(d.Publisher...)}
	}
	best, ok := textmatch.Best(criteria, candidates)
	if !ok {
		c.logger.Debug("No search result matched criteria", "candidates", len(candidates))
		return nil, nil
	}
	return searchDocRecord(resp.Docs[best]), nil
}

// SearchByExternalID takes an edition key such as OL7353617M.
func (c *Client) SearchByExternalID(ctx context.Context, id string) (*record.Record, error) {
	id = strings.ToUpper(path.Base(strings.TrimSpace(id)))
	if !strings.HasPrefix(id, "OL") || !strings.HasSuffix(id, "M") {
		return nil, nil
	}

	data, found, err := transport.Lookup(c.cache, ID, "id_"+id, func() (editionWithAuthors, error) {
		var ed edition
		if err := c.http.GetJSON(ctx, c.baseURL+"/books/"+id+".json", &ed); err != nil {
			return editionWithAuthors{}, err
		}
		authors := make([]string, 0, len(ed.Authors))
		for _, ref := range ed.Authors {
			var author named
			if err := c.http.GetJSON(ctx, c.baseURL+ref.Key+".json", &author); err != nil {
				c.logger.Debug("Author lookup failed", "author", ref.Key, "error", err)
				continue
			}
			authors = append(authors, author.Name)
		}
		return editionWithAuthors{Edition: ed, Authors: authors}, nil
	})
	if err != nil || !found {
		return nil, err
	}
	return editionRecord(id, data), nil
}

func bookDataRecord(isbn string, b bookData) *record.Record {
	r := record.New().
		Set(record.Title, b.Title).
		Set(record.Subtitle, b.Subtitle).
		Set(record.ISBN, firstISBN(append([]string{isbn}, b.Identifiers.ISBN13...))).
		Set(record.PublishDate, b.PublishDate).
		SetInt(record.Pages, b.NumberOfPages).
		Set(record.Description, string(b.Notes))

	if len(b.Identifiers.OpenLibrary) > 0 {
		r.Set(record.ExternalID, b.Identifiers.OpenLibrary[0])
	} else {
		r.Set(record.ExternalID, keyRef{Key: b.Key}.id())
	}
	for _, a := range b.Authors {
		r.Add(record.Authors, a.Name)
	}
	for _, p := range b.Publishers {
		r.Add(record.Publishers, p.Name)
	}
	for i, s := range b.Subjects {
		if i == maxSubjects {
			break
		}
		r.Add(record.Subjects, s.Name)
	}
	r.SetImage(0, record.Small, record.FileReference{URL: b.Cover.Small})
	r.SetImage(0, record.Medium, record.FileReference{URL: b.Cover.Medium})
	r.SetImage(0, record.Large, record.FileReference{URL: b.Cover.Large})
	return r
}

func searchDocRecord(d searchDoc) *record.Record {
	r := record.New().
		Set(record.Title, d.Title).
		Set(record.Subtitle, d.Subtitle).
		Set(record.ISBN, firstISBN(d.ISBN)).
		Set(record.ExternalID, providers.First(append([]string{d.CoverEditionKey}, d.EditionKey...)...)).
		SetInt(record.Pages, d.PagesMedian)
	if d.FirstPublishYear > 0 {
		r.Set(record.PublishDate, strconv.Itoa(d.FirstPublishYear))
	}
	if len(d.Language) > 0 {
		r.Set(record.Language, d.Language[0])
	}
	r.Add(record.Authors, d.AuthorName...)
	if len(d.Publisher) > 0 {
		r.Add(record.Publishers, d.Publisher[0])
	}
	r.Add(record.Subjects, d.Subject[:min(len(d.Subject), maxSubjects)]...)
	return r
}

func editionRecord(id string, data editionWithAuthors) *record.Record {
	ed := data.Edition
	r := record.New().
		Set(record.Title, ed.Title).
		Set(record.Subtitle, ed.Subtitle).
		Set(record.ISBN, firstISBN(slices.Concat(ed.ISBN13, ed.ISBN10))).
		Set(record.ExternalID, id).
		Set(record.PublishDate, ed.PublishDate).
		SetInt(record.Pages, ed.NumberOfPages).
		Set(record.Description, string(ed.Description)).
		Set(record.Format, ed.PhysicalFormat)
	if len(ed.Languages) > 0 {
		r.Set(record.Language, ed.Languages[0].id())
	}
	r.Add(record.Authors, data.Authors...)
	r.Add(record.Publishers, ed.Publishers...)
	r.Add(record.Series, ed.Series...)
	r.Add(record.Subjects, ed.Subjects[:min(len(ed.Subjects), maxSubjects)]...)
	return r
}

// firstISBN returns the first valid code as ISBN-13.
func firstISBN(codes []string) string {
	for _, code := range codes {
		if isbn, err := query.NormalizeISBN(code); err == nil {
			return isbn
		}
	}
	return ""
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
