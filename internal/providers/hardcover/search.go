package hardcover

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/providers/textmatch"
	"github.com/lepinkainen/shelfscout/internal/providers/transport"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

const bookFields = `
	id
	title
	subtitle
	slug
	description
	release_date
	pages
	contributions { author { name } }
	book_series { series { name } }
	image { url }`

const editionByISBN = `
query EditionByISBN($isbn: String!) {
  editions(where: {isbn_13: {_eq: $isbn}}, limit: 1) {
    title
    subtitle
    isbn_13
    isbn_10
    pages
    release_date
    edition_format
    publisher { name }
    language { language }
    image { url }
    book {` + bookFields + `
    }
  }
}`

const bookByID = `
query BookByID($id: Int!) {
  books(where: {id: {_eq: $id}}, limit: 1) {` + bookFields + `
    editions(limit: 1, order_by: {users_count: desc}) { isbn_13 isbn_10 publisher { name } }
  }
}`

const bookBySlug = `
query BookBySlug($slug: String!) {
  books(where: {slug: {_eq: $slug}}, limit: 1) {` + bookFields + `
    editions(limit: 1, order_by: {users_count: desc}) { isbn_13 isbn_10 publisher { name } }
  }
}`

const searchBooks = `
query SearchBooks($query: String!, $perPage: Int) {
  search(query: $query, query_type: "Book", per_page: $perPage) {
    error
    results
  }
}`

type named struct {
	Name string `json:"name"`
}

type book struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	ReleaseDate   string `json:"release_date"`
	Pages         int    `json:"pages"`
	Contributions []struct {
		Author named `json:"author"`
	} `json:"contributions"`
	BookSeries []struct {
		Series named `json:"series"`
	} `json:"book_series"`
	Image *struct {
		URL string `json:"url"`
	} `json:"image"`
	Editions []edition `json:"editions"`
}

type edition struct {
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	ISBN13        string `json:"isbn_13"`
	ISBN10        string `json:"isbn_10"`
	Pages         int    `json:"pages"`
	ReleaseDate   string `json:"release_date"`
	EditionFormat string `json:"edition_format"`
	Publisher     *named `json:"publisher"`
	Language      *struct {
		Language string `json:"language"`
	} `json:"language"`
	Image *struct {
		URL string `json:"url"`
	} `json:"image"`
	Book *book `json:"book"`
}

type searchHit struct {
	Document struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Subtitle    string   `json:"subtitle"`
		Slug        string   `json:"slug"`
		AuthorNames []string `json:"author_names"`
		ISBNs       []string `json:"isbns"`
		ReleaseYear int      `json:"release_year"`
		Pages       int      `json:"pages"`
		SeriesNames []string `json:"series_names"`
		Image       struct {
			URL string `json:"url"`
		} `json:"image"`
	} `json:"document"`
}

func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*record.Record, error) {
	if !c.Configured() {
		return nil, nil
	}
	ed, found, err := transport.Lookup(c.cache, ID, "isbn_"+isbn, func() (edition, error) {
		var resp struct {
			Editions []edition `json:"editions"`
		}
		if err := c.exec(ctx, editionByISBN, map[string]any{"isbn": isbn}, &resp); err != nil {
			return edition{}, err
		}
		if len(resp.Editions) == 0 {
			return edition{}, transport.ErrNotFound
		}
		return resp.Editions[0], nil
	})
	if err != nil || !found {
		return nil, err
	}
	return editionRecord(ed), nil
}

// SearchByExternalID accepts a numeric Hardcover book id or a book slug.
func (c *Client) SearchByExternalID(ctx context.Context, id string) (*record.Record, error) {
	if !c.Configured() {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	q, vars := bookBySlug, map[string]any{"slug": id}
	if n, err := strconv.Atoi(id); err == nil {
		q, vars = bookByID, map[string]any{"id": n}
	}

	b, found, err := transport.Lookup(c.cache, ID, "id_"+id, func() (book, error) {
		var resp struct {
			Books []book `json:"books"`
		}
		if err := c.exec(ctx, q, vars, &resp); err != nil {
			return book{}, err
		}
		if len(resp.Books) == 0 {
			return book{}, transport.ErrNotFound
		}
		return resp.Books[0], nil
	})
	if err != nil || !found {
		return nil, err
	}

	r := bookRecord(b)
	if len(b.Editions) > 0 {
		ed := b.Editions[0]
		if code, err := query.NormalizeISBN(providers.First(ed.ISBN13, ed.ISBN10)); err == nil {
			r.Set(record.ISBN, code)
		}
		if ed.Publisher != nil {
			r.Add(record.Publishers, ed.Publisher.Name)
		}
	}
	return r, nil
}

func (c *Client) SearchByText(ctx context.Context, criteria query.Text) (*record.Record, error) {
	if !c.Configured() {
		return nil, nil
	}
	q := strings.Join(strings.Fields(strings.Join([]string{criteria.Title, criteria.Author, criteria.Keywords}, " ")), " ")
	if q == "" {
		return nil, nil
	}

	hits, found, err := transport.Lookup(c.cache, ID, "text_"+strings.ToLower(q), func() ([]searchHit, error) {
		var resp struct {
			Search struct {
				Error   string          `json:"error"`
				Results json.RawMessage `json:"results"`
			} `json:"search"`
		}
		if err := c.exec(ctx, searchBooks, map[string]any{"query": q, "perPage": 10}, &resp); err != nil {
			return nil, err
		}
		if resp.Search.Error != "" {
			return nil, &searchError{msg: resp.Search.Error}
		}
		var results struct {
			Hits []searchHit `json:"hits"`
		}
		if len(resp.Search.Results) > 0 {
			if err := json.Unmarshal(resp.Search.Results, &results); err != nil {
				return nil, err
			}
		}
		if len(results.Hits) == 0 {
			return nil, transport.ErrNotFound
		}
		return results.Hits, nil
	})
	if err != nil || !found {
		return nil, err
	}

	candidates := make([]textmatch.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = textmatch.Candidate{Title: h.Document.Title, Authors: h.Document.AuthorNames}
	}
	best, ok := textmatch.Best(criteria, candidates)
	if !ok {
		return nil, nil
	}
	return hitRecord(hits[best]), nil
}

type searchError struct{ msg string }

func (e *searchError) Error() string { return ID + ": search: " + e.msg }

func bookRecord(b book) *record.Record {
	r := record.New().
		Set(record.Title, b.Title).
		Set(record.Subtitle, b.Subtitle).
		Set(record.Description, b.Description).
		Set(record.PublishDate, b.ReleaseDate).
		SetInt(record.Pages, b.Pages)
	if b.ID > 0 {
		r.Set(record.ExternalID, strconv.Itoa(b.ID))
	}
	for _, c := range b.Contributions {
		r.Add(record.Authors, c.Author.Name)
	}
	for _, s := range b.BookSeries {
		r.Add(record.Series, s.Series.Name)
	}
	if b.Image != nil {
		r.SetImage(0, record.Large, record.FileReference{URL: b.Image.URL})
	}
	return r
}

// editionRecord prefers edition-level values over the parent book's.
func editionRecord(ed edition) *record.Record {
	r := record.New()
	if ed.Book != nil {
		r = bookRecord(*ed.Book)
	}
	r.Set(record.Title, ed.Title).
		Set(record.Subtitle, ed.Subtitle).
		Set(record.PublishDate, ed.ReleaseDate).
		SetInt(record.Pages, ed.Pages).
		Set(record.Format, ed.EditionFormat)
	if code, err := query.NormalizeISBN(providers.First(ed.ISBN13, ed.ISBN10)); err == nil {
		r.Set(record.ISBN, code)
	}
	if ed.Publisher != nil {
		r.Add(record.Publishers, ed.Publisher.Name)
	}
	if ed.Language != nil {
		r.Set(record.Language, ed.Language.Language)
	}
	if ed.Image != nil {
		r.SetImage(0, record.Large, record.FileReference{URL: ed.Image.URL})
	}
	return r
}

func hitRecord(h searchHit) *record.Record {
	d := h.Document
	r := record.New().
		Set(record.Title, d.Title).
		Set(record.Subtitle, d.Subtitle).
		Set(record.ExternalID, d.ID).
		SetInt(record.Pages, d.Pages)
	if d.ReleaseYear > 0 {
		r.Set(record.PublishDate, strconv.Itoa(d.ReleaseYear))
	}
	for _, code := range d.ISBNs {
		if isbn, err := query.NormalizeISBN(code); err == nil {
			r.Set(record.ISBN, isbn)
			break
		}
	}
	r.Add(record.Authors, d.AuthorNames...)
	r.Add(record.Series, d.SeriesNames...)
	r.SetImage(0, record.Large, record.FileReference{URL: d.Image.URL})
	return r
}
