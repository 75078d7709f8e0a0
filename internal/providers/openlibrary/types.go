package openlibrary

import (
	"encoding/json"
	"path"
)

// text is a field OpenLibrary sends either as a bare string or as
// {"type": "/type/text", "value": "..."}.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = text(s)
		return nil
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*t = text(wrapped.Value)
	return nil
}

type named struct {
	Name string `json:"name"`
}

type keyRef struct {
	Key string `json:"key"`
}

// id turns "/books/OL7353617M" into "OL7353617M".
func (k keyRef) id() string { return path.Base(k.Key) }

// bookData is one entry of /api/books?jscmd=data.
type bookData struct {
	Key           string  `json:"key"`
	Title         string  `json:"title"`
	Subtitle      string  `json:"subtitle"`
	Authors       []named `json:"authors"`
	Publishers    []named `json:"publishers"`
	PublishDate   string  `json:"publish_date"`
	NumberOfPages int     `json:"number_of_pages"`
	Subjects      []named `json:"subjects"`
	Notes         text    `json:"notes"`
	Identifiers   struct {
		ISBN13      []string `json:"isbn_13"`
		ISBN10      []string `json:"isbn_10"`
		OpenLibrary []string `json:"openlibrary"`
	} `json:"identifiers"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
}

// edition is the raw /books/{id}.json and /isbn/{isbn}.json document.
type edition struct {
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	Subtitle       string   `json:"subtitle"`
	Publishers     []string `json:"publishers"`
	PublishDate    string   `json:"publish_date"`
	NumberOfPages  int      `json:"number_of_pages"`
	ISBN13         []string `json:"isbn_13"`
	ISBN10         []string `json:"isbn_10"`
	Authors        []keyRef `json:"authors"`
	Works          []keyRef `json:"works"`
	Covers         []int    `json:"covers"`
	Description    text     `json:"description"`
	Subjects       []string `json:"subjects"`
	Languages      []keyRef `json:"languages"`
	PhysicalFormat string   `json:"physical_format"`
	Series         []string `json:"series"`
}

// editionWithAuthors is what gets cached for an external-id lookup.
type editionWithAuthors struct {
	Edition edition  `json:"edition"`
	Authors []string `json:"authors"`
}

type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle"`
	AuthorName       []string `json:"author_name"`
	Publisher        []string `json:"publisher"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	CoverEditionKey  string   `json:"cover_edition_key"`
	EditionKey       []string `json:"edition_key"`
	PagesMedian      int      `json:"number_of_pages_median"`
	Language         []string `json:"language"`
	Subject          []string `json:"subject"`
}

type editionsResponse struct {
	Entries []edition `json:"entries"`
}
