// Package query defines the immutable search requests accepted by the
// search coordinator and their validation rules.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned by Normalize for malformed input.
var ErrInvalidQuery = errors.New("invalid query")

// Kind identifies which of the three query shapes a Query holds.
type Kind int

const (
	KindISBN Kind = iota + 1
	KindText
	KindExternalID
)

func (k Kind) String() string {
	switch k {
	case KindISBN:
		return "isbn"
	case KindText:
		return "text"
	case KindExternalID:
		return "external_id"
	default:
		return "unknown"
	}
}

// Text holds free-text criteria. At least one field must be non-blank.
type Text struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
}

// IsBlank reports whether every criterion is empty or whitespace.
func (t Text) IsBlank() bool {
	return strings.TrimSpace(t.Title) == "" &&
		strings.TrimSpace(t.Author) == "" &&
		strings.TrimSpace(t.Publisher) == "" &&
		strings.TrimSpace(t.Keywords) == ""
}

func (t Text) trimmed() Text {
	return Text{
		Title:     strings.TrimSpace(t.Title),
		Author:    strings.TrimSpace(t.Author),
		Publisher: strings.TrimSpace(t.Publisher),
		Keywords:  strings.TrimSpace(t.Keywords),
	}
}

// Query is a value type; all accessors return copies.
type Query struct {
	kind        Kind
	isbn        string
	text        Text
	providerKey string
	externalID  string
}

func ByISBN(code string) Query {
	return Query{kind: KindISBN, isbn: code}
}

func ByText(criteria Text) Query {
	return Query{kind: KindText, text: criteria}
}

// ByExternalID targets a single provider using that provider's own identifier.
func ByExternalID(providerKey, id string) Query {
	return Query{kind: KindExternalID, providerKey: providerKey, externalID: id}
}

func (q Query) Kind() Kind          { return q.kind }
func (q Query) ISBN() string        { return q.isbn }
func (q Query) Text() Text          { return q.text }
func (q Query) ProviderKey() string { return q.providerKey }
func (q Query) ExternalID() string  { return q.externalID }

// Normalize validates the query and returns its canonical form. ISBNs come
// back as ISBN-13 without separators.
func (q Query) Normalize() (Query, error) {
	switch q.kind {
	case KindISBN:
		code, err := NormalizeISBN(q.isbn)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %q: %w", ErrInvalidQuery, q.isbn, err)
		}
		return Query{kind: KindISBN, isbn: code}, nil
	case KindText:
		if q.text.IsBlank() {
			return Query{}, fmt.Errorf("%w: text query needs at least one criterion", ErrInvalidQuery)
		}
		return Query{kind: KindText, text: q.text.trimmed()}, nil
	case KindExternalID:
		key := strings.ToLower(strings.TrimSpace(q.providerKey))
		id := strings.TrimSpace(q.externalID)
		if key == "" || id == "" {
			return Query{}, fmt.Errorf("%w: external id query needs provider and id", ErrInvalidQuery)
		}
		return Query{kind: KindExternalID, providerKey: key, externalID: id}, nil
	default:
		return Query{}, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
}

func (q Query) String() string {
	switch q.kind {
	case KindISBN:
		return "isbn:" + q.isbn
	case KindText:
		var parts []string
		if q.text.Title != "" {
			parts = append(parts, "title="+q.text.Title)
		}
		if q.text.Author != "" {
			parts = append(parts, "author="+q.text.Author)
		}
		if q.text.Publisher != "" {
			parts = append(parts, "publisher="+q.text.Publisher)
		}
		if q.text.Keywords != "" {
			parts = append(parts, "keywords="+q.text.Keywords)
		}
		return "text:" + strings.Join(parts, ",")
	case KindExternalID:
		return q.providerKey + ":" + q.externalID
	default:
		return "<empty>"
	}
}
