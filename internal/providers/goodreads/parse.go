package goodreads

import (
	"bytes"
	"encoding/json"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	seriesNumber = regexp.MustCompile(`\s*#[\d.\-]+\s*$`)
	publishedPre = regexp.MustCompile(`^(First published|Published)\s+`)
)

// page is what we keep from a book page; it is also the cached form.
type page struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	ISBN        string   `json:"isbn"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
	Pages       int      `json:"pages"`
	Format      string   `json:"format"`
	Language    string   `json:"language"`
	Published   string   `json:"published"`
	Series      []string `json:"series"`
	Genres      []string `json:"genres"`
	Image       string   `json:"image"`
}

// ldBook is the schema.org Book object embedded as JSON-LD.
type ldBook struct {
	Type          string `json:"@type"`
	Name          string `json:"name"`
	Image         string `json:"image"`
	BookFormat    string `json:"bookFormat"`
	NumberOfPages int    `json:"numberOfPages"`
	InLanguage    string `json:"inLanguage"`
	ISBN          string `json:"isbn"`
	Author        []struct {
		Name string `json:"name"`
	} `json:"author"`
}

// parsePage extracts a book page. ok is false when html is not a book page,
// e.g. the search page Goodreads shows for an unknown ISBN.
func parsePage(html []byte) (page, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return page{}, false, err
	}

	var ld ldBook
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var candidate ldBook
		if json.Unmarshal([]byte(s.Text()), &candidate) == nil && candidate.Type == "Book" {
			ld = candidate
			return false
		}
		return true
	})

	title := strings.TrimSpace(doc.Find(`h1[data-testid="bookTitle"]`).First().Text())
	if ld.Type == "" && title == "" {
		return page{}, false, nil
	}

	p := page{
		Title:    firstNonBlank(title, ld.Name),
		ISBN:     ld.ISBN,
		Pages:    ld.NumberOfPages,
		Format:   ld.BookFormat,
		Language: ld.InLanguage,
		Image:    ld.Image,
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		p.ID = bookID.FindString(path.Base(href))
	}
	for _, a := range ld.Author {
		p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
	}

	desc := doc.Find(`[data-testid="description"] .Formatted`).First()
	desc.Find("br").ReplaceWithHtml("\n")
	p.Description = strings.TrimSpace(desc.Text())

	doc.Find(`h3.Text__italic a, [data-testid="bookSeries"] a`).Each(func(_ int, s *goquery.Selection) {
		if name := seriesNumber.ReplaceAllString(strings.TrimSpace(s.Text()), ""); name != "" {
			p.Series = append(p.Series, strings.Trim(name, "()"))
		}
	})
	doc.Find(`[data-testid="genresList"] .Button__labelItem`).Each(func(_ int, s *goquery.Selection) {
		if g := strings.TrimSpace(s.Text()); g != "" && !strings.HasPrefix(g, "...") {
			p.Genres = append(p.Genres, g)
		}
	})

	if info := strings.TrimSpace(doc.Find(`p[data-testid="publicationInfo"]`).First().Text()); info != "" {
		p.Published = publishedPre.ReplaceAllString(info, "")
	}
	if p.Pages == 0 {
		pages := strings.Fields(doc.Find(`p[data-testid="pagesFormat"]`).First().Text())
		if len(pages) > 0 {
			p.Pages, _ = strconv.Atoi(pages[0])
		}
	}
	return p, true, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
