package goodreads

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
	"github.com/lepinkainen/shelfscout/internal/record"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	html, err := os.ReadFile("testdata/dune.html")
	require.NoError(t, err)
	return html
}

func TestParsePage(t *testing.T) {
	p, ok, err := parsePage(readFixture(t))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "44767458", p.ID)
	assert.Equal(t, "Dune", p.Title)
	assert.Equal(t, "9780593099322", p.ISBN)
	assert.Equal(t, []string{"Frank Herbert"}, p.Authors)
	assert.Equal(t, "Set on the desert planet Arrakis.\nA stunning blend of adventure and mysticism.", p.Description)
	assert.Equal(t, 658, p.Pages)
	assert.Equal(t, "Paperback", p.Format)
	assert.Equal(t, "English", p.Language)
	assert.Equal(t, "August 1, 1965", p.Published)
	assert.Equal(t, []string{"Dune"}, p.Series)
	assert.Equal(t, []string{"Science Fiction", "Fantasy"}, p.Genres)
}

func TestParsePageNotABook(t *testing.T) {
	_, ok, err := parsePage([]byte(`<html><body><h1>Search results for "0000"</h1></body></html>`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchByISBN(t *testing.T) {
	html := readFixture(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/book/isbn/9780593099322", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/book/show/44767458-dune", http.StatusFound)
	})
	mux.HandleFunc("/book/show/44767458-dune", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(html)
	})
	mux.HandleFunc("/book/isbn/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>No results.</body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := New(RenderHTTP,
		providers.WithBaseURL(server.URL),
		providers.WithHTTPClient(server.Client()),
		providers.WithRateLimiter(ratelimit.New("test", 1000)),
	)

	rec, err := c.SearchByISBN(context.Background(), "9780593099322")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Dune", rec.Text(record.Title))
	assert.Equal(t, "44767458", rec.Text(record.ExternalID))
	assert.Equal(t, "August 1, 1965", rec.Text(record.PublishDate))
	assert.Equal(t, []string{"Dune"}, rec.Strings(record.Series))
	img, ok := rec.Image(0, record.Large)
	require.True(t, ok)
	assert.Contains(t, img.File.URL, "44767458.jpg")

	rec, err = c.SearchByISBN(context.Background(), "9780000000002")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

type pageFunc func(ctx context.Context, url string) ([]byte, error)

func (f pageFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func TestSearchByExternalIDAcceptsSlug(t *testing.T) {
	html := readFixture(t)
	var requested []string
	c := New(RenderHTTP).WithPageFetcher(pageFunc(func(_ context.Context, url string) ([]byte, error) {
		requested = append(requested, url)
		return html, nil
	}))

	rec, err := c.SearchByExternalID(context.Background(), "44767458-dune")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{defaultBaseURL + "/book/show/44767458"}, requested)

	rec, err = c.SearchByExternalID(context.Background(), "dune")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Len(t, requested, 1)
}

func TestHeadlessFetcherReportsRenderErrors(t *testing.T) {
	origRunner := chromedpRunner
	t.Cleanup(func() { chromedpRunner = origRunner })

	var actions int
	chromedpRunner = func(ctx context.Context, a ...chromedp.Action) error {
		actions = len(a)
		return errors.New("chrome not found")
	}

	_, err := NewHeadlessFetcher(0).Fetch(context.Background(), "https://www.goodreads.com/book/show/1")
	require.ErrorContains(t, err, "chrome not found")
	assert.Equal(t, 5, actions)
}

func TestHeadlessFetcherEmptyPage(t *testing.T) {
	origRunner := chromedpRunner
	t.Cleanup(func() { chromedpRunner = origRunner })
	chromedpRunner = func(context.Context, ...chromedp.Action) error { return nil }

	_, err := NewHeadlessFetcher(0).Fetch(context.Background(), "https://www.goodreads.com/book/show/1")
	require.ErrorIs(t, err, errEmptyPage)
}

func TestCapabilities(t *testing.T) {
	c := New(RenderHeadless)
	assert.True(t, c.Capabilities().Has(provider.SearchByExternalID))
	assert.False(t, c.Capabilities().Has(provider.SearchByText))
	_, isLimited := c.pages.(*limitedFetcher)
	assert.True(t, isLimited)
}
