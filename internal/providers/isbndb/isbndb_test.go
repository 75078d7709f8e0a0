package isbndb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/ratelimit"
	"github.com/lepinkainen/shelfscout/internal/record"
)

func newTestClient(t *testing.T, apiKey string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(apiKey,
		providers.WithBaseURL(server.URL),
		providers.WithHTTPClient(server.Client()),
		providers.WithRateLimiter(ratelimit.New("test", 1000)),
	)
}

func TestSearchByISBN(t *testing.T) {
	c := newTestClient(t, "key-123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/book/9780134685991", r.URL.Path)
		_, _ = w.Write([]byte(`{"book":{
			"title":"Effective Java","title_long":"Effective Java: Third Edition",
			"isbn":"0134685997","isbn13":"9780134685991","publisher":"Addison-Wesley",
			"binding":"Paperback","pages":412,"date_published":"2018-01-06",
			"synopsis":"","overview":"Best practices.","authors":["Bloch, Joshua"],
			"subjects":["Subjects","Java"],"image":"https://images.isbndb.com/covers/59/91/9780134685991.jpg"}}`))
	})

	rec, err := c.SearchByISBN(context.Background(), "9780134685991")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Effective Java", rec.Text(record.Title))
	assert.Equal(t, "Third Edition", rec.Text(record.Subtitle))
	assert.Equal(t, "Paperback", rec.Text(record.Format))
	assert.Equal(t, "Best practices.", rec.Text(record.Description))
	assert.Equal(t, []string{"Java"}, rec.Strings(record.Subjects))
	assert.Equal(t, []string{"Bloch, Joshua"}, rec.Strings(record.Authors))
}

func TestWithoutKeyFindsNothing(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	rec, err := c.SearchByISBN(context.Background(), "9780134685991")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = c.SearchByText(context.Background(), query.Text{Title: "Effective Java"})
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.ErrorIs(t, c.Ping(context.Background()), ErrMissingAPIKey)
	assert.Zero(t, calls.Load())
	assert.False(t, c.Configured())
}

func TestSearchByText(t *testing.T) {
	c := newTestClient(t, "key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/The Hobbit Tolkien", r.URL.Path)
		_, _ = w.Write([]byte(`{"total":2,"books":[
			{"title":"The Annotated Hobbit","authors":["Douglas A. Anderson"],"isbn13":"9780618134700"},
			{"title":"The Hobbit","authors":["J.R.R. Tolkien"],"isbn13":"9780547928227"}
		]}`))
	})

	rec, err := c.SearchByText(context.Background(), query.Text{Title: "The Hobbit", Author: "Tolkien"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "9780547928227", rec.Text(record.ISBN))
}

func TestNotFound(t *testing.T) {
	c := newTestClient(t, "key", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	rec, err := c.SearchByISBN(context.Background(), "9780000000002")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, c.Ping(context.Background()))
}
