package provider_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/query"
)

func TestPreferencesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "providers.yaml")

	prefs, err := provider.LoadPreferences(path)
	require.NoError(t, err)
	assert.Empty(t, prefs.Providers)

	r := newRegistry(t)
	require.NoError(t, r.SetEnabled("goodreads", true))
	require.NoError(t, r.Move("goodreads", 1))
	require.NoError(t, provider.SavePreferences(path, r.Preferences()))

	loaded, err := provider.LoadPreferences(path)
	require.NoError(t, err)

	fresh := newRegistry(t)
	fresh.Apply(loaded)
	assert.Equal(t,
		[]string{"isbndb", "goodreads", "openlibrary", "googlebooks"},
		fresh.Resolve(provider.SearchByISBN, query.KindISBN).IDs())
}

func TestApplyPartialPreferences(t *testing.T) {
	r := newRegistry(t)
	r.Apply(provider.Preferences{Providers: []provider.ProviderPreference{
		{ID: "googlebooks", Enabled: false},
		{ID: "unknown", Enabled: true},
		{ID: "openlibrary", Enabled: true},
	}})

	var ids []string
	for _, e := range r.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"googlebooks", "openlibrary", "isbndb", "goodreads"}, ids)

	e, ok := r.Entry("googlebooks")
	require.True(t, ok)
	assert.False(t, e.Enabled)
	assert.Equal(t, 0, e.Priority)
}
