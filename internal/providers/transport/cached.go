package transport

import (
	"errors"

	"github.com/lepinkainen/shelfscout/internal/cache"
)

// Cached wraps a provider answer so misses are cached as well as hits.
type Cached[T any] struct {
	Found bool `json:"found"`
	Value T    `json:"value"`
}

// Lookup serves key from db's table for source, calling fetch on a miss.
// fetch returning ErrNotFound is remembered for the negative TTL. The bool
// reports whether a value was found.
func Lookup[T any](db *cache.DB, source, key string, fetch func() (T, error)) (T, bool, error) {
	var zero T
	entry, _, err := cache.GetOrFetch(db, cache.TableFor(source), key, func() (Cached[T], error) {
		value, err := fetch()
		if errors.Is(err, ErrNotFound) {
			return Cached[T]{}, nil
		}
		if err != nil {
			return Cached[T]{}, err
		}
		return Cached[T]{Found: true, Value: value}, nil
	}, cache.SelectNegativeCacheTTL(func(c Cached[T]) bool { return !c.Found }))
	if err != nil {
		return zero, false, err
	}
	return entry.Value, entry.Found, nil
}
