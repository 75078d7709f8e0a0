package cache

import "fmt"

// Sources are the provider IDs that own a cache table.
var Sources = []string{"openlibrary", "googlebooks", "isbndb", "hardcover", "goodreads"}

// ValidCacheTableNames whitelists table names interpolated into SQL.
var ValidCacheTableNames = func() map[string]bool {
	m := make(map[string]bool, len(Sources))
	for _, s := range Sources {
		m[TableFor(s)] = true
	}
	return m
}()

// TableFor maps a provider ID to its cache table.
func TableFor(source string) string {
	return source + "_cache"
}

// schemaFor returns the DDL for a cache table. Every table shares one
// layout: key, JSON payload, write time and the TTL chosen at write time.
func schemaFor(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_cached_at ON %[1]s(cached_at);
`, table)
}
