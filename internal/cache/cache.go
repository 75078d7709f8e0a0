// Package cache stores provider responses in SQLite so repeated lookups of
// the same ISBN or identifier do not hit remote APIs again.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultCacheTTL is the default time-to-live for cached entries (30 days)
	DefaultCacheTTL = 720 * time.Hour
	// NegativeCacheTTL is the TTL for "not found" responses (7 days)
	NegativeCacheTTL = 168 * time.Hour
)

// FetchFunc fetches a value from the remote source on a cache miss.
type FetchFunc[T any] func() (T, error)

// DB is a SQLite-backed response cache. A nil *DB is valid and caches
// nothing.
type DB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
	ttl  time.Duration
}

// Open opens (creating if needed) the cache at path with every provider
// table in place. ttl caps the age of any entry returned; zero means
// DefaultCacheTTL.
func Open(path string, ttl time.Duration) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &DB{db: db, path: path, ttl: ttl}

	tables := make([]string, 0, len(ValidCacheTableNames))
	for table := range ValidCacheTableNames {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		if err := c.createTable(table); err != nil {
			return nil, errors.Join(err, db.Close())
		}
	}
	return c, nil
}

func (c *DB) createTable(table string) error {
	if err := validateTableName(table); err != nil {
		return err
	}
	if _, err := c.db.Exec(schemaFor(table)); err != nil {
		return fmt.Errorf("failed to create cache table %s: %w", table, err)
	}
	return nil
}

func (c *DB) Path() string { return c.path }

func (c *DB) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

func validateTableName(tableName string) error {
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache table name: %s", tableName)
	}
	return nil
}

// GetOrFetch returns the cached value for key or calls fetch and stores
// its result. ttlFor picks the lifetime of a freshly fetched value, which
// is how "not found" answers get the shorter NegativeCacheTTL. A nil c
// always fetches.
func GetOrFetch[T any](c *DB, tableName, key string, fetch FetchFunc[T], ttlFor func(T) time.Duration) (T, bool, error) {
	var zero T
	if c == nil {
		data, err := fetch()
		return data, false, err
	}

	cached, ok, err := c.Get(tableName, key)
	if err != nil {
		slog.Warn("Cache lookup failed, fetching directly", "table", tableName, "key", key, "error", err)
	}
	if ok {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Cache hit", "table", tableName, "key", key)
			return result, true, nil
		}
		slog.Warn("Failed to unmarshal cached data, will refetch", "table", tableName, "key", key)
	}

	slog.Debug("Cache miss, fetching data", "table", tableName, "key", key)
	data, err := fetch()
	if err != nil {
		return zero, false, err
	}

	ttl := c.ttl
	if ttlFor != nil {
		ttl = ttlFor(data)
	}
	if ttl <= 0 {
		return data, false, nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal data for caching", "table", tableName, "key", key, "error", err)
		return data, false, nil
	}
	if err := c.Set(tableName, key, string(encoded), ttl); err != nil {
		// Caching failure shouldn't fail the lookup.
		slog.Warn("Failed to cache data", "table", tableName, "key", key, "error", err)
	}
	return data, false, nil
}

// SelectNegativeCacheTTL returns a TTL selector that gives "not found"
// results NegativeCacheTTL and everything else DefaultCacheTTL.
func SelectNegativeCacheTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeCacheTTL
		}
		return DefaultCacheTTL
	}
}

// Get returns a live entry. An entry is live while younger than both its
// own TTL and the cache-wide cap.
func (c *DB) Get(tableName, key string) (string, bool, error) {
	if err := validateTableName(tableName); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`SELECT data, cached_at, ttl_seconds FROM %s WHERE cache_key = ?`, tableName)

	var (
		data       string
		cachedAt   time.Time
		ttlSeconds int64
	)
	err := c.db.QueryRow(query, key).Scan(&data, &cachedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	ttl := c.ttl
	if entryTTL := time.Duration(ttlSeconds) * time.Second; entryTTL > 0 && entryTTL < ttl {
		ttl = entryTTL
	}
	if age := time.Now().UTC().Sub(cachedAt); age > ttl {
		slog.Debug("Cache expired", "table", tableName, "key", key, "age", age)
		return "", false, nil
	}
	return data, true, nil
}

// Set stores data under key with the given lifetime.
func (c *DB) Set(tableName, key, data string, ttl time.Duration) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (cache_key, data, cached_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
	`, tableName)

	if _, err := c.db.Exec(query, key, data, time.Now().UTC(), int64(ttl/time.Second)); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// ClearExpired deletes entries past their TTL and returns how many went.
func (c *DB) ClearExpired(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(fmt.Sprintf(`SELECT cache_key, cached_at, ttl_seconds FROM %s`, tableName))
	if err != nil {
		return 0, fmt.Errorf("failed to scan cache: %w", err)
	}
	var expired []string
	now := time.Now().UTC()
	for rows.Next() {
		var (
			key        string
			cachedAt   time.Time
			ttlSeconds int64
		)
		if err := rows.Scan(&key, &cachedAt, &ttlSeconds); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan cache row: %w", err)
		}
		ttl := c.ttl
		if entryTTL := time.Duration(ttlSeconds) * time.Second; entryTTL > 0 && entryTTL < ttl {
			ttl = entryTTL
		}
		if now.Sub(cachedAt) > ttl {
			expired = append(expired, key)
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return 0, fmt.Errorf("failed to scan cache: %w", err)
	}

	for _, key := range expired {
		if _, err := c.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE cache_key = ?`, tableName), key); err != nil {
			return 0, fmt.Errorf("failed to clear expired cache: %w", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("Cleared expired cache entries", "table", tableName, "count", len(expired))
	}
	return int64(len(expired)), nil
}

// InvalidateSource deletes every entry of one provider's table.
func (c *DB) InvalidateSource(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(fmt.Sprintf("DELETE FROM %s", tableName))
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache table cleared", "table", tableName, "rows_deleted", rowsAffected)
	return rowsAffected, nil
}

// CacheExists reports whether any entry, live or not, exists for key.
func (c *DB) CacheExists(tableName, key string) bool {
	if err := validateTableName(tableName); err != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var exists int
	err := c.db.QueryRow(fmt.Sprintf(`SELECT 1 FROM %s WHERE cache_key = ? LIMIT 1`, tableName), key).Scan(&exists)
	return err == nil
}
