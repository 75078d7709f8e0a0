// Package datastore persists merged search results, either to a local
// SQLite file or to a remote Datasette instance.
package datastore

// Store is a write-only sink for result rows.
type Store interface {
	Connect() error

	// CreateTable applies a CREATE TABLE IF NOT EXISTS statement. Remote
	// stores may create tables implicitly and ignore it.
	CreateTable(schema string) error

	// BatchInsert writes rows into table. Every row must carry the same
	// columns.
	BatchInsert(database string, table string, rows []map[string]any) error

	Close() error
}
