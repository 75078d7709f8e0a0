package datastore

import (
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	_ "modernc.org/sqlite"
)

var errNotConnected = errors.New("datastore: not connected")

// SQLiteStore writes rows to a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath}
}

func (s *SQLiteStore) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open results database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("open results database: %w", err)
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) CreateTable(schema string) error {
	if s.db == nil {
		return errNotConnected
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// BatchInsert writes rows in one transaction. The database argument only
// matters for remote stores. Rows with an existing primary key replace the
// stored row.
func (s *SQLiteStore) BatchInsert(database string, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	if s.db == nil {
		return errNotConnected
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// no-op after Commit
	defer func() { _ = tx.Rollback() }()

	columns := slices.Sorted(maps.Keys(rows[0]))
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		placeholders,
	))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d: expected %d columns, got %d", i, len(columns), len(row))
		}
		values := make([]any, len(columns))
		for j, col := range columns {
			v, ok := row[col]
			if !ok {
				return fmt.Errorf("row %d: missing column %q", i, col)
			}
			values[j] = v
		}
		if _, err := stmt.Exec(values...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
