package datastore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscout/internal/record"
)

const (
	// DefaultDatabase names the Datasette database results are written to.
	DefaultDatabase = "shelfscout"
	// ResultsTable holds one row per finished search session.
	ResultsTable = "search_results"
)

const resultsSchema = `CREATE TABLE IF NOT EXISTS search_results (
	session_id   TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	isbn         TEXT,
	title        TEXT,
	authors      TEXT,
	publishers   TEXT,
	publish_date TEXT,
	pages        TEXT,
	sources      TEXT,
	failures     TEXT,
	record       TEXT,
	elapsed_ms   INTEGER,
	saved_at     TEXT NOT NULL
)`

// Result is a finished search as it is stored.
type Result struct {
	SessionID string
	Query     string
	Outcome   string
	Record    *record.Record
	Failures  []string
	Elapsed   time.Duration
	SavedAt   time.Time
}

// Row flattens r into the search_results columns. List fields are stored
// as JSON arrays, and the full record with provenance as a JSON document.
func (r Result) Row() (map[string]any, error) {
	if r.SessionID == "" {
		return nil, fmt.Errorf("result for %q has no session id", r.Query)
	}
	rec := r.Record
	if rec == nil {
		rec = record.New()
	}

	full, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.SessionID, err)
	}
	authors, err := jsonList(rec.Strings(record.Authors))
	if err != nil {
		return nil, err
	}
	publishers, err := jsonList(rec.Strings(record.Publishers))
	if err != nil {
		return nil, err
	}
	sources, err := jsonList(rec.Sources())
	if err != nil {
		return nil, err
	}

	savedAt := r.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	return map[string]any{
		"session_id":   r.SessionID,
		"query":        r.Query,
		"outcome":      r.Outcome,
		"isbn":         rec.Text(record.ISBN),
		"title":        rec.Text(record.Title),
		"authors":      authors,
		"publishers":   publishers,
		"publish_date": rec.Text(record.PublishDate),
		"pages":        rec.Text(record.Pages),
		"sources":      sources,
		"failures":     strings.Join(r.Failures, "\n"),
		"record":       string(full),
		"elapsed_ms":   r.Elapsed.Milliseconds(),
		"saved_at":     savedAt.UTC().Format(time.RFC3339),
	}, nil
}

// SaveResults makes sure the results table exists and writes every result
// in one batch.
func SaveResults(store Store, database string, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	if err := store.CreateTable(resultsSchema); err != nil {
		return err
	}
	rows := make([]map[string]any, 0, len(results))
	for _, r := range results {
		row, err := r.Row()
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := store.BatchInsert(database, ResultsTable, rows); err != nil {
		return fmt.Errorf("save %d results: %w", len(rows), err)
	}
	return nil
}

func jsonList(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}
