package cmd

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscout/internal/datastore"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
	"github.com/lepinkainen/shelfscout/internal/search"
)

// SearchCmd groups the search subcommands.
type SearchCmd struct {
	ISBN SearchISBNCmd `cmd:"" name:"isbn" help:"Search by one or more ISBNs"`
	Text SearchTextCmd `cmd:"" help:"Search by title, author and publisher"`
	ID   SearchIDCmd   `cmd:"" name:"id" help:"Look up a provider's own book id"`
}

// OutputFlags are shared by every search subcommand.
type OutputFlags struct {
	JSON      bool `help:"Print results as JSON lines"`
	SaveDB    bool `name:"save-db" help:"Save results to the results SQLite database"`
	Datasette bool `help:"Send results to the configured Datasette instance"`
}

type SearchISBNCmd struct {
	ISBNs  []string    `arg:"" name:"isbn" help:"ISBN-10 or ISBN-13 codes"`
	Output OutputFlags `embed:""`
}

type SearchTextCmd struct {
	Title     string      `short:"t" help:"Title to search for"`
	Author    string      `short:"a" help:"Author to search for"`
	Publisher string      `short:"p" help:"Publisher to search for"`
	Keywords  []string    `arg:"" optional:"" help:"Free-text keywords"`
	Output    OutputFlags `embed:""`
}

type SearchIDCmd struct {
	Provider string      `arg:"" help:"Provider the id belongs to"`
	ID       string      `arg:"" help:"Provider-specific book id"`
	Output   OutputFlags `embed:""`
}

func (c *SearchISBNCmd) Run(ctx context.Context, a *app) error {
	queries := make([]query.Query, len(c.ISBNs))
	for i, code := range c.ISBNs {
		queries[i] = query.ByISBN(code)
	}
	return runSearches(ctx, a, queries, c.Output)
}

func (c *SearchTextCmd) Run(ctx context.Context, a *app) error {
	q := query.ByText(query.Text{
		Title:     c.Title,
		Author:    c.Author,
		Publisher: c.Publisher,
		Keywords:  strings.Join(c.Keywords, " "),
	})
	return runSearches(ctx, a, []query.Query{q}, c.Output)
}

func (c *SearchIDCmd) Run(ctx context.Context, a *app) error {
	return runSearches(ctx, a, []query.Query{query.ByExternalID(c.Provider, c.ID)}, c.Output)
}

// runSearches runs queries one after another. A Failed or invalid query does
// not stop the ones after it; their errors are returned together.
func runSearches(ctx context.Context, a *app, queries []query.Query, flags OutputFlags) error {
	coord, err := a.Coordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	var (
		results []datastore.Result
		errs    []error
	)
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		term, err := streamSearch(ctx, coord, q)
		if errors.Is(err, search.ErrInvalidQuery) {
			slog.Error("Skipping invalid query", "query", q.String(), "error", err)
			errs = append(errs, err)
			continue
		}
		if term.SessionID == "" {
			return err
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q, err))
		}

		if flags.JSON {
			err = writeJSON(a.out, q, term)
		} else {
			err = writeText(a.out, q, term)
		}
		if err != nil {
			return err
		}
		results = append(results, resultFor(q, term))
	}

	if err := saveResults(a, flags, results); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// streamSearch logs progress as providers answer and returns the terminal.
func streamSearch(ctx context.Context, coord *search.Coordinator, q query.Query) (search.Terminal, error) {
	h, err := coord.Start(ctx, q)
	if err != nil {
		return search.Terminal{}, err
	}
	logger := slog.With("session", h.ID(), "query", h.Query().String())
	logger.Info("Searching", "providers", strings.Join(h.Providers(), ","))

	for ev := range h.Events() {
		switch e := ev.(type) {
		case search.Progress:
			attrs := []any{"provider", e.ProviderID, "outcome", e.Outcome.String(), "elapsed", e.SessionElapsed.Round(time.Millisecond)}
			if e.Err != nil {
				logger.Warn("Provider answered", append(attrs, "error", e.Err)...)
			} else {
				logger.Info("Provider answered", attrs...)
			}
		case search.Partial:
			logger.Debug("Merged partial result", "provider", e.Result.AdapterID, "fields", len(e.Merged.Keys()))
		}
	}

	term, ok := h.Wait()
	if !ok {
		return search.Terminal{}, errors.New("search ended without a result")
	}
	logger.Info("Search finished", "outcome", term.Kind.String(), "elapsed", term.Elapsed.Round(time.Millisecond))
	if term.Kind == search.TerminalCancelled && ctx.Err() != nil {
		return term, ctx.Err()
	}
	return term, term.Err()
}

func resultFor(q query.Query, term search.Terminal) datastore.Result {
	failures := make([]string, len(term.Failures))
	for i, f := range term.Failures {
		failures[i] = f.Error()
	}
	return datastore.Result{
		SessionID: term.SessionID,
		Query:     q.String(),
		Outcome:   term.Kind.String(),
		Record:    term.Merged,
		Failures:  failures,
		Elapsed:   term.Elapsed,
		SavedAt:   time.Now(),
	}
}

func saveResults(a *app, flags OutputFlags, results []datastore.Result) error {
	if len(results) == 0 || (!flags.SaveDB && !flags.Datasette) {
		return nil
	}

	var store datastore.Store
	switch {
	case flags.Datasette:
		if a.settings.DatasetteURL == "" {
			return errors.New("datasette.url is not configured")
		}
		store = datastore.NewDatasetteClient(a.settings.DatasetteURL, a.settings.DatasetteToken)
	default:
		store = datastore.NewSQLiteStore(a.settings.ResultsDBFile)
	}

	if err := store.Connect(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := datastore.SaveResults(store, datastore.DefaultDatabase, results); err != nil {
		return err
	}
	slog.Info("Saved search results", "count", len(results), "datasette", flags.Datasette)
	return nil
}

type jsonResult struct {
	Session  string         `json:"session"`
	Query    string         `json:"query"`
	Outcome  string         `json:"outcome"`
	Record   *record.Record `json:"record,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
	Failures []string       `json:"failures,omitempty"`
	Elapsed  string         `json:"elapsed"`
}

func writeJSON(out io.Writer, q query.Query, term search.Terminal) error {
	res := jsonResult{
		Session: term.SessionID,
		Query:   q.String(),
		Outcome: term.Kind.String(),
		Elapsed: term.Elapsed.Round(time.Millisecond).String(),
	}
	if !term.Merged.IsEmpty() {
		res.Record = term.Merged
		res.Fields = term.Merged.Fields()
	}
	for _, f := range term.Failures {
		res.Failures = append(res.Failures, f.Error())
	}
	return json.NewEncoder(out).Encode(res)
}

var textFields = []struct {
	label string
	key   record.Key
}{
	{"Title", record.Title},
	{"Subtitle", record.Subtitle},
	{"Authors", record.Authors},
	{"Series", record.Series},
	{"ISBN", record.ISBN},
	{"Publishers", record.Publishers},
	{"Published", record.PublishDate},
	{"Pages", record.Pages},
	{"Format", record.Format},
	{"Language", record.Language},
	{"Subjects", record.Subjects},
	{"Id", record.ExternalID},
}

func writeText(out io.Writer, q query.Query, term search.Terminal) error {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s: %s\n", q, term.Kind)

	rec := term.Merged
	if !rec.IsEmpty() {
		for _, f := range textFields {
			if f.key.IsList() {
				values := rec.List(f.key)
				if len(values) == 0 {
					continue
				}
				parts := make([]string, len(values))
				for i, v := range values {
					parts[i] = v.Text
				}
				fmt.Fprintf(&b, "%-11s %s (%s)\n", f.label+":", strings.Join(parts, "; "), values[0].Source)
				continue
			}
			if v, ok := rec.Get(f.key); ok {
				fmt.Fprintf(&b, "%-11s %s (%s)\n", f.label+":", v.Text, v.Source)
			}
		}
		for _, tier := range []record.SizeTier{record.Large, record.Medium, record.Small} {
			if img, ok := rec.Image(0, tier); ok {
				fmt.Fprintf(&b, "%-11s %s (%s)\n", "Cover:", cmp.Or(img.File.Path, img.File.URL), img.Source)
				break
			}
		}
		fmt.Fprintf(&b, "%-11s %s\n", "Sources:", strings.Join(rec.Sources(), ", "))
	}
	for _, f := range term.Failures {
		fmt.Fprintf(&b, "%-11s %s\n", "Failed:", f.Error())
	}
	_, err := io.WriteString(out, b.String())
	return err
}
