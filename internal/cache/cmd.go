package cache

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// InvalidateCacheCmd is the `cache invalidate` subcommand.
type InvalidateCacheCmd struct {
	Source string `arg:"" help:"Provider whose cache to clear: openlibrary, googlebooks, isbndb, hardcover, goodreads, or all" required:""`
}

func (i *InvalidateCacheCmd) Run() error {
	path := viper.GetString("cache.dbfile")
	slog.Info("Invalidating cache", "source", i.Source, "database", path)

	sources := []string{i.Source}
	if i.Source == "all" {
		sources = Sources
	} else if !slices.Contains(Sources, i.Source) {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: %s, all", i.Source, strings.Join(Sources, ", "))
	}

	db, err := Open(path, 0)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, source := range sources {
		rowsDeleted, err := db.InvalidateSource(TableFor(source))
		if err != nil {
			return fmt.Errorf("failed to invalidate cache: %w", err)
		}
		slog.Info("Cache invalidated", "source", source, "rows_deleted", rowsDeleted)
	}
	return nil
}

// ClearExpiredCmd is the `cache prune` subcommand.
type ClearExpiredCmd struct{}

func (ClearExpiredCmd) Run() error {
	db, err := Open(viper.GetString("cache.dbfile"), viper.GetDuration("cache.ttl"))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var total int64
	for _, source := range Sources {
		n, err := db.ClearExpired(TableFor(source))
		if err != nil {
			return err
		}
		total += n
	}
	slog.Info("Pruned expired cache entries", "rows_deleted", total)
	return nil
}
