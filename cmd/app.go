package cmd

import (
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lepinkainen/shelfscout/internal/cache"
	"github.com/lepinkainen/shelfscout/internal/config"
	"github.com/lepinkainen/shelfscout/internal/coverfile"
	"github.com/lepinkainen/shelfscout/internal/gallery"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/providers"
	"github.com/lepinkainen/shelfscout/internal/providers/goodreads"
	"github.com/lepinkainen/shelfscout/internal/providers/googlebooks"
	"github.com/lepinkainen/shelfscout/internal/providers/hardcover"
	"github.com/lepinkainen/shelfscout/internal/providers/isbndb"
	"github.com/lepinkainen/shelfscout/internal/providers/openlibrary"
	"github.com/lepinkainen/shelfscout/internal/search"
)

// app carries what the subcommands share. Providers are built on first use
// so cache maintenance commands never touch the network stack.
type app struct {
	settings config.Settings
	out      io.Writer
	logger   *slog.Logger

	once     sync.Once
	err      error
	cacheDB  *cache.DB
	registry *provider.Registry
}

func newApp(settings config.Settings, out io.Writer) *app {
	return &app{settings: settings, out: out, logger: slog.Default()}
}

// Registry returns the provider registry with preferences applied.
func (a *app) Registry() (*provider.Registry, error) {
	a.once.Do(func() {
		if a.registry == nil {
			a.registry, a.err = a.buildRegistry()
		}
	})
	return a.registry, a.err
}

func (a *app) buildRegistry() (*provider.Registry, error) {
	db, err := cache.Open(a.settings.CacheDBFile, a.settings.CacheTTL)
	if err != nil {
		a.logger.Warn("Provider cache disabled", "file", a.settings.CacheDBFile, "error", err)
		db = nil
	}
	a.cacheDB = db

	client := &http.Client{Timeout: a.settings.AdapterTimeout}
	common := []providers.Option{
		providers.WithHTTPClient(client),
		providers.WithCache(db),
		providers.WithCoverStore(coverfile.NewStore(a.settings.CoverDir, client)),
		providers.WithLogger(a.logger),
	}

	s := a.settings
	builtin := []struct {
		adapter provider.Adapter
		opts    provider.Options
	}{
		{isbndb.New(s.ISBNdbAPIKey, common...), provider.Options{Priority: 0, Enabled: s.ISBNdbAPIKey != ""}},
		{openlibrary.New(common...), provider.Options{Priority: 1, Enabled: true}},
		{googlebooks.New(s.GoogleBooksAPIKey, common...), provider.Options{Priority: 2, Enabled: true}},
		{hardcover.New(s.HardcoverToken, common...), provider.Options{Priority: 3, Enabled: s.HardcoverToken != ""}},
		{goodreads.New(s.GoodreadsRender, common...), provider.Options{Priority: 4, Enabled: false}},
	}

	reg := provider.NewRegistry()
	for _, b := range builtin {
		if err := reg.Register(b.adapter, b.opts); err != nil {
			return nil, err
		}
	}

	prefs, err := provider.LoadPreferences(s.PreferencesFile)
	if err != nil {
		return nil, err
	}
	reg.Apply(prefs)
	return reg, nil
}

// SavePreferences persists the registry's current order and enablement.
func (a *app) SavePreferences() error {
	reg, err := a.Registry()
	if err != nil {
		return err
	}
	if err := provider.SavePreferences(a.settings.PreferencesFile, reg.Preferences()); err != nil {
		return err
	}
	a.logger.Info("Saved provider preferences", "file", a.settings.PreferencesFile)
	return nil
}

func (a *app) Coordinator() (*search.Coordinator, error) {
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}
	return search.New(reg,
		search.WithConfig(search.Config{
			AdapterTimeout:        a.settings.AdapterTimeout,
			SessionTimeout:        a.settings.SessionTimeout,
			MaxConcurrentAdapters: a.settings.MaxConcurrentAdapters,
			Policy:                search.DefaultConfig().Policy,
		}),
		search.WithLogger(a.logger.With("component", "search")),
	), nil
}

func (a *app) Fetcher() (*gallery.Fetcher, error) {
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}
	return gallery.NewFetcher(reg,
		gallery.WithConfig(gallery.Config{
			Workers:      a.settings.GalleryWorkers,
			QueueDepth:   a.settings.GalleryQueueDepth,
			FetchTimeout: a.settings.AdapterTimeout,
		}),
		gallery.WithLogger(a.logger.With("component", "gallery")),
	), nil
}

func (a *app) Close() {
	if a.cacheDB != nil {
		_ = a.cacheDB.Close()
	}
}
