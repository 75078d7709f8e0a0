// Package gallery builds a browsable set of cover thumbnails for every known
// edition of a book and fetches the full-size cover of the one the user picks.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lepinkainen/shelfscout/internal/events"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/workpool"
)

var (
	ErrUnknownEdition = errors.New("edition not in gallery")
	ErrNoCover        = errors.New("no cover available")
	ErrClosed         = errors.New("gallery closed")
)

type Config struct {
	Workers    int
	QueueDepth int
	// FetchTimeout bounds each provider call; zero disables it.
	FetchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Workers: 4, QueueDepth: 8, FetchTimeout: 15 * time.Second}
}

type Option func(*Fetcher)

func WithConfig(cfg Config) Option {
	return func(f *Fetcher) { f.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// Fetcher opens galleries. All galleries share one worker pool so the
// number of concurrent thumbnail downloads stays bounded.
type Fetcher struct {
	registry *provider.Registry
	cfg      Config
	logger   *slog.Logger
	pool     *workpool.Pool
}

func NewFetcher(registry *provider.Registry, opts ...Option) *Fetcher {
	f := &Fetcher{
		registry: registry,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "gallery")
	f.pool = workpool.New(f.cfg.Workers, f.cfg.QueueDepth)
	return f
}

// Open starts a gallery for isbn. Edition discovery and thumbnails load in
// the background; follow progress on Gallery.Events. Cancelling ctx closes
// the gallery.
func (f *Fetcher) Open(ctx context.Context, isbn string) (*Gallery, error) {
	code, err := query.NormalizeISBN(isbn)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", query.ErrInvalidQuery, isbn, err)
	}

	id := ulid.Make().String()
	bus := events.NewBus[Event]()
	g := &Gallery{
		id:      id,
		isbn:    code,
		fetcher: f,
		logger:  f.logger.With("gallery", id, "isbn", code),
		bus:     bus,
		sub:     bus.Subscribe(),
		items:   make(map[string]*Item),
		done:    make(chan struct{}),
	}
	g.ctx, g.cancel = context.WithCancel(context.WithoutCancel(ctx))

	resolution := f.registry.Resolve(provider.FetchCover, 0)
	if resolution.IsEmpty() {
		g.mu.Lock()
		g.finish(TerminalNoCapableProvider)
		g.mu.Unlock()
		return g, nil
	}
	g.providers = resolution.Entries

	g.mu.Lock()
	g.stopWatch = context.AfterFunc(ctx, g.Close)
	g.mu.Unlock()

	g.logger.Debug("Opening gallery", "providers", resolution.IDs())
	go g.discover()
	return g, nil
}

// Close stops the shared worker pool. Open galleries stop loading.
func (f *Fetcher) Close() {
	f.pool.Close()
}
