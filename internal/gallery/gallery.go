package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lepinkainen/shelfscout/internal/events"
	"github.com/lepinkainen/shelfscout/internal/metrics"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
	"github.com/lepinkainen/shelfscout/internal/workpool"
)

// Gallery is the set of editions for one book. Its methods are safe for
// concurrent use.
type Gallery struct {
	id        string
	isbn      string
	fetcher   *Fetcher
	logger    *slog.Logger
	providers []provider.Entry

	ctx    context.Context
	cancel context.CancelFunc
	bus    *events.Bus[Event]
	sub    *events.Subscription[Event]
	done   chan struct{}

	mu         sync.Mutex
	items      map[string]*Item
	order      []string
	discovered bool
	terminal   *Terminal
	stopWatch  func() bool
}

func (g *Gallery) ID() string   { return g.id }
func (g *Gallery) ISBN() string { return g.isbn }

// Events delivers gallery events in order and closes after the terminal.
func (g *Gallery) Events() <-chan Event { return g.sub.C() }

// Release stops delivery on Events and drops what has not been received.
// Callers that stop reading Events before it closes should call it.
func (g *Gallery) Release() { g.sub.Unsubscribe() }

// Done is closed once the gallery has ended.
func (g *Gallery) Done() <-chan struct{} { return g.done }

// Terminal returns the terminal event once the gallery has ended.
func (g *Gallery) Terminal() (Terminal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal == nil {
		return Terminal{}, false
	}
	return *g.terminal, true
}

// Items returns the editions still in the gallery, requested edition first.
func (g *Gallery) Items() []Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Item, 0, len(g.order))
	for _, isbn := range g.order {
		if item := g.items[isbn]; item.Status != StatusRemoved {
			out = append(out, *item)
		}
	}
	return out
}

// Visible tells the gallery an edition scrolled into view. A thumbnail the
// pool previously rejected is submitted again.
func (g *Gallery) Visible(isbn string) error {
	code, err := query.NormalizeISBN(isbn)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownEdition, isbn)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal != nil {
		return ErrClosed
	}
	item, ok := g.items[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEdition, code)
	}
	if item.Status == StatusDeferred {
		return g.submitLocked(item)
	}
	return nil
}

// Select fetches the full-size cover of one edition, trying Large, then
// Medium, then Small across providers in priority order.
func (g *Gallery) Select(ctx context.Context, isbn string) (Item, error) {
	code, err := query.NormalizeISBN(isbn)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownEdition, isbn)
	}

	g.mu.Lock()
	if g.terminal != nil && g.terminal.Kind != TerminalNoEditionsFound {
		g.mu.Unlock()
		return Item{}, ErrClosed
	}
	item, ok := g.items[code]
	if !ok || item.Status == StatusRemoved {
		g.mu.Unlock()
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownEdition, code)
	}
	g.mu.Unlock()

	ref, source, err := g.fetchFirst(ctx, code, record.Large, record.Medium, record.Small)
	if ref == nil {
		if err == nil {
			err = ErrNoCover
		}
		return Item{}, fmt.Errorf("full-size cover for %s: %w", code, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	item.Full = ref
	item.Provider = source
	selected := *item
	g.publish(FullSizeReady{GalleryID: g.id, Item: selected})
	g.logger.Info("Selected cover", "edition", code, "provider", source, "tier", ref.Tier.String(), "path", ref.Path)
	return selected, nil
}

// Close ends the gallery. Idempotent.
func (g *Gallery) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal == nil {
		g.finish(TerminalClosed)
	}
}

func (g *Gallery) discover() {
	found := make([][]string, len(g.providers))
	var wg sync.WaitGroup
	for i, e := range g.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := g.callContext(g.ctx)
			defer cancel()
			editions, err := e.Adapter.FetchCoverEditions(ctx, g.isbn)
			if err != nil && !errors.Is(err, provider.ErrNotSupported) {
				g.logger.Debug("Edition lookup failed", "provider", e.ID, "error", err)
			}
			found[i] = editions
		}()
	}
	wg.Wait()

	editions := []string{g.isbn}
	seen := map[string]bool{g.isbn: true}
	for _, list := range found {
		for _, raw := range list {
			code, err := query.NormalizeISBN(raw)
			if err != nil || seen[code] {
				continue
			}
			seen[code] = true
			editions = append(editions, code)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal != nil {
		return
	}
	for _, code := range editions {
		g.items[code] = &Item{EditionISBN: code, Status: StatusPending}
		g.order = append(g.order, code)
	}
	g.discovered = true
	g.publish(EditionsFound{GalleryID: g.id, Editions: append([]string(nil), editions...)})
	g.logger.Debug("Editions discovered", "count", len(editions))

	for _, code := range editions {
		if err := g.submitLocked(g.items[code]); err != nil {
			return
		}
	}
}

// submitLocked queues a thumbnail fetch. A saturated pool defers the item;
// a closed pool ends the gallery. Caller holds g.mu.
func (g *Gallery) submitLocked(item *Item) error {
	code := item.EditionISBN
	err := g.fetcher.pool.TrySubmit(func(poolCtx context.Context) {
		g.loadThumbnail(poolCtx, code)
	})
	switch {
	case err == nil:
		item.Status = StatusPending
		return nil
	case errors.Is(err, workpool.ErrSaturated):
		item.Status = StatusDeferred
		metrics.IncThumbnailDeferred()
		g.publish(ThumbnailDeferred{GalleryID: g.id, EditionISBN: code})
		return nil
	default:
		g.logger.Debug("Thumbnail pool unavailable, closing gallery", "edition", code, "error", err)
		g.finish(TerminalClosed)
		return ErrClosed
	}
}

func (g *Gallery) loadThumbnail(poolCtx context.Context, code string) {
	g.mu.Lock()
	item := g.items[code]
	if g.terminal != nil || item == nil || item.Status != StatusPending {
		g.mu.Unlock()
		return
	}
	item.Status = StatusLoading
	g.mu.Unlock()

	// Stop when either the gallery or the shared pool goes away.
	ctx, cancel := context.WithCancel(g.ctx)
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	ref, source, err := g.fetchFirst(ctx, code, record.Small)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminal != nil {
		return
	}
	if ref == nil {
		if err == nil {
			err = ErrNoCover
		}
		item.Status = StatusRemoved
		metrics.IncThumbnail("removed")
		g.publish(EditionRemoved{GalleryID: g.id, EditionISBN: code, Err: err})
		g.logger.Debug("Edition removed", "edition", code, "error", err)
		if g.discovered && g.remainingLocked() == 0 {
			g.finish(TerminalNoEditionsFound)
		}
		return
	}

	item.Status = StatusReady
	item.Thumbnail = ref
	item.Provider = source
	metrics.IncThumbnail("ready")
	g.publish(ThumbnailReady{GalleryID: g.id, Item: *item})
}

// fetchFirst returns the first cover found, walking tiers in order and
// providers by priority within each tier.
func (g *Gallery) fetchFirst(ctx context.Context, code string, tiers ...record.SizeTier) (*record.FileReference, string, error) {
	var errs []error
	for _, tier := range tiers {
		for _, e := range g.providers {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			callCtx, cancel := g.callContext(ctx)
			ref, err := e.Adapter.FetchCoverImage(callCtx, code, tier)
			cancel()
			switch {
			case err != nil && !errors.Is(err, provider.ErrNotSupported):
				errs = append(errs, fmt.Errorf("%s: %w", e.ID, err))
			case ref != nil:
				return ref, e.ID, nil
			}
		}
	}
	return nil, "", errors.Join(errs...)
}

func (g *Gallery) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if t := g.fetcher.cfg.FetchTimeout; t > 0 {
		return context.WithTimeout(parent, t)
	}
	return context.WithCancel(parent)
}

func (g *Gallery) remainingLocked() int {
	n := 0
	for _, item := range g.items {
		if item.Status != StatusRemoved {
			n++
		}
	}
	return n
}

func (g *Gallery) publish(e Event) {
	g.bus.Publish(e)
}

// finish publishes the terminal event. Caller holds g.mu.
func (g *Gallery) finish(kind TerminalKind) {
	term := Terminal{GalleryID: g.id, Kind: kind}
	g.terminal = &term
	g.cancel()
	if g.stopWatch != nil {
		g.stopWatch()
	}
	g.publish(term)
	g.bus.Close()
	close(g.done)
	g.logger.Debug("Gallery finished", "outcome", kind.String())
}
