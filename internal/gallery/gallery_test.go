package gallery_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/shelfscout/internal/gallery"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/provider/providertest"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

const effectiveJava = "9780134685991"

func newFetcher(t *testing.T, workers, queue int, fakes ...*providertest.Fake) *gallery.Fetcher {
	t.Helper()
	reg := provider.NewRegistry()
	for i, f := range fakes {
		require.NoError(t, reg.Register(f, provider.Options{Priority: i, Enabled: true}))
	}
	f := gallery.NewFetcher(reg, gallery.WithConfig(gallery.Config{
		Workers:      workers,
		QueueDepth:   queue,
		FetchTimeout: time.Second,
	}))
	t.Cleanup(f.Close)
	return f
}

func cover(isbn string, tier record.SizeTier) *record.FileReference {
	return &record.FileReference{Path: "/covers/" + isbn + "-" + tier.String() + ".jpg", Tier: tier}
}

// drain reads events until the gallery's feed closes.
func drain(t *testing.T, g *gallery.Gallery) []gallery.Event {
	t.Helper()
	var out []gallery.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-g.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("gallery %s did not finish; got %d events", g.ID(), len(out))
		}
	}
}

func countOf[T gallery.Event](events []gallery.Event) int {
	n := 0
	for _, e := range events {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

func TestOpenWithoutCoverProviders(t *testing.T) {
	f := newFetcher(t, 2, 0, &providertest.Fake{AdapterID: "meta", Caps: provider.SearchByISBN})

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)

	term, ok := g.Terminal()
	require.True(t, ok, "terminal should be set before Open returns")
	assert.Equal(t, gallery.TerminalNoCapableProvider, term.Kind)

	events := drain(t, g)
	require.Len(t, events, 1)
	assert.Equal(t, term, events[0])
}

func TestOpenRejectsInvalidISBN(t *testing.T) {
	f := newFetcher(t, 2, 0)
	_, err := f.Open(context.Background(), "978013468599X")
	require.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestEditionsRequestedFirstAndDeduplicated(t *testing.T) {
	release := make(chan struct{})
	image := func(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
		<-release
		return cover(isbn, tier), nil
	}
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			return []string{"0-8044-2957-X", effectiveJava, "not-an-isbn"}, nil
		},
		OnCoverImage: image,
	}
	b := &providertest.Fake{
		AdapterID: "b",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			return []string{"9780804429573", "9780321356680"}, nil
		},
	}
	f := newFetcher(t, 4, 4, a, b)

	g, err := f.Open(context.Background(), "0-13-468599-7")
	require.NoError(t, err)

	first := <-g.Events()
	found, ok := first.(gallery.EditionsFound)
	require.True(t, ok, "first event should list editions, got %T", first)
	assert.Equal(t, []string{effectiveJava, "9780804429573", "9780321356680"}, found.Editions)

	close(release)
	require.Eventually(t, func() bool {
		for _, item := range g.Items() {
			if item.Status != gallery.StatusReady {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	items := g.Items()
	require.Len(t, items, 3)
	assert.Equal(t, effectiveJava, items[0].EditionISBN)
	assert.Equal(t, record.Small, items[0].Thumbnail.Tier)
	assert.Equal(t, "a", items[0].Provider)
	g.Close()
}

func TestThumbnailsStayWithinPoolBounds(t *testing.T) {
	editions := []string{"9780321356680", "9780596007126", "9781491950357", "9780262033848"}
	var inFlight, peak atomic.Int32
	gate := make(chan struct{})
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			return editions, nil
		},
		OnCoverImage: func(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-gate
			return cover(isbn, tier), nil
		},
	}
	f := newFetcher(t, 2, 0, a)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)
	defer g.Close()

	var mu sync.Mutex
	var seen []gallery.Event
	go func() {
		for e := range g.Events() {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		}
	}()

	// Two accepted, three turned away.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return countOf[gallery.ThumbnailDeferred](seen) == 3
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)
	require.Eventually(t, func() bool {
		ready := 0
		for _, item := range g.Items() {
			switch item.Status {
			case gallery.StatusReady:
				ready++
			case gallery.StatusDeferred:
				_ = g.Visible(item.EditionISBN)
			}
		}
		return ready == 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMissingThumbnailRemovesEdition(t *testing.T) {
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			return []string{"9780321356680"}, nil
		},
		OnCoverImage: func(_ context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
			if isbn == effectiveJava {
				return cover(isbn, tier), nil
			}
			return nil, nil
		},
	}
	f := newFetcher(t, 2, 2, a)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := g.Items()
		return len(items) == 1 && items[0].Status == gallery.StatusReady
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, effectiveJava, g.Items()[0].EditionISBN)

	g.Close()
	events := drain(t, g)
	assert.Equal(t, 1, countOf[gallery.EditionRemoved](events))
	assert.Equal(t, gallery.Terminal{GalleryID: g.ID(), Kind: gallery.TerminalClosed}, events[len(events)-1])
}

func TestNoEditionsFound(t *testing.T) {
	broken := errors.New("cover service down")
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			return []string{"9780321356680"}, nil
		},
		OnCoverImage: func(context.Context, string, record.SizeTier) (*record.FileReference, error) {
			return nil, broken
		},
	}
	f := newFetcher(t, 2, 2, a)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)

	events := drain(t, g)
	assert.Equal(t, 2, countOf[gallery.EditionRemoved](events))
	for _, e := range events {
		if removed, ok := e.(gallery.EditionRemoved); ok {
			assert.ErrorIs(t, removed.Err, broken)
		}
	}
	term, ok := g.Terminal()
	require.True(t, ok)
	assert.Equal(t, gallery.TerminalNoEditionsFound, term.Kind)
	assert.Empty(t, g.Items())
}

func TestSelectCascadesTiersAcrossProviders(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	serve := func(id string, tiers ...record.SizeTier) func(context.Context, string, record.SizeTier) (*record.FileReference, error) {
		return func(_ context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
			mu.Lock()
			calls = append(calls, id+":"+tier.String())
			mu.Unlock()
			for _, have := range tiers {
				if have == tier {
					return cover(isbn, tier), nil
				}
			}
			return nil, nil
		}
	}
	a := &providertest.Fake{AdapterID: "a", Caps: provider.FetchCover, OnCoverImage: serve("a", record.Small, record.Medium)}
	b := &providertest.Fake{AdapterID: "b", Caps: provider.FetchCover, OnCoverImage: serve("b", record.Medium)}
	f := newFetcher(t, 2, 2, a, b)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)
	defer g.Close()

	require.Eventually(t, func() bool {
		items := g.Items()
		return len(items) == 1 && items[0].Status == gallery.StatusReady
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	calls = nil
	mu.Unlock()

	item, err := g.Select(context.Background(), effectiveJava)
	require.NoError(t, err)
	assert.Equal(t, "a", item.Provider)
	assert.Equal(t, item.Full, item.File())
	assert.Equal(t, record.Medium, item.Full.Tier)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a:large", "b:large", "a:medium"}, calls)
}

func TestSelectUnknownEdition(t *testing.T) {
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverImage: func(_ context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
			return cover(isbn, tier), nil
		},
	}
	f := newFetcher(t, 1, 1, a)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)
	defer g.Close()

	require.Eventually(t, func() bool { return len(g.Items()) == 1 }, time.Second, 5*time.Millisecond)
	_, err = g.Select(context.Background(), "9780321356680")
	require.ErrorIs(t, err, gallery.ErrUnknownEdition)
}

func TestOwningContextClosesGallery(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverImage: func(ctx context.Context, _ string, _ record.SizeTier) (*record.FileReference, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, ctx.Err()
		},
	}
	f := newFetcher(t, 1, 0, a)

	ctx, cancel := context.WithCancel(context.Background())
	g, err := f.Open(ctx, effectiveJava)
	require.NoError(t, err)
	cancel()

	select {
	case <-g.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("gallery still open after its context was cancelled")
	}
	term, _ := g.Terminal()
	assert.Equal(t, gallery.TerminalClosed, term.Kind)
	assert.ErrorIs(t, g.Visible(effectiveJava), gallery.ErrClosed)

	g.Close() // idempotent
}

func TestClosedFetcherEndsGallery(t *testing.T) {
	release := make(chan struct{})
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			<-release
			return []string{"9780321356680"}, nil
		},
		OnCoverImage: func(_ context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
			return cover(isbn, tier), nil
		},
	}
	f := newFetcher(t, 1, 0, a)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)
	f.Close()
	close(release)

	events := drain(t, g)
	assert.Zero(t, countOf[gallery.ThumbnailDeferred](events))
	assert.Equal(t, gallery.Terminal{GalleryID: g.ID(), Kind: gallery.TerminalClosed}, events[len(events)-1])
	for _, item := range g.Items() {
		assert.NotEqual(t, gallery.StatusDeferred, item.Status, item.EditionISBN)
	}
}

func TestReleaseEndsEventFeedEarly(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	a := &providertest.Fake{
		AdapterID: "a",
		Caps:      provider.FetchCover,
		OnCoverImage: func(ctx context.Context, _ string, _ record.SizeTier) (*record.FileReference, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, ctx.Err()
		},
	}
	f := newFetcher(t, 1, 0, a)

	g, err := f.Open(context.Background(), effectiveJava)
	require.NoError(t, err)
	defer g.Close()

	_, ok := (<-g.Events()).(gallery.EditionsFound)
	require.True(t, ok)
	g.Release()

	// the feed closes although the gallery is still open
	_ = drain(t, g)
	_, done := g.Terminal()
	assert.False(t, done)
}
