// Package providertest offers a configurable in-memory adapter for tests.
package providertest

import (
	"context"

	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

// Fake implements provider.Adapter by delegating to optional hooks. A nil
// hook behaves like provider.Unsupported.
type Fake struct {
	provider.Unsupported

	AdapterID string
	Caps      provider.Capability

	OnPing          func(ctx context.Context) error
	OnISBN          func(ctx context.Context, isbn string) (*record.Record, error)
	OnText          func(ctx context.Context, criteria query.Text) (*record.Record, error)
	OnExternalID    func(ctx context.Context, id string) (*record.Record, error)
	OnCoverEditions func(ctx context.Context, isbn string) ([]string, error)
	OnCoverImage    func(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error)
}

func (f *Fake) ID() string                        { return f.AdapterID }
func (f *Fake) Name() string                      { return "Fake " + f.AdapterID }
func (f *Fake) Capabilities() provider.Capability { return f.Caps }

func (f *Fake) Ping(ctx context.Context) error {
	if f.OnPing != nil {
		return f.OnPing(ctx)
	}
	return nil
}

func (f *Fake) SearchByISBN(ctx context.Context, isbn string) (*record.Record, error) {
	if f.OnISBN != nil {
		return f.OnISBN(ctx, isbn)
	}
	return f.Unsupported.SearchByISBN(ctx, isbn)
}

func (f *Fake) SearchByText(ctx context.Context, criteria query.Text) (*record.Record, error) {
	if f.OnText != nil {
		return f.OnText(ctx, criteria)
	}
	return f.Unsupported.SearchByText(ctx, criteria)
}

func (f *Fake) SearchByExternalID(ctx context.Context, id string) (*record.Record, error) {
	if f.OnExternalID != nil {
		return f.OnExternalID(ctx, id)
	}
	return f.Unsupported.SearchByExternalID(ctx, id)
}

func (f *Fake) FetchCoverEditions(ctx context.Context, isbn string) ([]string, error) {
	if f.OnCoverEditions != nil {
		return f.OnCoverEditions(ctx, isbn)
	}
	return f.Unsupported.FetchCoverEditions(ctx, isbn)
}

func (f *Fake) FetchCoverImage(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
	if f.OnCoverImage != nil {
		return f.OnCoverImage(ctx, isbn, tier)
	}
	return f.Unsupported.FetchCoverImage(ctx, isbn, tier)
}

// Returns is a SearchByISBN hook that answers with rec regardless of input.
func Returns(rec *record.Record) func(context.Context, string) (*record.Record, error) {
	return func(context.Context, string) (*record.Record, error) { return rec, nil }
}

// Fails is a SearchByISBN hook that always returns err.
func Fails(err error) func(context.Context, string) (*record.Record, error) {
	return func(context.Context, string) (*record.Record, error) { return nil, err }
}

// Blocks is a SearchByISBN hook that waits for release (or ctx) and then
// answers with rec.
func Blocks(release <-chan struct{}, rec *record.Record) func(context.Context, string) (*record.Record, error) {
	return func(ctx context.Context, _ string) (*record.Record, error) {
		select {
		case <-release:
			return rec, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
