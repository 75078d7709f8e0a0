// Package provider defines the adapter contract every bibliographic source
// implements and the registry that decides which adapters serve a request.
package provider

import (
	"context"
	"errors"

	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

// ErrNotSupported is returned by adapter methods outside the adapter's
// advertised capabilities.
var ErrNotSupported = errors.New("operation not supported by provider")

// Adapter talks to one external source.
//
// Search methods return nil, nil when the source has no match. Errors are
// reserved for transport, decoding and rate limit failures.
type Adapter interface {
	ID() string
	Name() string
	Capabilities() Capability
	// Ping checks that the source is reachable and credentials are accepted.
	Ping(ctx context.Context) error

	SearchByISBN(ctx context.Context, isbn string) (*record.Record, error)
	SearchByText(ctx context.Context, criteria query.Text) (*record.Record, error)
	SearchByExternalID(ctx context.Context, id string) (*record.Record, error)

	// FetchCoverEditions lists ISBN-13s of other editions of the same work.
	FetchCoverEditions(ctx context.Context, isbn string) ([]string, error)
	// FetchCoverImage downloads the cover for one edition at the given tier.
	// A nil reference with a nil error means the source has no cover.
	FetchCoverImage(ctx context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error)
}

// Unsupported can be embedded by adapters to stub out the operations they
// do not offer.
type Unsupported struct{}

func (Unsupported) Ping(context.Context) error { return nil }

func (Unsupported) SearchByISBN(context.Context, string) (*record.Record, error) {
	return nil, ErrNotSupported
}

func (Unsupported) SearchByText(context.Context, query.Text) (*record.Record, error) {
	return nil, ErrNotSupported
}

func (Unsupported) SearchByExternalID(context.Context, string) (*record.Record, error) {
	return nil, ErrNotSupported
}

func (Unsupported) FetchCoverEditions(context.Context, string) ([]string, error) {
	return nil, ErrNotSupported
}

func (Unsupported) FetchCoverImage(context.Context, string, record.SizeTier) (*record.FileReference, error) {
	return nil, ErrNotSupported
}
