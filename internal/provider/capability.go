package provider

import (
	"strings"

	"github.com/lepinkainen/shelfscout/internal/query"
)

// Capability is a set of operations an adapter supports.
type Capability uint8

const (
	SearchByISBN Capability = 1 << iota
	SearchByText
	SearchByExternalID
	FetchCover
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{SearchByISBN, "isbn"},
	{SearchByText, "text"},
	{SearchByExternalID, "external_id"},
	{FetchCover, "cover"},
}

// Has reports whether c includes every capability in other. The empty set
// is never "had".
func (c Capability) Has(other Capability) bool {
	return other != 0 && c&other == other
}

// Contains reports whether c and other share at least one capability.
func (c Capability) Contains(other Capability) bool {
	return c&other != 0
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c&n.cap != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ForKind returns the capability a query kind requires, or 0 for unknown kinds.
func ForKind(kind query.Kind) Capability {
	switch kind {
	case query.KindISBN:
		return SearchByISBN
	case query.KindText:
		return SearchByText
	case query.KindExternalID:
		return SearchByExternalID
	default:
		return 0
	}
}
