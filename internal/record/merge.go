package record

import (
	"cmp"
	"slices"
	"time"
)

// Status is the outcome of one adapter call.
type Status int

const (
	StatusSuccess Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PartialResult is what one adapter contributed to a session.
type PartialResult struct {
	AdapterID string
	Priority  int
	Record    *Record
	Status    Status
	Err       error
	Elapsed   time.Duration
}

// Policy tunes scalar conflict resolution.
type Policy struct {
	// Overridable scalars are replaced when a strictly higher priority
	// (lower number) source supplies them later.
	Overridable map[Key]bool
}

// DefaultPolicy keeps the first value for every scalar.
func DefaultPolicy() Policy {
	return Policy{}
}

// Merge folds one partial result into current and returns a new record.
// Neither argument is modified.
func Merge(current *Record, partial PartialResult, policy Policy) *Record {
	out := current.Clone()
	if partial.Status != StatusSuccess || partial.Record.IsEmpty() {
		return out
	}
	src := partial.Record

	for key, v := range src.scalars {
		if v.Text == "" {
			continue
		}
		if v.Source == "" {
			v.Source = partial.AdapterID
		}
		v.priority = partial.Priority

		existing, ok := out.scalars[key]
		switch {
		case !ok || existing.Text == "":
			out.scalars[key] = v
		case policy.Overridable[key] && partial.Priority < existing.priority:
			out.scalars[key] = v
		}
	}

	// Map iteration order does not matter here: each key merges independently.
	for key, values := range src.lists {
		seen := make(map[string]bool, len(out.lists[key]))
		for _, v := range out.lists[key] {
			seen[identity(key, v.Text)] = true
		}
		for _, v := range values {
			id := identity(key, v.Text)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			if v.Source == "" {
				v.Source = partial.AdapterID
			}
			v.priority = partial.Priority
			out.lists[key] = append(out.lists[key], v)
		}
	}

	for slot, img := range src.images {
		if existing, ok := out.images[slot]; ok && (existing.File.Path != "" || existing.File.URL != "") {
			continue
		}
		if img.File.Path == "" && img.File.URL == "" {
			continue
		}
		if img.Source == "" {
			img.Source = partial.AdapterID
		}
		out.images[slot] = img
	}

	return out
}

// Fold merges partials in (priority, adapter ID) order, so the result does
// not depend on the order partials arrived in.
func Fold(partials []PartialResult, policy Policy) *Record {
	ordered := slices.Clone(partials)
	slices.SortStableFunc(ordered, func(a, b PartialResult) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.AdapterID, b.AdapterID))
	})
	merged := New()
	for _, p := range ordered {
		merged = Merge(merged, p, policy)
	}
	return merged
}
