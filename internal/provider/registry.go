package provider

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/lepinkainen/shelfscout/internal/query"
)

var (
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// Entry is a registered adapter with its user preferences.
type Entry struct {
	ID           string
	Name         string
	Capabilities Capability
	Enabled      bool
	Priority     int
	Adapter      Adapter
}

// Options are the initial preferences for a newly registered adapter.
type Options struct {
	Priority int
	Enabled  bool
}

// Resolution is a point-in-time snapshot of the adapters eligible for one
// request, ordered by ascending priority then ID.
type Resolution struct {
	Capability Capability
	Entries    []Entry
}

// IsEmpty is the "no capable provider" state.
func (r Resolution) IsEmpty() bool { return len(r.Entries) == 0 }

func (r Resolution) IDs() []string {
	ids := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Registry holds adapters and their preferences. It is safe for concurrent
// use; resolutions are copies and are unaffected by later changes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	logger  *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		logger:  slog.Default().With("component", "registry"),
	}
}

// Register adds an adapter. IDs must be unique.
func (r *Registry) Register(a Adapter, opts Options) error {
	if a == nil || a.ID() == "" {
		return errors.New("adapter must have an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[a.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, a.ID())
	}
	r.entries[a.ID()] = &Entry{
		ID:           a.ID(),
		Name:         a.Name(),
		Capabilities: a.Capabilities(),
		Enabled:      opts.Enabled,
		Priority:     opts.Priority,
		Adapter:      a,
	}
	r.logger.Debug("Registered provider", "provider", a.ID(), "capabilities", a.Capabilities().String(), "priority", opts.Priority, "enabled", opts.Enabled)
	return nil
}

// Entries returns every registered adapter, enabled or not, in priority order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(*Entry) bool { return true })
}

func (r *Registry) Entry(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Resolve returns enabled adapters advertising capability and, when kind is
// non-zero, the capability that kind requires.
func (r *Registry) Resolve(capability Capability, kind query.Kind) Resolution {
	required := capability | ForKind(kind)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return Resolution{
		Capability: required,
		Entries: r.sortedLocked(func(e *Entry) bool {
			return e.Enabled && e.Capabilities.Has(required)
		}),
	}
}

// ResolveQuery resolves the adapters for a normalised query. External-id
// queries only ever resolve to the adapter the ID belongs to.
func (r *Registry) ResolveQuery(q query.Query) Resolution {
	res := r.Resolve(ForKind(q.Kind()), q.Kind())
	if q.Kind() != query.KindExternalID {
		return res
	}
	res.Entries = slices.DeleteFunc(res.Entries, func(e Entry) bool {
		return e.ID != q.ProviderKey()
	})
	return res
}

func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	e.Enabled = enabled
	return nil
}

func (r *Registry) SetPriority(id string, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	e.Priority = priority
	return nil
}

// Move places id at position (0 based) in the current priority order and
// renumbers every entry 0..n-1.
func (r *Registry) Move(id string, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	ordered := r.sortedLocked(func(e *Entry) bool { return e.ID != id })
	position = max(0, min(position, len(ordered)))

	ids := make([]string, 0, len(ordered)+1)
	for _, e := range ordered {
		ids = append(ids, e.ID)
	}
	ids = slices.Insert(ids, position, id)
	for i, eid := range ids {
		r.entries[eid].Priority = i
	}
	return nil
}

func (r *Registry) sortedLocked(keep func(*Entry) bool) []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.ID, b.ID))
	})
	return out
}
