package search

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lepinkainen/shelfscout/internal/events"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

// session is the state of one running search. Every field below mu is
// guarded by it; events are only published with mu held.
type session struct {
	id      string
	query   query.Query
	started time.Time
	bus     *events.Bus[Event]
	logger  *slog.Logger
	policy  record.Policy

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	dispatched map[string]provider.Entry
	completed  map[string]bool
	results    []record.PartialResult
	failures   []*AdapterError
	merged     *record.Record
	terminal   *Terminal
	timer      *time.Timer
	stopWatch  func() bool
}

func (s *session) add(result record.PartialResult, adapterErr *AdapterError) {
	s.completed[result.AdapterID] = true
	s.results = append(s.results, result)
	if adapterErr != nil {
		s.failures = append(s.failures, adapterErr)
	}
	s.merged = record.Merge(s.merged, result, s.policy)
}

func (s *session) publish(c *Coordinator, e Event) {
	s.bus.Publish(e)
	c.bus.Publish(e)
}

func (s *session) pending() []string {
	var ids []string
	for id := range s.dispatched {
		if !s.completed[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *session) successes() []record.PartialResult {
	var out []record.PartialResult
	for _, r := range s.results {
		if r.Status == record.StatusSuccess {
			out = append(out, r)
		}
	}
	return out
}

// classify picks the terminal once every adapter has reported.
func (s *session) classify() TerminalKind {
	empty := false
	for _, r := range s.results {
		switch r.Status {
		case record.StatusSuccess:
			return TerminalSuccess
		case record.StatusEmpty:
			empty = true
		}
	}
	if empty {
		return TerminalNotFound
	}
	return TerminalFailed
}
