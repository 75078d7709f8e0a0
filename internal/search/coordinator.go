// Package search runs one query against every capable provider at once and
// streams the merged result as providers answer.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/lepinkainen/shelfscout/internal/events"
	"github.com/lepinkainen/shelfscout/internal/metrics"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

// Config bounds a session. Zero durations disable the respective timeout.
type Config struct {
	AdapterTimeout        time.Duration
	SessionTimeout        time.Duration
	MaxConcurrentAdapters int
	Policy                record.Policy
}

func DefaultConfig() Config {
	return Config{
		AdapterTimeout: 20 * time.Second,
		SessionTimeout: 45 * time.Second,
		Policy:         record.DefaultPolicy(),
	}
}

type Option func(*Coordinator)

func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// Coordinator owns all running search sessions.
type Coordinator struct {
	registry *provider.Registry
	cfg      Config
	logger   *slog.Logger
	sem      *semaphore.Weighted
	bus      *events.Bus[Event]

	mu       sync.Mutex
	sessions map[string]*session
}

func New(registry *provider.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		bus:      events.NewBus[Event](),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "search")
	if c.cfg.MaxConcurrentAdapters > 0 {
		c.sem = semaphore.NewWeighted(int64(c.cfg.MaxConcurrentAdapters))
	}
	return c
}

// Subscribe returns a feed of events from every session started after the
// call. Per-session feeds are available from Handle.Events.
func (c *Coordinator) Subscribe() *events.Subscription[Event] {
	return c.bus.Subscribe()
}

// Start validates q, takes a registry snapshot and dispatches the session.
// It never blocks on adapters. Cancelling ctx cancels the session.
func (c *Coordinator) Start(ctx context.Context, q query.Query) (*Handle, error) {
	normalized, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	resolution := c.registry.ResolveQuery(normalized)
	id := ulid.Make().String()
	logger := c.logger.With("session", id, "query", normalized.String())

	bus := events.NewBus[Event]()
	h := &Handle{id: id, query: normalized, coord: c, events: bus.Subscribe()}

	if resolution.IsEmpty() {
		term := Terminal{SessionID: id, Kind: TerminalNoCapableProvider, Merged: record.New()}
		logger.Info("No capable provider", "capability", resolution.Capability.String())
		bus.Publish(term)
		c.bus.Publish(term)
		bus.Close()
		metrics.IncSessionRejected(normalized.Kind().String(), term.Kind.String())
		h.done = closedChan()
		h.terminal = &term
		return h, nil
	}

	s := &session{
		id:         id,
		query:      normalized,
		started:    time.Now(),
		bus:        bus,
		logger:     logger,
		policy:     c.cfg.Policy,
		dispatched: make(map[string]provider.Entry),
		completed:  make(map[string]bool),
		merged:     record.New(),
		done:       make(chan struct{}),
	}
	// Adapters get a context detached from the caller and cancelled by the
	// session, so a cancelled caller always observes Cancelled first.
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	var order []provider.Entry
	for _, e := range resolution.Entries {
		if _, dup := s.dispatched[e.ID]; dup {
			continue
		}
		s.dispatched[e.ID] = e
		order = append(order, e)
	}
	h.sess = s
	h.done = s.done

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	metrics.IncSessionStarted(normalized.Kind().String())
	logger.Debug("Dispatching search", "providers", resolution.IDs())

	// No completion can finish the session until every adapter is launched
	// and the timers are armed.
	s.mu.Lock()
	for _, e := range order {
		go c.run(s, e)
	}
	if c.cfg.SessionTimeout > 0 {
		s.timer = time.AfterFunc(c.cfg.SessionTimeout, func() { c.expire(s) })
	}
	s.stopWatch = context.AfterFunc(ctx, func() {
		logger.Debug("Owning context done, cancelling session")
		c.cancel(s)
	})
	s.mu.Unlock()

	return h, nil
}

// Cancel ends the session with a Cancelled terminal unless it has already
// ended. Idempotent.
func (c *Coordinator) Cancel(h *Handle) {
	if h == nil || h.sess == nil {
		return
	}
	c.cancel(h.sess)
}

// IsActive reports whether the session has not yet produced its terminal.
func (c *Coordinator) IsActive(h *Handle) bool {
	if h == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[h.id]
	return ok
}

// Active returns the number of running sessions.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Search runs q to completion and returns its terminal event. The error is
// ErrInvalidQuery, the joined adapter failures of a Failed terminal, or
// ctx's error when the caller cancelled.
func (c *Coordinator) Search(ctx context.Context, q query.Query) (Terminal, error) {
	h, err := c.Start(ctx, q)
	if err != nil {
		return Terminal{}, err
	}
	var (
		term Terminal
		ok   bool
	)
	for ev := range h.Events() {
		term, ok = ev.(Terminal)
	}
	if !ok {
		return Terminal{}, errors.New("session ended without a terminal event")
	}
	if term.Kind == TerminalCancelled && ctx.Err() != nil {
		return term, ctx.Err()
	}
	return term, term.Err()
}

// Close cancels every running session and closes the global feed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	running := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		running = append(running, s)
	}
	c.mu.Unlock()

	for _, s := range running {
		c.cancel(s)
	}
	c.bus.Close()
}

func (c *Coordinator) run(s *session, e provider.Entry) {
	logger := s.logger.With("provider", e.ID)

	if c.sem != nil {
		if err := c.sem.Acquire(s.ctx, 1); err != nil {
			// Session already ended; nothing to report.
			return
		}
		defer c.sem.Release(1)
	}

	callCtx, cancel := s.ctx, context.CancelFunc(func() {})
	if c.cfg.AdapterTimeout > 0 {
		callCtx, cancel = context.WithTimeout(s.ctx, c.cfg.AdapterTimeout)
	}
	defer cancel()

	type reply struct {
		rec *record.Record
		err error
	}
	replies := make(chan reply, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- reply{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		rec, err := invoke(callCtx, e.Adapter, s.query)
		replies <- reply{rec: rec, err: err}
	}()

	result := record.PartialResult{AdapterID: e.ID, Priority: e.Priority}
	outcome := OutcomeFailed
	var adapterErr *AdapterError

	select {
	case r := <-replies:
		result.Elapsed = time.Since(start)
		switch {
		case r.err != nil && errors.Is(r.err, context.DeadlineExceeded):
			outcome = OutcomeTimeout
			adapterErr = &AdapterError{AdapterID: e.ID, Timeout: true, Err: fmt.Errorf("%w: %w", ErrAdapterTimeout, r.err)}
		case r.err != nil:
			adapterErr = &AdapterError{AdapterID: e.ID, Err: r.err}
		case r.rec.IsEmpty():
			outcome = OutcomeEmpty
			result.Status = record.StatusEmpty
		default:
			outcome = OutcomeSuccess
			result.Status = record.StatusSuccess
			result.Record = r.rec.Clone().Stamp(e.ID)
		}
	case <-callCtx.Done():
		result.Elapsed = time.Since(start)
		outcome = OutcomeTimeout
		adapterErr = &AdapterError{AdapterID: e.ID, Timeout: true, Err: fmt.Errorf("%w after %s", ErrAdapterTimeout, result.Elapsed.Round(time.Millisecond))}
	}

	if adapterErr != nil {
		result.Status = record.StatusFailed
		result.Err = adapterErr
		logger.Debug("Adapter failed", "error", adapterErr, "elapsed", result.Elapsed)
	} else {
		logger.Debug("Adapter finished", "outcome", outcome.String(), "elapsed", result.Elapsed)
	}

	c.complete(s, result, outcome, adapterErr)
}

func invoke(ctx context.Context, a provider.Adapter, q query.Query) (*record.Record, error) {
	switch q.Kind() {
	case query.KindISBN:
		return a.SearchByISBN(ctx, q.ISBN())
	case query.KindText:
		return a.SearchByText(ctx, q.Text())
	case query.KindExternalID:
		return a.SearchByExternalID(ctx, q.ExternalID())
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrInvalidQuery, q.Kind())
	}
}

// complete folds one adapter result into the session. Results arriving after
// the terminal are dropped.
func (c *Coordinator) complete(s *session, result record.PartialResult, outcome Outcome, adapterErr *AdapterError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.ObserveAdapterCall(result.AdapterID, outcome.String(), result.Elapsed)

	if s.terminal != nil || s.completed[result.AdapterID] {
		metrics.IncLateResult(result.AdapterID)
		s.logger.Debug("Discarding late result", "provider", result.AdapterID, "outcome", outcome.String())
		return
	}
	s.add(result, adapterErr)

	var errForEvent error
	if adapterErr != nil {
		errForEvent = adapterErr
	}
	s.publish(c, Progress{
		SessionID:      s.id,
		ProviderID:     result.AdapterID,
		Outcome:        outcome,
		Err:            errForEvent,
		SessionElapsed: time.Since(s.started),
	})
	if result.Status == record.StatusSuccess {
		s.publish(c, Partial{SessionID: s.id, Result: result, Merged: s.merged.Clone()})
	}

	if len(s.completed) == len(s.dispatched) {
		c.finish(s, s.classify())
	}
}

func (c *Coordinator) expire(s *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal != nil {
		return
	}

	elapsed := time.Since(s.started)
	for _, id := range s.pending() {
		adapterErr := &AdapterError{AdapterID: id, Timeout: true, Err: fmt.Errorf("%w: session deadline reached", ErrAdapterTimeout)}
		s.add(record.PartialResult{AdapterID: id, Priority: s.dispatched[id].Priority, Status: record.StatusFailed, Err: adapterErr, Elapsed: elapsed}, adapterErr)
		s.publish(c, Progress{SessionID: s.id, ProviderID: id, Outcome: OutcomeTimeout, Err: adapterErr, SessionElapsed: elapsed})
	}
	s.logger.Info("Session timed out", "elapsed", elapsed.Round(time.Millisecond))
	c.finish(s, s.classify())
}

func (c *Coordinator) cancel(s *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal != nil {
		return
	}
	s.logger.Debug("Session cancelled", "completed", len(s.completed), "dispatched", len(s.dispatched))
	c.finish(s, TerminalCancelled)
}

// finish publishes the terminal event. Caller holds s.mu.
func (c *Coordinator) finish(s *session, kind TerminalKind) {
	term := Terminal{
		SessionID: s.id,
		Kind:      kind,
		Merged:    record.Fold(s.successes(), c.cfg.Policy),
		Failures:  append([]*AdapterError(nil), s.failures...),
		Elapsed:   time.Since(s.started),
	}
	s.terminal = &term

	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.stopWatch != nil {
		s.stopWatch()
	}

	s.publish(c, term)
	s.bus.Close()

	c.mu.Lock()
	delete(c.sessions, s.id)
	c.mu.Unlock()
	close(s.done)

	metrics.IncSessionFinished(kind.String(), term.Elapsed)
	level := slog.LevelInfo
	if kind == TerminalFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "Search finished",
		"outcome", kind.String(),
		"fields", len(term.Merged.Keys()),
		"failures", len(term.Failures),
		"elapsed", term.Elapsed.Round(time.Millisecond))
}
