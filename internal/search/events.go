package search

import (
	"errors"
	"fmt"
	"time"

	"github.com/lepinkainen/shelfscout/internal/query"
	"github.com/lepinkainen/shelfscout/internal/record"
)

var (
	// ErrInvalidQuery is returned by Start when the query fails validation.
	ErrInvalidQuery = query.ErrInvalidQuery
	// ErrAllProvidersFailed is the error of a Failed terminal.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrAdapterTimeout marks an adapter call that exceeded its deadline or
	// was still pending when the session timed out.
	ErrAdapterTimeout = errors.New("adapter timed out")
)

// Outcome classifies one adapter call in a Progress event.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeEmpty
	OutcomeFailed
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TerminalKind is how a session ended.
type TerminalKind int

const (
	TerminalSuccess TerminalKind = iota
	TerminalNotFound
	TerminalFailed
	TerminalCancelled
	TerminalNoCapableProvider
)

func (k TerminalKind) String() string {
	switch k {
	case TerminalSuccess:
		return "success"
	case TerminalNotFound:
		return "not_found"
	case TerminalFailed:
		return "failed"
	case TerminalCancelled:
		return "cancelled"
	case TerminalNoCapableProvider:
		return "no_capable_provider"
	default:
		return "unknown"
	}
}

// AdapterError is a single adapter's failure within a session.
type AdapterError struct {
	AdapterID string
	Timeout   bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out", e.AdapterID)
	}
	return fmt.Sprintf("%s: %v", e.AdapterID, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Event is one of Progress, Partial or Terminal.
type Event interface {
	Session() string
	event()
}

// Progress is published once per dispatched adapter, in completion order.
type Progress struct {
	SessionID      string
	ProviderID     string
	Outcome        Outcome
	Err            error
	SessionElapsed time.Duration
}

// Partial follows the Progress of a successful adapter and carries the
// record merged so far in arrival order.
type Partial struct {
	SessionID string
	Result    record.PartialResult
	Merged    *record.Record
}

// Terminal is always the last event of a session.
type Terminal struct {
	SessionID string
	Kind      TerminalKind
	// Merged is the priority-ordered fold of every successful result.
	Merged   *record.Record
	Failures []*AdapterError
	Elapsed  time.Duration
}

func (p Progress) Session() string { return p.SessionID }
func (p Partial) Session() string  { return p.SessionID }
func (t Terminal) Session() string { return t.SessionID }

func (Progress) event() {}
func (Partial) event()  {}
func (Terminal) event() {}

// Err returns a non-nil error only for the Failed terminal: every adapter
// errored or timed out.
func (t Terminal) Err() error {
	if t.Kind != TerminalFailed {
		return nil
	}
	errs := make([]error, 0, len(t.Failures)+1)
	errs = append(errs, ErrAllProvidersFailed)
	for _, f := range t.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
