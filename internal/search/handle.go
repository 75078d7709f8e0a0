package search

import (
	"slices"

	"github.com/lepinkainen/shelfscout/internal/events"
	"github.com/lepinkainen/shelfscout/internal/query"
)

// Handle identifies a started session.
type Handle struct {
	id     string
	query  query.Query
	coord  *Coordinator
	sess   *session
	events *events.Subscription[Event]
	done   <-chan struct{}

	// set for sessions that ended inside Start
	terminal *Terminal
}

func (h *Handle) ID() string         { return h.id }
func (h *Handle) Query() query.Query { return h.query }

// Events delivers every event of the session in order, ending with the
// terminal event, and is then closed.
func (h *Handle) Events() <-chan Event { return h.events.C() }

// Done is closed once the terminal event has been published.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Cancel() { h.coord.Cancel(h) }

// Release stops delivery on Events and drops what has not been received.
// Callers that stop reading Events before it closes should call it.
func (h *Handle) Release() { h.events.Unsubscribe() }

// Terminal returns the terminal event once the session has ended.
func (h *Handle) Terminal() (Terminal, bool) {
	if h.terminal != nil {
		return *h.terminal, true
	}
	select {
	case <-h.done:
	default:
		return Terminal{}, false
	}
	h.sess.mu.Lock()
	defer h.sess.mu.Unlock()
	return *h.sess.terminal, true
}

// Wait blocks until the terminal event is published.
func (h *Handle) Wait() (Terminal, bool) {
	<-h.done
	return h.Terminal()
}

// Providers lists the adapter IDs the session dispatched to, sorted.
func (h *Handle) Providers() []string {
	if h.sess == nil {
		return nil
	}
	ids := make([]string, 0, len(h.sess.dispatched))
	for id := range h.sess.dispatched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
