// Package events is a small broadcast bus. Every subscriber gets its own
// unbounded mailbox, so publishing never blocks on a slow consumer and each
// subscriber sees events in publish order.
package events

import "sync"

// Bus fans published events out to all current subscribers.
type Bus[E any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[E]
	nextID uint64
	closed bool
}

func NewBus[E any]() *Bus[E] {
	return &Bus[E]{subs: make(map[uint64]*Subscription[E])}
}

// Subscribe registers a new subscriber. Events published before this call
// are not replayed. Subscribing to a closed bus returns an already closed
// subscription.
func (b *Bus[E]) Subscribe() *Subscription[E] {
	s := newSubscription[E](b)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.finish()
		return s
	}
	s.id = b.nextID
	b.nextID++
	b.subs[s.id] = s
	return s
}

// Publish enqueues e for every subscriber. It returns false once the bus
// is closed.
func (b *Bus[E]) Publish(e E) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	for _, s := range b.subs {
		s.enqueue(e)
	}
	return true
}

// Close stops accepting events. Subscribers still receive everything that
// was published before Close, then their channel is closed.
func (b *Bus[E]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.finish()
		delete(b.subs, id)
	}
}

// Len returns the number of live subscribers.
func (b *Bus[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus[E]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Subscription is one consumer's view of a Bus.
type Subscription[E any] struct {
	bus *Bus[E]
	id  uint64
	out chan E

	mu      sync.Mutex
	queue   []E
	closing bool
	wake    chan struct{}

	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

func newSubscription[E any](b *Bus[E]) *Subscription[E] {
	return &Subscription[E]{
		bus:  b,
		out:  make(chan E),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// C returns the delivery channel. It is closed after the bus closes and the
// mailbox drains, or right after Unsubscribe.
//
// Delivery starts on the first call. A subscription that is never read
// holds no goroutine and is collected with its queue once the bus closes.
func (s *Subscription[E]) C() <-chan E {
	s.startOnce.Do(func() { go s.pump() })
	return s.out
}

// Unsubscribe detaches from the bus and drops undelivered events. Safe to
// call more than once.
func (s *Subscription[E]) Unsubscribe() {
	s.stopOnce.Do(func() {
		s.bus.remove(s.id)
		close(s.stop)
	})
}

func (s *Subscription[E]) enqueue(e E) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[E]) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[E]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[E]) pump() {
	defer close(s.out)
	var zero E
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		e := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.stop:
			return
		}
	}
}
