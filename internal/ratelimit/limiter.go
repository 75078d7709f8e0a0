// Package ratelimit paces outgoing requests to each bibliographic provider.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a named token bucket. A nil *Limiter never waits, which lets
// adapters built in tests skip pacing entirely.
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu        sync.Mutex
	notBefore time.Time
}

// New allows requestsPerSecond with an equal burst (at least one).
func New(name string, requestsPerSecond float64) *Limiter {
	return NewWithBurst(name, requestsPerSecond, int(requestsPerSecond))
}

func NewWithBurst(name string, requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, burst)),
		name:    name,
	}
}

// Every allows one request per interval.
func Every(name string, interval time.Duration) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		name:    name,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	l.mu.Lock()
	pause := time.Until(l.notBefore)
	l.mu.Unlock()
	if pause > 0 {
		t := time.NewTimer(pause)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("rate limit wait for %s: %w", l.name, ctx.Err())
		}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request can proceed without blocking.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	blocked := time.Now().Before(l.notBefore)
	l.mu.Unlock()
	return !blocked && l.limiter.Allow()
}

// Backoff holds every request for at least d. Adapters call it when the
// provider answered 429 with a Retry-After.
func (l *Limiter) Backoff(d time.Duration) {
	if l == nil || d <= 0 {
		return
	}
	until := time.Now().Add(d)
	l.mu.Lock()
	if until.After(l.notBefore) {
		l.notBefore = until
	}
	l.mu.Unlock()
}

func (l *Limiter) Name() string {
	if l == nil {
		return "unlimited"
	}
	return l.name
}
