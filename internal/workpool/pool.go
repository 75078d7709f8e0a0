// Package workpool runs tasks on a fixed number of slots with a bounded
// backlog. Submission never blocks: a full pool rejects the task and the
// caller decides whether to retry later.
package workpool

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	ErrSaturated = errors.New("worker pool saturated")
	ErrClosed    = errors.New("worker pool closed")
)

// Pool runs at most Workers tasks at a time and admits at most
// Workers+QueueDepth tasks in total.
type Pool struct {
	workers    int
	queueDepth int
	admit      *semaphore.Weighted
	run        *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(workers, queueDepth int) *Pool {
	workers = max(1, workers)
	queueDepth = max(0, queueDepth)
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:    workers,
		queueDepth: queueDepth,
		admit:      semaphore.NewWeighted(int64(workers + queueDepth)),
		run:        semaphore.NewWeighted(int64(workers)),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *Pool) Workers() int    { return p.workers }
func (p *Pool) QueueDepth() int { return p.queueDepth }

// TrySubmit admits task or returns ErrSaturated/ErrClosed immediately. The
// task's context is cancelled when the pool closes.
func (p *Pool) TrySubmit(task func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.admit.TryAcquire(1) {
		return ErrSaturated
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.admit.Release(1)
		if err := p.run.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.run.Release(1)
		if p.ctx.Err() != nil {
			return
		}
		task(p.ctx)
	}()
	return nil
}

// Close rejects further submissions, drops queued tasks and waits for
// running ones to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
