package workpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrySubmitRejectsWhenFull(t *testing.T) {
	p := New(2, 1)
	defer p.Close()

	release := make(chan struct{})
	var ran atomic.Int32
	task := func(context.Context) {
		<-release
		ran.Add(1)
	}

	require.NoError(t, p.TrySubmit(task))
	require.NoError(t, p.TrySubmit(task))
	require.NoError(t, p.TrySubmit(task))
	require.ErrorIs(t, p.TrySubmit(task), ErrSaturated)

	close(release)
	require.Eventually(t, func() bool { return ran.Load() == 3 }, time.Second, 5*time.Millisecond)

	// Capacity is returned once tasks finish.
	require.Eventually(t, func() bool { return p.TrySubmit(func(context.Context) {}) == nil }, time.Second, 5*time.Millisecond)
}

func TestConcurrencyNeverExceedsWorkers(t *testing.T) {
	p := New(3, 20)
	defer p.Close()

	var inFlight, peak, done atomic.Int32
	for range 20 {
		require.NoError(t, p.TrySubmit(func(context.Context) {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			done.Add(1)
		}))
	}
	require.Eventually(t, func() bool { return done.Load() == 20 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestCloseCancelsQueuedTasks(t *testing.T) {
	p := New(1, 1)

	started := make(chan struct{})
	var queuedRan atomic.Bool
	require.NoError(t, p.TrySubmit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	require.NoError(t, p.TrySubmit(func(context.Context) { queuedRan.Store(true) }))

	p.Close()
	p.Close()
	assert.False(t, queuedRan.Load())
	assert.ErrorIs(t, p.TrySubmit(func(context.Context) {}), ErrClosed)
}

func TestNewClampsArguments(t *testing.T) {
	p := New(0, -1)
	defer p.Close()
	assert.Equal(t, 1, p.Workers())
	assert.Equal(t, 0, p.QueueDepth())
}
