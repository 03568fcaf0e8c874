package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(2, 8, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := pool.Submit(Job{Run: func(ctx context.Context) {
			atomic.AddInt32(&ran, 1)
			wg.Done()
		}})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestWorkerPoolBoundedConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, 16, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(Job{Run: func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&current, -1)
		}})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestWorkerPoolRejectsWhenQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	block := make(chan struct{})

	// Occupy the single worker, then fill the queue.
	require.NoError(t, pool.Submit(Job{Run: func(ctx context.Context) { <-block }}))

	// The worker may not have picked the first job up yet, so allow one
	// queued job before expecting rejection.
	var rejected bool
	for i := 0; i < 3; i++ {
		if err := pool.Submit(Job{Run: func(ctx context.Context) {}}); err != nil {
			rejected = true
			assert.Contains(t, err.Error(), "queue is full")
			break
		}
	}
	assert.True(t, rejected)

	close(block)
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(1, 4, testLogger())
	pool.Start(context.Background())
	pool.Stop()

	err := pool.Submit(Job{Run: func(ctx context.Context) {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}

func TestWorkerPoolStopDrainsQueuedJobs(t *testing.T) {
	pool := NewWorkerPool(1, 8, testLogger())
	pool.Start(context.Background())

	var ran int32
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(Job{Run: func(ctx context.Context) {
			atomic.AddInt32(&ran, 1)
		}}))
	}

	pool.Stop()
	assert.Equal(t, int32(4), atomic.LoadInt32(&ran))
}

func TestWorkerPoolDelayElapsesOnWorker(t *testing.T) {
	pool := NewWorkerPool(1, 4, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan time.Time, 1)
	start := time.Now()
	require.NoError(t, pool.Submit(Job{
		Delay: 50 * time.Millisecond,
		Run:   func(ctx context.Context) { done <- time.Now() },
	}))

	// Submit returns immediately; the delay happens on the worker.
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	select {
	case finished := <-done:
		assert.GreaterOrEqual(t, finished.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job never ran")
	}
}

func TestWorkerPoolContextCancelSkipsDelayedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(1, 4, testLogger())
	pool.Start(ctx)

	var ran int32
	require.NoError(t, pool.Submit(Job{
		Delay: time.Hour,
		Run:   func(ctx context.Context) { atomic.AddInt32(&ran, 1) },
	}))

	time.Sleep(20 * time.Millisecond)
	cancel()
	pool.Stop()

	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestWorkerPoolStartIdempotent(t *testing.T) {
	pool := NewWorkerPool(2, 4, testLogger())
	pool.Start(context.Background())
	pool.Start(context.Background())
	pool.Stop()
}
