package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market_client/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logging.NewNopLogger())
	t.Cleanup(pool.Stop)
	return pool
}

func TestWorkerPool_RunWaits(t *testing.T) {
	pool := newTestPool(t)

	var ran atomic.Bool
	err := pool.Run(context.Background(), func() {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestWorkerPool_RunContextExpires(t *testing.T) {
	pool := newTestPool(t)

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Run(ctx, func() { <-release })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "stopped"}, logging.NewNopLogger())
	pool.Stop()
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolStopped)
	assert.ErrorIs(t, pool.TrySubmit(func() {}), ErrPoolStopped)
	assert.ErrorIs(t, pool.HealthCheck(), ErrPoolStopped)
}

func TestWorkerPool_NonBlockingFull(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "tight", MaxWorkers: 1, MaxCapacity: 1, NonBlocking: true}, logging.NewNopLogger())
	release := make(chan struct{})
	t.Cleanup(func() {
		close(release)
		pool.Stop()
	})

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.Submit(func() { <-release }))

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolFull)
	assert.ErrorIs(t, pool.HealthCheck(), ErrPoolFull)
}

func TestWorkerPool_TrySubmitNeverWaits(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "blocking", MaxWorkers: 1, MaxCapacity: 1}, logging.NewNopLogger())
	release := make(chan struct{})
	t.Cleanup(func() {
		close(release)
		pool.Stop()
	})

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.TrySubmit(func() { <-release }))

	returned := make(chan error, 1)
	go func() { returned <- pool.TrySubmit(func() {}) }()
	select {
	case err := <-returned:
		assert.ErrorIs(t, err, ErrPoolFull)
	case <-time.After(time.Second):
		t.Fatal("TrySubmit blocked on a full pool")
	}
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	pool := newTestPool(t)

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(50), atomic.LoadInt64(&counter))
	assert.Equal(t, uint64(50), pool.Stats().Submitted)
	assert.NoError(t, pool.HealthCheck())
}

func BenchmarkWorkerPool_Run(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{Name: "bench", MaxWorkers: 10, MaxCapacity: 1000}, logging.NewNopLogger())
	defer pool.Stop()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.Run(ctx, func() {})
	}
}
