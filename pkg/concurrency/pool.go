package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"market_client/internal/core"

	"github.com/alitto/pond"
)

var (
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrPoolFull    = errors.New("worker pool full")
)

// PoolConfig sizes a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int // queued tasks beyond the running workers
	IdleTimeout time.Duration
	// NonBlocking makes Submit fail with ErrPoolFull instead of waiting for queue space
	NonBlocking bool
}

// Stats is a snapshot of pool activity
type Stats struct {
	Running    int
	Idle       int
	Waiting    uint64
	Submitted  uint64
	Successful uint64
	Failed     uint64
}

// WorkerPool bounds the number of concurrent remote gateway calls
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger core.ILogger

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 64
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Minute
	}

	log := logger.WithFields(map[string]interface{}{"component": "worker_pool", "pool": cfg.Name})
	return &WorkerPool{
		pool: pond.New(cfg.MaxWorkers, cfg.MaxCapacity,
			pond.MinWorkers(1),
			pond.IdleTimeout(cfg.IdleTimeout),
			pond.Strategy(pond.Balanced()),
			pond.PanicHandler(func(p interface{}) {
				log.Error("pool task panic recovered", "panic", p)
			}),
		),
		config: cfg,
		logger: log,
	}
}

// Submit queues task. It blocks while the queue is full unless the pool is NonBlocking.
func (wp *WorkerPool) Submit(task func()) error {
	if wp.config.NonBlocking {
		return wp.TrySubmit(task)
	}
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}
	wp.pool.Submit(task)
	return nil
}

// TrySubmit queues task only when there is room, and never waits
func (wp *WorkerPool) TrySubmit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}
	if !wp.pool.TrySubmit(task) {
		return fmt.Errorf("%w: %s holds %d tasks", ErrPoolFull, wp.config.Name, wp.config.MaxCapacity)
	}
	return nil
}

// Run submits task and blocks until it completes or ctx is done.
// A task abandoned on ctx expiry still runs to completion on the pool.
func (wp *WorkerPool) Run(ctx context.Context, task func()) error {
	done := make(chan struct{})
	if err := wp.Submit(func() {
		defer close(done)
		task()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new tasks and waits for queued ones
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.mu.Unlock()

	wp.pool.StopAndWait()
	wp.logger.Debug("worker pool stopped", "stats", wp.Stats())
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Running:    wp.pool.RunningWorkers(),
		Idle:       wp.pool.IdleWorkers(),
		Waiting:    wp.pool.WaitingTasks(),
		Submitted:  wp.pool.SubmittedTasks(),
		Successful: wp.pool.SuccessfulTasks(),
		Failed:     wp.pool.FailedTasks(),
	}
}

// HealthCheck fails once the pool is stopped or its queue is full
func (wp *WorkerPool) HealthCheck() error {
	wp.mu.RLock()
	stopped := wp.stopped
	wp.mu.RUnlock()
	if stopped {
		return ErrPoolStopped
	}
	if waiting := wp.pool.WaitingTasks(); waiting >= uint64(wp.config.MaxCapacity) {
		return fmt.Errorf("%w: %d tasks waiting", ErrPoolFull, waiting)
	}
	return nil
}
