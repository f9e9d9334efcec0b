package session

import (
	"sync"

	"market_client/internal/core"
	apperrors "market_client/pkg/errors"
	"market_client/pkg/telemetry"
)

// Mailbox runs posted tasks one at a time, in arrival order, on a single goroutine.
// Every cache mutation, state transition and observer call of a session goes through it.
type Mailbox struct {
	owner  string
	tasks  chan func()
	done   chan struct{}
	logger core.ILogger

	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewMailbox creates a mailbox with the given queue buffer
func NewMailbox(owner string, buffer int, logger core.ILogger) *Mailbox {
	if buffer <= 0 {
		buffer = 256
	}
	return &Mailbox{
		owner:  owner,
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		logger: logger.WithField("component", "mailbox"),
	}
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (m *Mailbox) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.run()
}

func (m *Mailbox) run() {
	defer close(m.done)
	metrics := telemetry.GetGlobalMetrics()
	for task := range m.tasks {
		metrics.SetMailboxDepth(m.owner, int64(len(m.tasks)))
		m.execute(task)
	}
	metrics.SetMailboxDepth(m.owner, 0)
}

func (m *Mailbox) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("mailbox task panic recovered", "panic", r)
		}
	}()
	task()
}

// Post enqueues task without waiting for it. It may block while the queue is full.
// Must not be called from inside a task when the queue can fill up.
func (m *Mailbox) Post(task func()) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return apperrors.ErrMailboxClosed
	}
	m.tasks <- task
	return nil
}

// Do enqueues task and waits until the worker has run it.
// Calling Do from inside a task deadlocks.
func (m *Mailbox) Do(task func()) error {
	finished := make(chan struct{})
	if err := m.Post(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		select {
		case <-finished:
			return nil
		default:
			return apperrors.ErrMailboxClosed
		}
	}
}

// Close stops accepting tasks. Queued tasks still run; Done closes once they have.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.tasks)
	if !m.started {
		m.started = true
		go m.run()
	}
}

// Closed reports whether Close was called
func (m *Mailbox) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Done is closed after the worker drained the queue and exited
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Depth returns the number of queued tasks
func (m *Mailbox) Depth() int {
	return len(m.tasks)
}
