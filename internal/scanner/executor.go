package scanner

import (
	"context"
	"sync"
)

// Executor runs closures on the execution context that owns scanner state
// and surface mutation. Dispatch must preserve submission order and must not
// block on the closure itself. It returns false once the executor is closed.
type Executor interface {
	Dispatch(fn func()) bool
}

// MainQueue is an Executor backed by one goroutine draining a FIFO.
// Dispatch never blocks: the backlog is unbounded so closures can dispatch
// further work onto the same queue.
type MainQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	started bool
	done    chan struct{}
}

// NewMainQueue creates a stopped queue. Call Start once.
func NewMainQueue() *MainQueue {
	q := &MainQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start begins the worker goroutine. Safe to call multiple times.
func (q *MainQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.loop()
}

func (q *MainQueue) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending = append(q.pending, fn)
	q.cond.Signal()
	return true
}

// Sync runs fn on the queue and waits for it, or for ctx.
func (q *MainQueue) Sync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !q.Dispatch(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs what is already queued and waits for the
// worker to exit.
func (q *MainQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	started := q.started
	q.cond.Signal()
	q.mu.Unlock()

	if !started {
		close(q.done)
		return
	}
	<-q.done
}

func (q *MainQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}
