// Package uiqueue carries callbacks from worker goroutines to the single
// goroutine that owns UI state.
package uiqueue

import (
	"context"
	"sync"
)

// Queue is a FIFO of deferred tasks. Post may be called from any goroutine;
// Drain must only be called by the owning goroutine.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
	ready chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Post appends fn and wakes the owner.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after Post. A single signal may cover many tasks.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain runs every queued task in order, including tasks posted by tasks
// being drained, and returns how many ran.
func (q *Queue) Drain() int {
	ran := 0
	for {
		q.mu.Lock()
		batch := q.tasks
		q.tasks = nil
		q.mu.Unlock()
		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
			ran++
		}
	}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Wait blocks until a task is posted or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	if q.Len() > 0 {
		return nil
	}
	select {
	case <-q.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
