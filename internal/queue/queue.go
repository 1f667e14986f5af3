// Package queue provides the bounded FIFO that links pipeline stages: blocking
// and non-blocking put/get, task-done/join accounting, and a two-phase
// shutdown so consumers can drain queued work before exiting.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrFull is returned by TryPut when the queue is at capacity.
	ErrFull = errors.New("queue: full")
	// ErrEmpty is returned by TryGet when the queue has no items.
	ErrEmpty = errors.New("queue: empty")
	// ErrShutdown signals that the queue no longer accepts or yields items.
	// Consumers treat it as the clean exit condition.
	ErrShutdown = errors.New("queue: shut down")
)

// Queue is a bounded FIFO safe for concurrent use. A maxSize of 0 means
// unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	allDone  *sync.Cond

	items      []T
	maxSize    int
	unfinished int
	down       bool
	immediate  bool
}

// New creates a queue holding at most maxSize items (0 = unbounded).
func New[T any](maxSize int) *Queue[T] {
	q := &Queue[T]{maxSize: maxSize}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.allDone = sync.NewCond(&q.mu)
	return q
}

// waitLocked blocks on c until signalled or ctx is cancelled. Must be called
// with q.mu held; returns holding it.
func (q *Queue[T]) waitLocked(ctx context.Context, c *sync.Cond) error {
	if ctx == nil || ctx.Done() == nil {
		c.Wait()
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		c.Broadcast()
		q.mu.Unlock()
	})
	defer stop()
	c.Wait()
	return ctx.Err()
}

// Put appends an item, blocking while the queue is full. Fails with
// ErrShutdown once Shutdown has been called.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.down {
			return ErrShutdown
		}
		if q.maxSize == 0 || len(q.items) < q.maxSize {
			q.putLocked(item)
			return nil
		}
		if err := q.waitLocked(ctx, q.notFull); err != nil {
			return err
		}
	}
}

// TryPut appends an item without blocking. Returns ErrFull or ErrShutdown.
func (q *Queue[T]) TryPut(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.down {
		return ErrShutdown
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrFull
	}
	q.putLocked(item)
	return nil
}

func (q *Queue[T]) putLocked(item T) {
	q.items = append(q.items, item)
	q.unfinished++
	q.notEmpty.Signal()
}

// Get removes and returns the oldest item, blocking while the queue is empty.
// After Shutdown, queued items are still yielded until the queue drains (or
// immediately stops yielding when shut down with immediate=true); then every
// call fails with ErrShutdown.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.immediate || (q.down && len(q.items) == 0) {
			return zero, ErrShutdown
		}
		if len(q.items) > 0 {
			return q.getLocked(), nil
		}
		if err := q.waitLocked(ctx, q.notEmpty); err != nil {
			return zero, err
		}
	}
}

// TryGet removes and returns the oldest item without blocking. Returns
// ErrEmpty or ErrShutdown.
func (q *Queue[T]) TryGet() (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.immediate || (q.down && len(q.items) == 0) {
		return zero, ErrShutdown
	}
	if len(q.items) == 0 {
		return zero, ErrEmpty
	}
	return q.getLocked(), nil
}

func (q *Queue[T]) getLocked() T {
	item := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return item
}

// TaskDone marks one previously gotten item as processed. Join unblocks once
// every item has been marked done.
func (q *Queue[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.allDone.Broadcast()
	}
}

// Join blocks until every item put on the queue has been marked done.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		if err := q.waitLocked(ctx, q.allDone); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops the queue accepting new items. With immediate=false queued
// items may still be drained by Get; with immediate=true queued items are
// dropped (and counted done) and blocked getters fail at once.
func (q *Queue[T]) Shutdown(immediate bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.down = true
	if immediate {
		q.immediate = true
		dropped := len(q.items)
		q.items = nil
		if dropped > 0 {
			q.unfinished -= dropped
			if q.unfinished <= 0 {
				q.unfinished = 0
				q.allDone.Broadcast()
			}
		}
	}
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Full reports whether the queue is at capacity. Always false when unbounded.
func (q *Queue[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize > 0 && len(q.items) >= q.maxSize
}
