// Package memory provides the in-process item queue that feeds the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

// Queue is a bounded in-memory FIFO with context-aware operations.
type Queue struct {
	ch   chan crawler.ItemReference
	done chan struct{}

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan crawler.ItemReference, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes an item into the queue, blocking while it is full. It fails once
// the queue is closed or the context ends.
func (q *Queue) Enqueue(ctx context.Context, item crawler.ItemReference) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return crawler.ErrQueueClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. Items enqueued before
// Close are still delivered; afterwards crawler.ErrQueueClosed is returned.
func (q *Queue) Dequeue(ctx context.Context) (crawler.ItemReference, error) {
	select {
	case <-ctx.Done():
		return crawler.ItemReference{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawler.ItemReference{}, crawler.ErrQueueClosed
		}
		return item, nil
	}
}

// Close stops accepting items. Blocked producers are released with crawler.ErrQueueClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.closeMu.Lock()
		defer q.closeMu.Unlock()
		q.closed = true
		close(q.ch)
	})
}

// Len reports how many items are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}
