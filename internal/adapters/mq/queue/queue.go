// Package queue buffers post-commit hook batches for the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Batch is the payload flowing through the queue.
type Batch = hook.Batch

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch. It returns false when the queue is full or closed.
	Enqueue(ctx context.Context, b Batch) bool
	// Dequeue returns the channel batches arrive on. It is closed by Close
	// once drained.
	Dequeue(ctx context.Context) <-chan Batch
	// Len returns the current number of queued batches.
	Len(ctx context.Context) int
	// Close stops accepting batches.
	Close() error
	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches  chan Batch
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.batches = make(chan Batch, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a batch without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Batch) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		return false
	}
	select {
	case q.batches <- b:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.batches))
		return true
	default:
		return false
	}
}

// Dequeue returns the channel batches arrive on.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Batch {
	return q.batches
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.batches)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting batches. Queued batches stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.batches)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
