// Package worker drains queued hook batches on a pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tierboard/internal/domain/hook"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan hook.Batch
}

// Enqueuer is the producing side of the queue used by the pool.
type Enqueuer interface {
	Queue
	Enqueue(ctx context.Context, b hook.Batch) bool
	Close() error
}

// Worker processes batches until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)
	// Shutdown stops the worker after the batch in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker executes hook batches read from a Queue.
type InMemoryWorker struct {
	queue Queue
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(ctx, b)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, b hook.Batch) {
	if failed := hook.Execute(ctx, w.logger, b); failed > 0 {
		w.logger.Debug(ctx, "batch finished with failures",
			logger.String("batch_id", b.ID),
			logger.Int("failed", failed))
	}
	metrics.RecordWorkerProcessed()
}

// Pool manages multiple workers and implements hook.Runner.
type Pool struct {
	workers []*InMemoryWorker
	queue   Enqueuer

	mu      sync.Mutex
	started bool
	stopped bool

	logger logger.Logger
}

var _ hook.Runner = (*Pool)(nil)

// NewPool creates a new worker pool over q.
func NewPool(workerCount int, q Enqueuer, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, WithName("hook-worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(0)
	return p
}

// Start launches every worker. Later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Run queues b for asynchronous execution. When the pool is not running or
// the queue is full, b runs on the caller's goroutine.
func (p *Pool) Run(ctx context.Context, b hook.Batch) {
	p.mu.Lock()
	running := p.started && !p.stopped
	p.mu.Unlock()

	// Queued hooks outlive the request that produced them.
	detached := context.WithoutCancel(ctx)
	if running && p.queue.Enqueue(detached, b) {
		return
	}
	metrics.RecordQueueOverflow()
	p.logger.Debug(ctx, "running batch inline",
		logger.String("batch_id", b.ID),
		logger.String("op", b.Op))
	hook.Execute(detached, p.logger, b)
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
