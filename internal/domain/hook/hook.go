// Package hook runs best-effort side effects after a state change commits.
//
// A hook never rolls anything back. Its failure is logged and counted and
// the remaining hooks of the batch still run.
package hook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

// Func is the body of a hook.
type Func func(ctx context.Context) error

// Hook is a named post-commit action.
type Hook struct {
	Name string
	Fn   Func
}

// Batch is an ordered list of hooks produced by one committed operation.
type Batch struct {
	ID string
	// Op names the operation that produced the batch, for logs.
	Op    string
	Hooks []Hook
}

// NewBatch creates a batch with a fresh id.
func NewBatch(op string, hooks ...Hook) Batch {
	return Batch{ID: uuid.NewString(), Op: op, Hooks: hooks}
}

// Add appends a hook unless fn is nil.
func (b *Batch) Add(name string, fn Func) {
	if fn == nil {
		return
	}
	b.Hooks = append(b.Hooks, Hook{Name: name, Fn: fn})
}

// Runner delivers batches, synchronously or not.
type Runner interface {
	Run(ctx context.Context, b Batch)
}

// Execute runs the hooks of b in order and returns how many failed.
func Execute(ctx context.Context, log logger.Logger, b Batch) int {
	failed := 0
	for _, h := range b.Hooks {
		start := time.Now()
		err := call(ctx, h)
		ms := float64(time.Since(start).Microseconds()) / 1000
		metrics.RecordHookRun(h.Name, err == nil, ms)
		if err != nil {
			failed++
			log.Warn(ctx, "hook failed",
				logger.String("batch_id", b.ID),
				logger.String("op", b.Op),
				logger.String("hook", h.Name),
				logger.Error(err))
		}
	}
	return failed
}

func call(ctx context.Context, h Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s panicked: %v", h.Name, r)
		}
	}()
	return h.Fn(ctx)
}

// Inline runs batches on the caller's goroutine.
type Inline struct {
	log logger.Logger
}

// NewInline creates an Inline runner. A nil logger uses the global one.
func NewInline(log logger.Logger) *Inline {
	if log == nil {
		log = logger.Get().Named("hook")
	}
	return &Inline{log: log}
}

// Run executes b immediately.
func (r *Inline) Run(ctx context.Context, b Batch) {
	Execute(ctx, r.log, b)
}
