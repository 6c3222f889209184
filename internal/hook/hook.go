// Package hook implements the scheduler's lifecycle event registry.
// Observers register callbacks for named events and are notified in
// registration order. Dispatch is fire-and-forget: each callback runs
// under a per-call timeout, panics are recovered, and errors are logged
// but never propagated, so one misbehaving observer cannot affect
// scheduling correctness or other observers.
package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
)

// EventKind names a scheduler lifecycle event
type EventKind string

const (
	// EventBeforeRun fires just before a job's payload is executed
	EventBeforeRun EventKind = "before_run"
	// EventAfterRun fires after a job's payload executed successfully
	EventAfterRun EventKind = "after_run"
	// EventRunFailed fires after a job's payload failed or timed out
	EventRunFailed EventKind = "run_failed"
)

// Event is the read-only description of a lifecycle event handed to
// callbacks. Callbacks receive a copy and cannot mutate scheduler state.
type Event struct {
	Kind        EventKind
	JobID       string
	JobName     string
	PayloadKind job.PayloadKind
	Timestamp   time.Time

	// Outcome detail, set for after_run and run_failed.
	Status job.Status
	Error  string
}

// Callback observes a lifecycle event. It may block on I/O; the registry
// bounds every invocation with its per-call timeout via ctx, and a callback
// that outlives the deadline degrades to a dropped notification.
type Callback func(ctx context.Context, ev Event) error

// Registry maps event kinds to ordered callback lists. It is created once
// at service startup and owned by the scheduler; there is no package-level
// state.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[EventKind][]Callback
	timeout   time.Duration
	logger    *logger.Logger
}

// NewRegistry creates a registry with the given per-callback timeout
func NewRegistry(timeout time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		callbacks: make(map[EventKind][]Callback),
		timeout:   timeout,
		logger:    log,
	}
}

// Register adds a callback for the given event kind. Callbacks for the
// same kind are invoked in registration order.
func (r *Registry) Register(kind EventKind, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[kind] = append(r.callbacks[kind], cb)
}

// Trigger invokes every callback registered for the event's kind.
// It never fails and never blocks the caller beyond the per-callback
// timeout multiplied by the number of callbacks.
func (r *Registry) Trigger(ctx context.Context, ev Event) {
	r.mu.RLock()
	cbs := make([]Callback, len(r.callbacks[ev.Kind]))
	copy(cbs, r.callbacks[ev.Kind])
	r.mu.RUnlock()

	for i, cb := range cbs {
		r.invoke(ctx, ev, i, cb)
	}
}

// invoke runs a single callback with the registry timeout, recovering
// panics and absorbing errors
func (r *Registry) invoke(ctx context.Context, ev Event, idx int, cb Callback) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- cb(cctx, ev)
	}()

	select {
	case err := <-done:
		if err != nil {
			r.logger.Error("hook callback failed", err,
				logger.Field{Key: "event", Value: ev.Kind},
				logger.Field{Key: "job_id", Value: ev.JobID},
				logger.Field{Key: "callback_index", Value: idx})
		}
	case <-cctx.Done():
		// The callback keeps running in its goroutine but the scheduler
		// moves on; its eventual result is discarded.
		r.logger.Warn("hook callback timed out",
			logger.Field{Key: "event", Value: ev.Kind},
			logger.Field{Key: "job_id", Value: ev.JobID},
			logger.Field{Key: "callback_index", Value: idx},
			logger.Field{Key: "timeout", Value: r.timeout})
	}
}
