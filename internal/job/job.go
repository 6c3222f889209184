// Package job defines the persisted job record, its payload, and run state.
package job

import (
	"errors"
	"fmt"

	"github.com/aatumaykin/tickd/internal/schedule"
)

// ErrInvalidPayload is returned when a payload has an unknown kind or is
// missing required parameters.
var ErrInvalidPayload = errors.New("invalid payload")

// Status is the outcome of a job's most recent dispatch
type Status string

const (
	// StatusNeverRun means the job has not been dispatched yet
	StatusNeverRun Status = "never_run"
	// StatusSuccess means the last dispatch completed without error
	StatusSuccess Status = "success"
	// StatusFailure means the last dispatch failed or timed out
	StatusFailure Status = "failure"
)

// PayloadKind identifies which external executor handles a job
type PayloadKind string

const (
	// PayloadMessage delivers free-text content
	PayloadMessage PayloadKind = "message"
	// PayloadTaskRun invokes a named task with optional arguments
	PayloadTaskRun PayloadKind = "task_run"
)

// Payload describes what a job does when it fires. The scheduler never
// interprets payload content; it is handed opaquely to the executor.
type Payload struct {
	Kind     PayloadKind       `json:"kind"`
	Message  string            `json:"message,omitempty"`
	TaskName string            `json:"task_name,omitempty"`
	TaskArgs map[string]string `json:"task_args,omitempty"`
}

// Validate checks that the payload kind is known and its required
// parameters are present
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadMessage:
		return nil
	case PayloadTaskRun:
		if p.TaskName == "" {
			return fmt.Errorf("%w: task_run requires task_name", ErrInvalidPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
	}
}

// Job is a persisted unit of scheduled work
type Job struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Schedule schedule.Schedule `json:"schedule"`
	Payload  Payload           `json:"payload"`
	Enabled  bool              `json:"enabled"`
	Timezone string            `json:"timezone,omitempty"` // per-job IANA override, empty means service default

	// Run state, mutated only by the scheduler.
	NextRunAtMs *int64  `json:"next_run_at_ms,omitempty"` // nil means the job will never fire again
	LastRunAtMs *int64  `json:"last_run_at_ms,omitempty"`
	LastStatus  Status  `json:"last_status,omitempty"`
	LastError   *string `json:"last_error,omitempty"`
	RunCount    int64   `json:"run_count"`
}

// Clone returns a deep copy of the job, safe to hand to callers and hooks
func (j Job) Clone() Job {
	c := j
	if j.Payload.TaskArgs != nil {
		args := make(map[string]string, len(j.Payload.TaskArgs))
		for k, v := range j.Payload.TaskArgs {
			args[k] = v
		}
		c.Payload.TaskArgs = args
	}
	if j.NextRunAtMs != nil {
		v := *j.NextRunAtMs
		c.NextRunAtMs = &v
	}
	if j.LastRunAtMs != nil {
		v := *j.LastRunAtMs
		c.LastRunAtMs = &v
	}
	if j.LastError != nil {
		v := *j.LastError
		c.LastError = &v
	}
	return c
}
