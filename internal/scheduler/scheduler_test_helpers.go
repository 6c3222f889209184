package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/tickd/internal/hook"
	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
	"github.com/aatumaykin/tickd/internal/store"
)

// testLogger creates a quiet logger for scheduler tests
func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// recordingExecutor captures dispatched job IDs in order and can be told
// to fail or stall
type recordingExecutor struct {
	mu    sync.Mutex
	calls []string

	failWith error
	delay    time.Duration
}

func (e *recordingExecutor) Execute(ctx context.Context, p job.Payload, jobID string) error {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	e.calls = append(e.calls, jobID)
	e.mu.Unlock()
	return e.failWith
}

func (e *recordingExecutor) callIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// newTestService builds a service with a temp store and a fixed test clock
func newTestService(t *testing.T, exec Executor, at time.Time) *Service {
	t.Helper()
	return newTestServiceAt(t, filepath.Join(t.TempDir(), "jobs.json"), exec, at)
}

// newTestServiceAt builds a service against a specific store path, for
// restart scenarios
func newTestServiceAt(t *testing.T, storePath string, exec Executor, at time.Time) *Service {
	t.Helper()
	log := testLogger(t)
	st := store.New(storePath, log)
	hooks := hook.NewRegistry(100*time.Millisecond, log)

	svc, err := New(Config{
		DefaultTimezone: "UTC",
		TickInterval:    time.Second,
		JobTimeout:      time.Second,
	}, st, hooks, exec, log, nil)
	require.NoError(t, err)

	svc.now = func() time.Time { return at }
	return svc
}
