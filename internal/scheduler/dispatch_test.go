package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/tickd/internal/hook"
	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/schedule"
	"github.com/aatumaykin/tickd/internal/store"
)

func TestRunDue_DispatchesDueJobOnce(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	j, err := svc.AddJob("ping foo", schedule.Every(time.Minute),
		job.Payload{Kind: job.PayloadTaskRun, TaskName: "foo"}, "")
	require.NoError(t, err)

	now := testBase.Add(time.Minute)
	dispatched := svc.RunDue(context.Background(), now)
	assert.Equal(t, []string{j.ID}, dispatched)
	assert.Equal(t, []string{j.ID}, exec.callIDs())

	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSuccess, got.LastStatus)
	assert.Nil(t, got.LastError)
	assert.Equal(t, int64(1), got.RunCount)
	require.NotNil(t, got.LastRunAtMs)
	assert.Equal(t, now.UnixMilli(), *got.LastRunAtMs)
	require.NotNil(t, got.NextRunAtMs)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), *got.NextRunAtMs)

	// Same instant again: the job is no longer due
	dispatched = svc.RunDue(context.Background(), now)
	assert.Empty(t, dispatched)
	assert.Len(t, exec.callIDs(), 1)
}

func TestRunDue_SkipsNotDueAndDisabled(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	due, err := svc.AddJob("due", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)
	_, err = svc.AddJob("later", schedule.Every(time.Hour), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)
	disabled, err := svc.AddJob("off", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)
	require.NoError(t, svc.DisableJob(disabled.ID))

	dispatched := svc.RunDue(context.Background(), testBase.Add(time.Minute))
	assert.Equal(t, []string{due.ID}, dispatched)
}

func TestRunDue_EarliestDueFirst(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	late, err := svc.AddJob("late", schedule.Every(2*time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)
	early, err := svc.AddJob("early", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	dispatched := svc.RunDue(context.Background(), testBase.Add(2*time.Minute))
	assert.Equal(t, []string{early.ID, late.ID}, dispatched)
	assert.Equal(t, []string{early.ID, late.ID}, exec.callIDs())
}

func TestRunDue_TieBrokenByJobID(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	var ids []string
	for i := 0; i < 4; i++ {
		j, err := svc.AddJob("twin", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	sort.Strings(ids)

	dispatched := svc.RunDue(context.Background(), testBase.Add(time.Minute))
	assert.Equal(t, ids, dispatched)
}

func TestRunDue_FailureRecordsAndReschedules(t *testing.T) {
	exec := &recordingExecutor{failWith: errors.New("delivery refused")}
	svc := newTestService(t, exec, testBase)

	j, err := svc.AddJob("flaky", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	now := testBase.Add(time.Minute)
	dispatched := svc.RunDue(context.Background(), now)
	assert.Equal(t, []string{j.ID}, dispatched)

	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailure, got.LastStatus)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "delivery refused")
	assert.Equal(t, int64(1), got.RunCount)
	assert.True(t, got.Enabled, "failing job stays enabled")

	// Failure does not halt recurrence
	require.NotNil(t, got.NextRunAtMs)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), *got.NextRunAtMs)

	// It keeps retrying on its normal schedule
	svc.RunDue(context.Background(), now.Add(time.Minute))
	got, err = svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RunCount)
}

func TestRunDue_SuccessClearsLastError(t *testing.T) {
	exec := &recordingExecutor{failWith: errors.New("boom")}
	svc := newTestService(t, exec, testBase)

	j, err := svc.AddJob("recovers", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	svc.RunDue(context.Background(), testBase.Add(time.Minute))

	exec.mu.Lock()
	exec.failWith = nil
	exec.mu.Unlock()

	svc.RunDue(context.Background(), testBase.Add(2*time.Minute))

	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSuccess, got.LastStatus)
	assert.Nil(t, got.LastError)
	assert.Equal(t, int64(2), got.RunCount)
}

func TestRunDue_ExecutorTimeout(t *testing.T) {
	// The sleeper ignores ctx on purpose: a well-behaved executor would
	// return the cancellation error instead of overrunning.
	exec := ExecutorFunc(func(ctx context.Context, p job.Payload, jobID string) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	log := testLogger(t)
	st := store.New(t.TempDir()+"/jobs.json", log)
	hooks := hook.NewRegistry(time.Second, log)

	svc, err := New(Config{
		DefaultTimezone: "UTC",
		TickInterval:    time.Second,
		JobTimeout:      50 * time.Millisecond,
	}, st, hooks, exec, log, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return testBase }

	j, err := svc.AddJob("slow", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	svc.RunDue(context.Background(), testBase.Add(time.Minute))

	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailure, got.LastStatus)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "timed out")
	require.NotNil(t, got.NextRunAtMs, "timed out job still reschedules")
}

func TestRunDue_ExecutorPanicRecordedAsFailure(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, p job.Payload, jobID string) error {
		panic("executor exploded")
	})
	svc := newTestService(t, exec, testBase)

	j, err := svc.AddJob("panics", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	svc.RunDue(context.Background(), testBase.Add(time.Minute))

	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailure, got.LastStatus)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "panic")
}

func TestRunDue_OneShotRetiresInPlace(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	fireAt := testBase.Add(time.Minute)
	j, err := svc.AddJob("once", schedule.At(fireAt.UnixMilli()),
		job.Payload{Kind: job.PayloadMessage, Message: "just once"}, "")
	require.NoError(t, err)

	dispatched := svc.RunDue(context.Background(), fireAt)
	assert.Equal(t, []string{j.ID}, dispatched)

	// Retired, not deleted: run history stays visible
	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextRunAtMs)
	assert.Equal(t, int64(1), got.RunCount)
	assert.Equal(t, job.StatusSuccess, got.LastStatus)

	dispatched = svc.RunDue(context.Background(), fireAt.Add(time.Hour))
	assert.Empty(t, dispatched)
	assert.Len(t, exec.callIDs(), 1)
}

func TestRunDue_CatchUpFiresOnce(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	j, err := svc.AddJob("missed", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	// The process slept through ten occurrences; catch-up fires once and
	// recurrence resumes from now.
	now := testBase.Add(10 * time.Minute)
	dispatched := svc.RunDue(context.Background(), now)
	assert.Equal(t, []string{j.ID}, dispatched)

	got, err := svc.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RunCount, "missed occurrences are not back-filled")
	require.NotNil(t, got.NextRunAtMs)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), *got.NextRunAtMs)
}

func TestRunDue_EveryIntervalProperty(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	interval := 90 * time.Second
	j, err := svc.AddJob("steady", schedule.Every(interval), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	now := testBase
	for i := 0; i < 5; i++ {
		now = now.Add(interval)
		dispatched := svc.RunDue(context.Background(), now)
		require.Equal(t, []string{j.ID}, dispatched)

		got, err := svc.GetJob(j.ID)
		require.NoError(t, err)
		require.NotNil(t, got.NextRunAtMs)
		require.NotNil(t, got.LastRunAtMs)
		assert.Equal(t, interval.Milliseconds(), *got.NextRunAtMs-*got.LastRunAtMs)
	}
}

func TestRunDue_HookEventsEmitted(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	var events []hook.Event
	for _, kind := range []hook.EventKind{hook.EventBeforeRun, hook.EventAfterRun, hook.EventRunFailed} {
		svc.hooks.Register(kind, func(ctx context.Context, ev hook.Event) error {
			events = append(events, ev)
			return nil
		})
	}

	j, err := svc.AddJob("observed", schedule.Every(time.Minute),
		job.Payload{Kind: job.PayloadTaskRun, TaskName: "audit"}, "")
	require.NoError(t, err)

	now := testBase.Add(time.Minute)
	svc.RunDue(context.Background(), now)

	require.Len(t, events, 2)
	assert.Equal(t, hook.EventBeforeRun, events[0].Kind)
	assert.Equal(t, j.ID, events[0].JobID)
	assert.Equal(t, job.PayloadTaskRun, events[0].PayloadKind)
	assert.Equal(t, now, events[0].Timestamp)

	assert.Equal(t, hook.EventAfterRun, events[1].Kind)
	assert.Equal(t, job.StatusSuccess, events[1].Status)

	// Failure path raises run_failed with outcome detail
	events = events[:0]
	exec.mu.Lock()
	exec.failWith = errors.New("no route")
	exec.mu.Unlock()

	svc.RunDue(context.Background(), now.Add(time.Minute))
	require.Len(t, events, 2)
	assert.Equal(t, hook.EventRunFailed, events[1].Kind)
	assert.Equal(t, job.StatusFailure, events[1].Status)
	assert.Contains(t, events[1].Error, "no route")
}

func TestRunDue_HookErrorDoesNotStopDispatch(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	var witnessed atomic.Int32
	svc.hooks.Register(hook.EventBeforeRun, func(ctx context.Context, ev hook.Event) error {
		return errors.New("observer always fails")
	})
	svc.hooks.Register(hook.EventBeforeRun, func(ctx context.Context, ev hook.Event) error {
		witnessed.Add(1)
		return nil
	})

	_, err := svc.AddJob("one", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)
	_, err = svc.AddJob("two", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	dispatched := svc.RunDue(context.Background(), testBase.Add(time.Minute))
	assert.Len(t, dispatched, 2, "a failing observer must not prevent dispatch")
	assert.Equal(t, int32(2), witnessed.Load(), "later callbacks must still run")
}

func TestRunDue_PersistsBatchOncePerTick(t *testing.T) {
	exec := &recordingExecutor{}
	svc := newTestService(t, exec, testBase)

	j1, err := svc.AddJob("one", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)
	j2, err := svc.AddJob("two", schedule.Every(time.Minute), job.Payload{Kind: job.PayloadMessage}, "")
	require.NoError(t, err)

	svc.RunDue(context.Background(), testBase.Add(time.Minute))

	// A fresh load from the same store sees the post-dispatch state
	loaded, err := svc.store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded[j1.ID].RunCount)
	assert.Equal(t, int64(1), loaded[j2.ID].RunCount)
	assert.Equal(t, job.StatusSuccess, loaded[j1.ID].LastStatus)
}
