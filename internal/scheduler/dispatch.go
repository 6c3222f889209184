// Job dispatch logic for the scheduler tick.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aatumaykin/tickd/internal/hook"
	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
	"github.com/aatumaykin/tickd/internal/schedule"
)

// RunDue fires every enabled job whose next run is at or before now and
// returns the IDs dispatched, earliest due first. If the process missed a
// job's scheduled instant, the job fires exactly once on catch-up and then
// resumes its normal recurrence from now; missed occurrences are not
// back-filled. The whole job set is persisted once per call.
func (s *Service) RunDue(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.IncTick()

	nowMs := now.UnixMilli()
	var due []job.Job
	for _, j := range s.jobs {
		if j.Enabled && j.NextRunAtMs != nil && *j.NextRunAtMs <= nowMs {
			due = append(due, j)
		}
	}

	// Earliest due first; job ID breaks ties for determinism.
	sort.Slice(due, func(i, k int) bool {
		if *due[i].NextRunAtMs != *due[k].NextRunAtMs {
			return *due[i].NextRunAtMs < *due[k].NextRunAtMs
		}
		return due[i].ID < due[k].ID
	})

	dispatched := make([]string, 0, len(due))
	for i := range due {
		s.runJob(ctx, &due[i], now)
		s.jobs[due[i].ID] = due[i]
		dispatched = append(dispatched, due[i].ID)
	}

	if len(dispatched) > 0 {
		if err := s.store.Save(s.jobs); err != nil {
			// Dispatch already happened; keep running and retry the
			// persist on the next tick's save.
			s.logger.Error("failed to persist jobs after dispatch", err)
		}
	}

	return dispatched
}

// runJob executes a single due job and records the outcome on its state
func (s *Service) runJob(ctx context.Context, j *job.Job, now time.Time) {
	s.hooks.Trigger(ctx, hook.Event{
		Kind:        hook.EventBeforeRun,
		JobID:       j.ID,
		JobName:     j.Name,
		PayloadKind: j.Payload.Kind,
		Timestamp:   now,
	})

	began := time.Now()
	err := s.execute(ctx, j.Payload, j.ID)
	elapsed := time.Since(began)

	nowMs := now.UnixMilli()
	j.RunCount++
	j.LastRunAtMs = &nowMs

	if err != nil {
		msg := err.Error()
		j.LastStatus = job.StatusFailure
		j.LastError = &msg
		s.metrics.ObserveRun("failure", elapsed)

		s.logger.Error("job run failed", err,
			logger.Field{Key: "job_id", Value: j.ID},
			logger.Field{Key: "name", Value: j.Name},
			logger.Field{Key: "run_count", Value: j.RunCount})

		s.hooks.Trigger(ctx, hook.Event{
			Kind:        hook.EventRunFailed,
			JobID:       j.ID,
			JobName:     j.Name,
			PayloadKind: j.Payload.Kind,
			Timestamp:   now,
			Status:      job.StatusFailure,
			Error:       msg,
		})
	} else {
		j.LastStatus = job.StatusSuccess
		j.LastError = nil
		s.metrics.ObserveRun("success", elapsed)

		s.logger.Info("job run completed",
			logger.Field{Key: "job_id", Value: j.ID},
			logger.Field{Key: "name", Value: j.Name},
			logger.Field{Key: "duration", Value: elapsed},
			logger.Field{Key: "run_count", Value: j.RunCount})

		s.hooks.Trigger(ctx, hook.Event{
			Kind:        hook.EventAfterRun,
			JobID:       j.ID,
			JobName:     j.Name,
			PayloadKind: j.Payload.Kind,
			Timestamp:   now,
			Status:      job.StatusSuccess,
		})
	}

	// A failed run still reschedules; recurrence never halts on failure.
	// Exhausted one-shots come back nil and retire in place.
	next, nextErr := schedule.Next(j.Schedule, now, s.jobLocation(*j))
	if nextErr != nil {
		s.logger.Error("failed to reschedule job", nextErr,
			logger.Field{Key: "job_id", Value: j.ID})
		j.NextRunAtMs = nil
		return
	}
	if next == nil {
		j.NextRunAtMs = nil
		s.logger.Info("job retired",
			logger.Field{Key: "job_id", Value: j.ID},
			logger.Field{Key: "name", Value: j.Name})
		return
	}
	ms := next.UnixMilli()
	j.NextRunAtMs = &ms
}

// execute invokes the payload executor bounded by the per-job timeout.
// A timed out or panicking executor is recorded as a failure; the job is
// never left in a running state.
func (s *Service) execute(ctx context.Context, p job.Payload, jobID string) error {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("executor panic: %v", r)
			}
		}()
		done <- s.executor.Execute(cctx, p, jobID)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return fmt.Errorf("execution timed out after %s", s.cfg.JobTimeout)
	}
}
