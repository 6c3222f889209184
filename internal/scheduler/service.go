// Package scheduler orchestrates durable recurring jobs. The Service owns
// the in-memory job set backed by the job store, exposes job CRUD, and runs
// the dispatch loop that fires due jobs through an external payload executor
// while raising lifecycle events through the hook registry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/tickd/internal/hook"
	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
	"github.com/aatumaykin/tickd/internal/schedule"
	"github.com/aatumaykin/tickd/internal/store"
)

// ErrJobNotFound is returned by CRUD operations on an unknown job ID
var ErrJobNotFound = errors.New("job not found")

// Executor runs a job's payload when it fires. It is supplied by the host
// application; the scheduler treats it as an opaque capability and does not
// retry beyond the normal next-tick rescheduling.
type Executor interface {
	Execute(ctx context.Context, p job.Payload, jobID string) error
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, p job.Payload, jobID string) error

func (f ExecutorFunc) Execute(ctx context.Context, p job.Payload, jobID string) error {
	return f(ctx, p, jobID)
}

// Config holds the scheduler's runtime settings
type Config struct {
	DefaultTimezone string        // IANA name used when a job has no override
	TickInterval    time.Duration // dispatch loop period
	JobTimeout      time.Duration // per-job executor bound
}

// Service manages job scheduling and dispatch. All access to the job set,
// including the tick, is serialized through a single mutex so CRUD from
// other goroutines cannot race a load-modify-save cycle.
type Service struct {
	cfg      Config
	loc      *time.Location
	store    *store.Store
	hooks    *hook.Registry
	executor Executor
	logger   *logger.Logger
	metrics  *Metrics

	// now is stubbed in tests
	now func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	ticker  *time.Ticker
	started bool

	mu   sync.Mutex
	jobs map[string]job.Job
}

// New creates a Service and loads persisted jobs from the store.
// A corrupt store file fails startup rather than silently dropping jobs.
func New(cfg Config, st *store.Store, hooks *hook.Registry, executor Executor, log *logger.Logger, metrics *Metrics) (*Service, error) {
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone %q: %w", cfg.DefaultTimezone, err)
	}

	jobs, err := st.Load()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		loc:      loc,
		store:    st,
		hooks:    hooks,
		executor: executor,
		logger:   log,
		metrics:  metrics,
		now:      time.Now,
		jobs:     jobs,
	}
	s.metrics.SetJobs(len(jobs))

	log.Info("scheduler initialized",
		logger.Field{Key: "jobs", Value: len(jobs)},
		logger.Field{Key: "timezone", Value: cfg.DefaultTimezone},
		logger.Field{Key: "store", Value: st.Path()})

	return s, nil
}

// Start launches the dispatch loop. It returns immediately; the loop runs
// until the context is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.ticker = time.NewTicker(s.cfg.TickInterval)
	go func() {
		for {
			select {
			case <-s.ctx.Done():
				s.ticker.Stop()
				s.logger.Info("scheduler stopped")
				return
			case <-s.ticker.C:
				s.RunDue(s.ctx, s.now())
			}
		}
	}()

	s.logger.Info("scheduler started",
		logger.Field{Key: "tick_interval", Value: s.cfg.TickInterval})

	return nil
}

// Stop stops the dispatch loop gracefully
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("scheduler not started")
	}

	s.cancel()
	s.started = false
	return nil
}

// AddJob validates the schedule, assigns a fresh ID, computes the initial
// next run against current time, persists, and returns the created record.
func (s *Service) AddJob(name string, sched schedule.Schedule, p job.Payload, timezone string) (job.Job, error) {
	if err := sched.Validate(); err != nil {
		return job.Job{}, err
	}
	if err := p.Validate(); err != nil {
		return job.Job{}, err
	}

	loc := s.loc
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return job.Job{}, fmt.Errorf("%w: unknown timezone %q", schedule.ErrInvalidSchedule, timezone)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next, err := schedule.Next(sched, now, loc)
	if err != nil {
		return job.Job{}, err
	}

	j := job.Job{
		ID:         uuid.NewString(),
		Name:       name,
		Schedule:   sched,
		Payload:    p,
		Enabled:    true,
		Timezone:   timezone,
		LastStatus: job.StatusNeverRun,
	}
	if next != nil {
		ms := next.UnixMilli()
		j.NextRunAtMs = &ms
	}

	s.jobs[j.ID] = j
	if err := s.store.Save(s.jobs); err != nil {
		delete(s.jobs, j.ID)
		return job.Job{}, err
	}
	s.metrics.SetJobs(len(s.jobs))

	s.logger.Info("job added",
		logger.Field{Key: "job_id", Value: j.ID},
		logger.Field{Key: "name", Value: j.Name},
		logger.Field{Key: "schedule_kind", Value: sched.Kind},
		logger.Field{Key: "next_run_at_ms", Value: j.NextRunAtMs})

	return j.Clone(), nil
}

// Update describes a partial job mutation. Nil fields are left unchanged.
type Update struct {
	Name     *string
	Schedule *schedule.Schedule
	Payload  *job.Payload
	Timezone *string
}

// UpdateJob rewrites job fields and recomputes the next run when the
// schedule or timezone changed
func (s *Service) UpdateJob(id string, upd Update) (job.Job, error) {
	if upd.Schedule != nil {
		if err := upd.Schedule.Validate(); err != nil {
			return job.Job{}, err
		}
	}
	if upd.Payload != nil {
		if err := upd.Payload.Validate(); err != nil {
			return job.Job{}, err
		}
	}
	if upd.Timezone != nil && *upd.Timezone != "" {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return job.Job{}, fmt.Errorf("%w: unknown timezone %q", schedule.ErrInvalidSchedule, *upd.Timezone)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return job.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	if upd.Name != nil {
		j.Name = *upd.Name
	}
	if upd.Payload != nil {
		j.Payload = *upd.Payload
	}
	reschedule := false
	if upd.Schedule != nil {
		j.Schedule = *upd.Schedule
		reschedule = true
	}
	if upd.Timezone != nil {
		j.Timezone = *upd.Timezone
		reschedule = true
	}

	if reschedule && j.Enabled {
		s.recomputeNext(&j, s.now())
	}

	s.jobs[id] = j
	if err := s.store.Save(s.jobs); err != nil {
		return job.Job{}, err
	}

	s.logger.Info("job updated", logger.Field{Key: "job_id", Value: id})

	return j.Clone(), nil
}

// RemoveJob deletes a job from the scheduler and the store
func (s *Service) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	delete(s.jobs, id)
	if err := s.store.Save(s.jobs); err != nil {
		return err
	}
	s.metrics.SetJobs(len(s.jobs))

	s.logger.Info("job removed", logger.Field{Key: "job_id", Value: id})
	return nil
}

// EnableJob re-enables a job and recomputes its next run from now
func (s *Service) EnableJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	j.Enabled = true
	s.recomputeNext(&j, s.now())
	s.jobs[id] = j
	if err := s.store.Save(s.jobs); err != nil {
		return err
	}

	s.logger.Info("job enabled",
		logger.Field{Key: "job_id", Value: id},
		logger.Field{Key: "next_run_at_ms", Value: j.NextRunAtMs})
	return nil
}

// DisableJob disables a job; it stays in the store but never fires
func (s *Service) DisableJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	j.Enabled = false
	j.NextRunAtMs = nil
	s.jobs[id] = j
	if err := s.store.Save(s.jobs); err != nil {
		return err
	}

	s.logger.Info("job disabled", logger.Field{Key: "job_id", Value: id})
	return nil
}

// GetJob retrieves a snapshot of a job by ID
func (s *Service) GetJob(id string) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return job.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.Clone(), nil
}

// ListJobs returns a snapshot of all jobs, ordered by ID
func (s *Service) ListJobs() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Clone())
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

// recomputeNext updates the job's next run relative to ref. A schedule that
// will never fire again leaves the job retired with a nil next run.
func (s *Service) recomputeNext(j *job.Job, ref time.Time) {
	next, err := schedule.Next(j.Schedule, ref, s.jobLocation(*j))
	if err != nil {
		// Schedules are validated on the way in, so this is unexpected.
		s.logger.Error("failed to compute next run", err,
			logger.Field{Key: "job_id", Value: j.ID})
		j.NextRunAtMs = nil
		return
	}
	if next == nil {
		j.NextRunAtMs = nil
		return
	}
	ms := next.UnixMilli()
	j.NextRunAtMs = &ms
}

// jobLocation resolves a job's timezone override, falling back to the
// service default when absent or no longer loadable
func (s *Service) jobLocation(j job.Job) *time.Location {
	if j.Timezone == "" {
		return s.loc
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		s.logger.Warn("job timezone not loadable, using default",
			logger.Field{Key: "job_id", Value: j.ID},
			logger.Field{Key: "timezone", Value: j.Timezone})
		return s.loc
	}
	return loc
}
