// Package schedule defines job recurrence rules and computes next execution
// times. A Schedule is a tagged union of three kinds: a one-shot absolute
// timestamp ("at"), a fixed interval ("every"), or a cron expression ("cron").
// Cron expressions use robfig/cron/v3 and are evaluated in the job's timezone.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a schedule cannot be parsed or has
// out-of-range parameters.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Kind identifies the recurrence rule of a schedule
type Kind string

const (
	// KindAt fires once at an absolute timestamp
	KindAt Kind = "at"
	// KindEvery fires repeatedly at a fixed interval
	KindEvery Kind = "every"
	// KindCron fires at each instant matching a cron expression
	KindCron Kind = "cron"
)

// Schedule is the recurrence rule attached to a job. Exactly one of the
// parameter fields is meaningful, selected by Kind.
type Schedule struct {
	Kind    Kind   `json:"kind"`
	AtMs    int64  `json:"at_ms,omitempty"`    // milliseconds since epoch, KindAt only
	EveryMs int64  `json:"every_ms,omitempty"` // interval in milliseconds, KindEvery only
	Expr    string `json:"expr,omitempty"`     // cron expression, KindCron only
}

// At returns a one-shot schedule firing at the given epoch milliseconds
func At(ms int64) Schedule {
	return Schedule{Kind: KindAt, AtMs: ms}
}

// Every returns a fixed-interval schedule with the given period
func Every(interval time.Duration) Schedule {
	return Schedule{Kind: KindEvery, EveryMs: interval.Milliseconds()}
}

// Cron returns a cron-expression schedule
func Cron(expr string) Schedule {
	return Schedule{Kind: KindCron, Expr: expr}
}

// parser accepts standard five-field expressions plus an optional leading
// seconds field.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Validate checks that the schedule is well-formed
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindAt:
		if s.AtMs <= 0 {
			return fmt.Errorf("%w: at timestamp must be positive, got %d", ErrInvalidSchedule, s.AtMs)
		}
	case KindEvery:
		if s.EveryMs <= 0 {
			return fmt.Errorf("%w: every interval must be positive, got %dms", ErrInvalidSchedule, s.EveryMs)
		}
	case KindCron:
		if _, err := parser.Parse(s.Expr); err != nil {
			return fmt.Errorf("%w: bad cron expression %q: %v", ErrInvalidSchedule, s.Expr, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// Next computes the next execution instant strictly after ref, or nil when
// the schedule will never fire again. Cron expressions are matched against
// wall-clock fields in loc, so the search is daylight-saving aware: a local
// hour skipped by a spring-forward transition is never selected.
func Next(s Schedule, ref time.Time, loc *time.Location) (*time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch s.Kind {
	case KindAt:
		if s.AtMs <= 0 {
			return nil, fmt.Errorf("%w: at timestamp must be positive, got %d", ErrInvalidSchedule, s.AtMs)
		}
		at := time.UnixMilli(s.AtMs)
		if !at.After(ref) {
			// Already elapsed. One-shot schedules never fire again.
			return nil, nil
		}
		return &at, nil

	case KindEvery:
		if s.EveryMs <= 0 {
			return nil, fmt.Errorf("%w: every interval must be positive, got %dms", ErrInvalidSchedule, s.EveryMs)
		}
		next := ref.Add(time.Duration(s.EveryMs) * time.Millisecond)
		return &next, nil

	case KindCron:
		sched, err := parser.Parse(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cron expression %q: %v", ErrInvalidSchedule, s.Expr, err)
		}
		next := sched.Next(ref.In(loc))
		if next.IsZero() {
			// No matching instant within the parser's search horizon.
			return nil, nil
		}
		return &next, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, s.Kind)
	}
}
