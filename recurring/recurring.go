// Package recurring schedules events that repeat in simulated time, either at
// a fixed period or following a cron expression.
package recurring

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sarchlab/desim/sim"
)

// OccurrenceKey is the context key holding the 1-based occurrence number of
// a recurring event.
const OccurrenceKey = "occurrence"

// ErrInvalidPeriod is returned when a fixed period is not a positive finite
// number.
var ErrInvalidPeriod = errors.New("recurring: invalid period")

// A Calendar maps simulated time onto wall-clock time. A simulated time t
// stands for Epoch + t*Unit.
type Calendar struct {
	Epoch time.Time
	Unit  time.Duration
}

// ToTime converts a simulated time to wall-clock time.
func (c Calendar) ToTime(t sim.VTime) time.Time {
	return c.Epoch.Add(time.Duration(float64(t) * float64(c.Unit)))
}

// ToVTime converts a wall-clock time to simulated time.
func (c Calendar) ToVTime(t time.Time) sim.VTime {
	return sim.VTime(float64(t.Sub(c.Epoch)) / float64(c.Unit))
}

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a standard five-field cron expression. Descriptors
// such as "@daily" are accepted too.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("recurring: parse %q: %w", expr, err)
	}

	return schedule, nil
}

// An Option configures a Recurrence.
type Option func(r *Recurrence)

// WithLimit stops the recurrence after n occurrences.
func WithLimit(n int) Option {
	return func(r *Recurrence) {
		r.limit = n
	}
}

// WithUntil stops the recurrence before the first occurrence later than t.
func WithUntil(t sim.VTime) Option {
	return func(r *Recurrence) {
		r.until = t
	}
}

// A Recurrence keeps exactly one future occurrence in the scheduler. When it
// fires, the action runs and the following occurrence is scheduled.
type Recurrence struct {
	scheduler *sim.EventScheduler
	next      func(after sim.VTime) sim.VTime
	action    sim.Action
	ctx       sim.Context

	limit   int
	until   sim.VTime
	count   int
	pending *sim.Event
	stopped bool
}

// Every schedules action every period, starting one period after the
// current time.
func Every(
	s *sim.EventScheduler,
	period sim.VTime,
	action sim.Action,
	ctx sim.Context,
	opts ...Option,
) (*Recurrence, error) {
	p := float64(period)
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, p)
	}

	next := func(after sim.VTime) sim.VTime {
		return after + period
	}

	return start(s, next, action, ctx, opts)
}

// Cron schedules action at the times matched by a cron expression, read on
// the given calendar. The first occurrence is the first match strictly after
// the current time.
func Cron(
	s *sim.EventScheduler,
	cal Calendar,
	expr string,
	action sim.Action,
	ctx sim.Context,
	opts ...Option,
) (*Recurrence, error) {
	if cal.Unit <= 0 {
		return nil, fmt.Errorf("%w: calendar unit %v", ErrInvalidPeriod, cal.Unit)
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	next := func(after sim.VTime) sim.VTime {
		t := schedule.Next(cal.ToTime(after))
		if t.IsZero() {
			return sim.VTime(math.Inf(1))
		}

		return cal.ToVTime(t)
	}

	return start(s, next, action, ctx, opts)
}

func start(
	s *sim.EventScheduler,
	next func(sim.VTime) sim.VTime,
	action sim.Action,
	ctx sim.Context,
	opts []Option,
) (*Recurrence, error) {
	r := &Recurrence{
		scheduler: s,
		next:      next,
		action:    action,
		ctx:       ctx,
		until:     sim.VTime(math.Inf(1)),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.scheduleAfter(s.CurrentTime()); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Recurrence) scheduleAfter(after sim.VTime) error {
	if r.limit > 0 && r.count >= r.limit {
		r.pending = nil
		return nil
	}

	t := r.next(after)
	if math.IsInf(float64(t), 1) || t > r.until {
		r.pending = nil
		return nil
	}

	ctx := maps.Clone(r.ctx)
	if ctx == nil {
		ctx = sim.Context{}
	}

	ctx[OccurrenceKey] = r.count + 1

	evt, err := sim.NewEvent(t, sim.ActionFunc(r.fire), ctx)
	if err != nil {
		return err
	}

	if err := r.scheduler.Schedule(evt); err != nil {
		return err
	}

	r.pending = evt

	return nil
}

func (r *Recurrence) fire() error {
	r.count++
	at := r.pending.Time()

	if r.action != nil {
		if err := r.action.Act(); err != nil {
			r.pending = nil
			return err
		}
	}

	if r.stopped {
		r.pending = nil
		return nil
	}

	return r.scheduleAfter(at)
}

// Stop deactivates the pending occurrence. Stopping twice is a no-op, and an
// action may stop its own recurrence.
func (r *Recurrence) Stop() {
	r.stopped = true

	if r.pending != nil {
		r.pending.Deactivate()
		r.pending = nil
	}
}

// Count returns how many occurrences have fired.
func (r *Recurrence) Count() int {
	return r.count
}

// Pending returns the scheduled occurrence, or nil if the recurrence is over.
func (r *Recurrence) Pending() *sim.Event {
	return r.pending
}
