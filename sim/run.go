package sim

import (
	"fmt"
	"maps"
	"math"

	"github.com/sarchlab/desim/idgen"
)

// StopReason tells why a run returned.
type StopReason int

// The stop reasons.
const (
	// StopNone means the scheduler has not finished a run, or the last run was
	// aborted by a failing action.
	StopNone StopReason = iota

	// StopDrained means the event queue became empty.
	StopDrained

	// StopByCondition means the stop condition returned true.
	StopByCondition
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopDrained:
		return "drained"
	case StopByCondition:
		return "stopped-by-condition"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// A StopCondition is checked before each event is popped. The run stops as
// soon as it returns true.
type StopCondition func() bool

// A LogFilter decides whether an event is recorded in the event log.
type LogFilter func(e *Event) bool

// A LogEntry records an event processed during a run.
type LogEntry struct {
	EventID idgen.ID

	// Time is the time the event was scheduled for.
	Time VTime

	// Now is the clock when the event was processed. It is later than Time
	// only for events that were scheduled in the past.
	Now VTime

	// Context is a shallow copy of the event context taken when the event was
	// processed.
	Context Context

	// Deactivated is set for entries of events that were dropped.
	Deactivated bool
}

type runConfig struct {
	logging        bool
	filter         LogFilter
	logDeactivated bool
}

// A RunOption configures a single run.
type RunOption func(c *runConfig)

// WithoutLogging disables the event log. Run then returns a nil log.
func WithoutLogging() RunOption {
	return func(c *runConfig) {
		c.logging = false
	}
}

// WithLogFilter only logs the events for which the filter returns true.
func WithLogFilter(filter LogFilter) RunOption {
	return func(c *runConfig) {
		c.filter = filter
	}
}

// WithDeactivatedLogged also logs deactivated events when they are dropped.
func WithDeactivatedLogged() RunOption {
	return func(c *runConfig) {
		c.logDeactivated = true
	}
}

// Run processes events in time order until the queue is empty or the stop
// condition returns true. A nil stop condition never stops the run.
//
// The returned log holds the processed events in order. If an action fails,
// Run returns the log so far and an *ActionError; the queue keeps whatever
// the action scheduled before failing and a later Run continues from there.
func (s *EventScheduler) Run(
	stop StopCondition,
	opts ...RunOption,
) ([]LogEntry, error) {
	if s.status == SchedulerActive {
		return nil, ErrAlreadyRunning
	}

	cfg := runConfig{logging: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	var log []LogEntry
	if cfg.logging {
		log = make([]LogEntry, 0)
	}

	s.status = SchedulerActive
	s.lastStop = StopNone
	defer func() { s.status = SchedulerInactive }()

	for {
		if s.queue.Len() == 0 {
			s.lastStop = StopDrained
			return log, nil
		}

		if stop != nil && stop() {
			s.lastStop = StopByCondition
			return log, nil
		}

		evt, fired, err := s.processNextEvent()

		if cfg.logging && cfg.shouldLog(evt, fired) {
			log = append(log, s.logEntry(evt))
		}

		if err != nil {
			return log, err
		}
	}
}

func (c runConfig) shouldLog(evt *Event, fired bool) bool {
	if !fired && !(evt.Deactivated() && c.logDeactivated) {
		return false
	}

	return c.filter == nil || c.filter(evt)
}

func (s *EventScheduler) logEntry(evt *Event) LogEntry {
	return LogEntry{
		EventID:     evt.id,
		Time:        evt.time,
		Now:         s.now,
		Context:     maps.Clone(evt.context),
		Deactivated: evt.Deactivated(),
	}
}

// RunUntilMaxTime runs until the next event would happen after maxTime.
// Events at exactly maxTime still fire. The clock is left at the time of the
// last processed event.
func (s *EventScheduler) RunUntilMaxTime(
	maxTime VTime,
	opts ...RunOption,
) ([]LogEntry, error) {
	if math.IsNaN(float64(maxTime)) {
		return nil, fmt.Errorf("%w: max time is NaN", ErrInvalidTime)
	}

	return s.Run(func() bool {
		return s.now > maxTime || s.Peek() > maxTime
	}, opts...)
}

// RunUntilEvent runs until the target event has fired or has been
// deactivated.
func (s *EventScheduler) RunUntilEvent(
	target *Event,
	opts ...RunOption,
) ([]LogEntry, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target event", ErrEventNotSchedulable)
	}

	return s.Run(func() bool {
		return !target.IsPending()
	}, opts...)
}

// Step processes exactly one event, which may be a deactivated event that
// gets dropped. It returns ErrNoEvent if the queue is empty.
func (s *EventScheduler) Step() (*Event, error) {
	if s.status == SchedulerActive {
		return nil, ErrAlreadyRunning
	}

	if s.queue.Len() == 0 {
		return nil, ErrNoEvent
	}

	s.status = SchedulerActive
	defer func() { s.status = SchedulerInactive }()

	evt, _, err := s.processNextEvent()

	return evt, err
}

// processNextEvent pops the next event, moves the clock forward to it, and
// runs it if it is still pending. The boolean reports whether the action
// was invoked.
func (s *EventScheduler) processNextEvent() (*Event, bool, error) {
	evt := s.queue.Pop()

	if evt.time > s.now {
		s.now = evt.time
	}

	hookCtx := HookCtx{
		Domain: s,
		Item:   evt,
	}

	if !evt.IsPending() {
		hookCtx.Pos = HookPosEventDiscarded
		s.InvokeHook(hookCtx)

		return evt, false, nil
	}

	hookCtx.Pos = HookPosBeforeEvent
	s.InvokeHook(hookCtx)

	err := evt.Run()

	hookCtx.Pos = HookPosAfterEvent
	hookCtx.Detail = err
	s.InvokeHook(hookCtx)

	if err != nil {
		return evt, true, &ActionError{Event: evt, Err: err}
	}

	return evt, true, nil
}
