package sim

import (
	"fmt"
	"math"

	"github.com/sarchlab/desim/idgen"
)

// SchedulerStatus tells if a scheduler is inside a Run call.
type SchedulerStatus int

// The scheduler statuses.
const (
	SchedulerInactive SchedulerStatus = iota
	SchedulerActive
)

func (s SchedulerStatus) String() string {
	switch s {
	case SchedulerInactive:
		return "inactive"
	case SchedulerActive:
		return "active"
	default:
		return fmt.Sprintf("SchedulerStatus(%d)", int(s))
	}
}

// A Condition selects events among the ones stored in a scheduler.
type Condition func(s *EventScheduler, e *Event) bool

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTime
}

// An EventScheduler owns a simulated clock and the events waiting to happen.
// It is not safe for concurrent use; actions run on the goroutine that
// called Run and may call back into the scheduler.
type EventScheduler struct {
	*HookableBase

	now      VTime
	queue    *eventQueue
	idGen    idgen.Generator
	status   SchedulerStatus
	lastStop StopReason
}

// A SchedulerOption configures an EventScheduler.
type SchedulerOption func(s *EventScheduler)

// WithStartTime sets the initial value of the clock. It panics if t is not
// finite.
func WithStartTime(t VTime) SchedulerOption {
	if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
		panic(fmt.Errorf("%w: start time %v", ErrInvalidTime, float64(t)))
	}

	return func(s *EventScheduler) {
		s.now = t
	}
}

// WithIDGenerator sets the generator that numbers scheduled events. The
// generator must not be shared with another scheduler.
func WithIDGenerator(g idgen.Generator) SchedulerOption {
	return func(s *EventScheduler) {
		s.idGen = g
	}
}

// NewEventScheduler creates an EventScheduler whose clock starts at zero
// unless configured otherwise.
func NewEventScheduler(opts ...SchedulerOption) *EventScheduler {
	s := &EventScheduler{
		HookableBase: NewHookableBase(),
		queue:        newEventQueue(),
		idGen:        idgen.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CurrentTime returns the time of the most recently processed event, or the
// start time if nothing has been processed.
func (s *EventScheduler) CurrentTime() VTime {
	return s.now
}

// Status returns SchedulerActive while Run is in progress.
func (s *EventScheduler) Status() SchedulerStatus {
	return s.status
}

// LastStopReason returns why the most recent Run returned.
func (s *EventScheduler) LastStopReason() StopReason {
	return s.lastStop
}

// Len returns the number of stored events, including deactivated events that
// have not been discarded yet.
func (s *EventScheduler) Len() int {
	return s.queue.Len()
}

// NumPending returns the number of stored events that can still fire.
func (s *EventScheduler) NumPending() int {
	n := 0

	for _, e := range s.queue.events {
		if e.IsPending() {
			n++
		}
	}

	return n
}

// Schedule puts an event into the event queue. The event may be earlier
// than the current time; it then fires without moving the clock back.
func (s *EventScheduler) Schedule(e *Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrEventNotSchedulable)
	}

	if e.id != 0 {
		return fmt.Errorf("%w: event %d is already scheduled",
			ErrEventNotSchedulable, e.id)
	}

	if !e.IsPending() {
		return fmt.Errorf("%w: event is %s", ErrEventNotSchedulable, e.status)
	}

	e.id = s.idGen.Generate()
	s.queue.Push(e)

	s.InvokeHook(HookCtx{
		Domain: s,
		Pos:    HookPosEventScheduled,
		Item:   e,
	})

	return nil
}

// Timeout schedules an action to happen delay after the current time.
func (s *EventScheduler) Timeout(
	delay VTime,
	action Action,
	ctx Context,
) (*Event, error) {
	e, err := NewEvent(s.now+delay, action, ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Schedule(e); err != nil {
		return nil, err
	}

	return e, nil
}

// NextEvent returns the event in front of the queue without removing it, or
// nil if the queue is empty. The event may be deactivated.
func (s *EventScheduler) NextEvent() *Event {
	return s.queue.Peek()
}

// Peek returns the time of the event in front of the queue, whether or not
// it is deactivated. It returns positive infinity if the queue is empty.
func (s *EventScheduler) Peek() VTime {
	e := s.queue.Peek()
	if e == nil {
		return VTime(math.Inf(1))
	}

	return e.time
}

// NextEventByCondition returns the first pending event, in firing order, that
// satisfies the condition. It returns nil if no event matches.
func (s *EventScheduler) NextEventByCondition(cond Condition) *Event {
	for _, e := range s.queue.Ordered() {
		if e.IsPending() && cond(s, e) {
			return e
		}
	}

	return nil
}

// PeekByCondition returns the time of the first pending event that satisfies
// the condition. The boolean is false if no event matches.
func (s *EventScheduler) PeekByCondition(cond Condition) (VTime, bool) {
	e := s.NextEventByCondition(cond)
	if e == nil {
		return 0, false
	}

	return e.time, true
}

// DeactivateNextEvent deactivates the earliest pending event.
func (s *EventScheduler) DeactivateNextEvent() {
	s.DeactivateNextEventByCondition(anyEvent)
}

// DeactivateNextEventByCondition deactivates the first pending event, in
// firing order, that satisfies the condition. Nothing happens if no event
// matches. The event stays in the queue and is dropped when it is reached.
func (s *EventScheduler) DeactivateNextEventByCondition(cond Condition) {
	e := s.NextEventByCondition(cond)
	if e != nil {
		e.Deactivate()
	}
}

// DeactivateAllEvents deactivates every pending event.
func (s *EventScheduler) DeactivateAllEvents() {
	s.DeactivateAllEventsByCondition(anyEvent)
}

// DeactivateAllEventsByCondition deactivates every pending event that
// satisfies the condition.
func (s *EventScheduler) DeactivateAllEventsByCondition(cond Condition) {
	for _, e := range s.queue.Ordered() {
		if e.IsPending() && cond(s, e) {
			e.Deactivate()
		}
	}
}

func anyEvent(*EventScheduler, *Event) bool {
	return true
}
