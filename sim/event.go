package sim

import (
	"fmt"
	"math"

	"github.com/sarchlab/desim/idgen"
)

// VTime defines the time in the simulated space. It carries no unit; models
// decide whether it counts seconds, cycles, or days.
type VTime float64

// Context holds model-specific data attached to an event. The engine never
// interprets it; it is only carried along for conditions, log filters, and
// the event log.
type Context map[string]any

// An Action is the state transition that an event applies when it fires.
//
// Actions may call back into the scheduler that owns the event, for example
// to schedule follow-up events or to deactivate pending ones.
type Action interface {
	Act() error
}

// ActionFunc adapts an ordinary function to the Action interface.
type ActionFunc func() error

// Act calls f.
func (f ActionFunc) Act() error {
	return f()
}

// EventStatus tells where an event is in its one-shot lifecycle.
type EventStatus int

// The event statuses. An event leaves EventPending at most once.
const (
	EventPending EventStatus = iota
	EventExecuted
	EventDeactivated
)

func (s EventStatus) String() string {
	switch s {
	case EventPending:
		return "pending"
	case EventExecuted:
		return "executed"
	case EventDeactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("EventStatus(%d)", int(s))
	}
}

// An Event is something going to happen in the simulated future.
type Event struct {
	id      idgen.ID
	time    VTime
	action  Action
	context Context
	status  EventStatus
	result  error
}

// NewEvent creates an event that fires at time t. A nil action makes the
// event a no-op, and a nil context is replaced by an empty one.
func NewEvent(t VTime, action Action, ctx Context) (*Event, error) {
	if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTime, float64(t))
	}

	if ctx == nil {
		ctx = Context{}
	}

	e := &Event{
		time:    t,
		action:  action,
		context: ctx,
	}

	return e, nil
}

// MustNewEvent is like NewEvent but panics if the time is not finite.
func MustNewEvent(t VTime, action Action, ctx Context) *Event {
	e, err := NewEvent(t, action, ctx)
	if err != nil {
		panic(err)
	}

	return e
}

// ID returns the insertion sequence number given to the event when it was
// scheduled. Unscheduled events have ID 0.
func (e *Event) ID() idgen.ID {
	return e.id
}

// Time returns the time that the event is going to happen.
func (e *Event) Time() VTime {
	return e.time
}

// Context returns the data attached to the event.
func (e *Event) Context() Context {
	return e.context
}

// Status returns the lifecycle status of the event.
func (e *Event) Status() EventStatus {
	return e.status
}

// Executed tells if the action of the event has been invoked.
func (e *Event) Executed() bool {
	return e.status == EventExecuted
}

// Deactivated tells if the event has been withdrawn before firing.
func (e *Event) Deactivated() bool {
	return e.status == EventDeactivated
}

// IsPending tells if the event can still fire.
func (e *Event) IsPending() bool {
	return e.status == EventPending
}

// Result returns the error returned by the action, if it has run.
func (e *Event) Result() error {
	return e.result
}

// Run invokes the action of the event. The event is marked as executed
// before the action is called, so an action that reaches its own event
// cannot trigger it again.
func (e *Event) Run() error {
	if e.status != EventPending {
		return fmt.Errorf("%w: event is %s", ErrEventNotRunnable, e.status)
	}

	e.status = EventExecuted

	if e.action == nil {
		return nil
	}

	e.result = e.action.Act()

	return e.result
}

// Deactivate prevents a pending event from ever firing. Deactivating an
// executed or already deactivated event has no effect.
func (e *Event) Deactivate() {
	if e.status != EventPending {
		return
	}

	e.status = EventDeactivated
}
