package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTime is returned when an event time is NaN or infinite.
	ErrInvalidTime = errors.New("sim: event time must be finite")

	// ErrEventNotRunnable is returned when running an event that has already
	// executed or has been deactivated.
	ErrEventNotRunnable = errors.New("sim: event is not runnable")

	// ErrEventNotSchedulable is returned when scheduling a nil event, an event
	// that is already in a scheduler, or an event that is no longer pending.
	ErrEventNotSchedulable = errors.New("sim: event cannot be scheduled")

	// ErrNoEvent is returned by Step when nothing is pending.
	ErrNoEvent = errors.New("sim: no event to process")

	// ErrAlreadyRunning is returned when Run is called from inside an action
	// of the same scheduler.
	ErrAlreadyRunning = errors.New("sim: scheduler is already running")
)

// ActionError reports an action that failed while the scheduler was
// processing its event. The clock has already been moved to the event time.
type ActionError struct {
	Event *Event
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("sim: action of event %d @ %.10f failed: %v",
		e.Event.ID(), float64(e.Event.Time()), e.Err)
}

// Unwrap returns the error returned by the action.
func (e *ActionError) Unwrap() error {
	return e.Err
}
