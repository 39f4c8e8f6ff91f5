package sim

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// EventLogger is a hook that prints one line for every event the scheduler
// processes.
type EventLogger struct {
	*log.Logger

	// Keys, when set, limits the context entries printed.
	Keys []string
}

// NewEventLogger returns a new EventLogger which will write into the logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	h := new(EventLogger)
	h.Logger = logger

	return h
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx HookCtx) {
	evt, ok := ctx.Item.(*Event)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosBeforeEvent:
		h.Printf("%.10f, #%d%s", evt.Time(), evt.ID(), h.formatContext(evt))
	case HookPosEventDiscarded:
		h.Printf("%.10f, #%d deactivated%s",
			evt.Time(), evt.ID(), h.formatContext(evt))
	case HookPosAfterEvent:
		if err, ok := ctx.Detail.(error); ok && err != nil {
			h.Printf("%.10f, #%d failed: %v", evt.Time(), evt.ID(), err)
		}
	}
}

func (h *EventLogger) formatContext(evt *Event) string {
	keys := h.Keys
	if keys == nil {
		keys = make([]string, 0, len(evt.Context()))
		for k := range evt.Context() {
			keys = append(keys, k)
		}

		sort.Strings(keys)
	}

	var b strings.Builder

	for _, k := range keys {
		v, ok := evt.Context()[k]
		if !ok {
			continue
		}

		fmt.Fprintf(&b, ", %s=%v", k, v)
	}

	return b.String()
}
