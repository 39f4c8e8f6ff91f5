package sim

import "fmt"

// EventCounter is a hook that counts processed events, grouped by the value
// of one context key.
type EventCounter struct {
	key string

	tagNames  []string
	tagCount  map[string]uint64
	executed  uint64
	discarded uint64
}

// NewEventCounter creates an EventCounter that groups events by the context
// value under key. Events without the key are counted under "".
func NewEventCounter(key string) *EventCounter {
	return &EventCounter{
		key:      key,
		tagCount: make(map[string]uint64),
	}
}

// Func counts events after they run or when they are dropped.
func (c *EventCounter) Func(ctx HookCtx) {
	evt, ok := ctx.Item.(*Event)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosAfterEvent:
		c.executed++
		c.countTag(evt)
	case HookPosEventDiscarded:
		c.discarded++
	}
}

func (c *EventCounter) countTag(evt *Event) {
	tag := ""
	if v, found := evt.Context()[c.key]; found {
		tag = fmt.Sprint(v)
	}

	if _, ok := c.tagCount[tag]; !ok {
		c.tagNames = append(c.tagNames, tag)
	}

	c.tagCount[tag]++
}

// Executed returns the number of events whose action ran.
func (c *EventCounter) Executed() uint64 {
	return c.executed
}

// Discarded returns the number of deactivated events that were dropped.
func (c *EventCounter) Discarded() uint64 {
	return c.discarded
}

// TagNames returns the context values seen so far, in first-seen order.
func (c *EventCounter) TagNames() []string {
	return c.tagNames
}

// TagCount returns the number of executed events with the given value.
func (c *EventCounter) TagCount(tag string) uint64 {
	return c.tagCount[tag]
}
