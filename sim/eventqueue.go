package sim

import (
	"container/heap"
	"slices"
)

// eventQueue is a queue of events ordered by time, and by insertion sequence
// among events of the same time.
type eventQueue struct {
	events eventHeap
}

func newEventQueue() *eventQueue {
	q := new(eventQueue)
	q.events = make([]*Event, 0)
	heap.Init(&q.events)

	return q
}

// Push adds an event to the event queue.
func (q *eventQueue) Push(evt *Event) {
	heap.Push(&q.events, evt)
}

// Pop removes and returns the next earliest event. It returns nil if the
// queue is empty.
func (q *eventQueue) Pop() *Event {
	if q.events.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*Event)
}

// Peek returns the event in front of the queue without removing it.
func (q *eventQueue) Peek() *Event {
	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0]
}

// Len returns the number of events in the queue.
func (q *eventQueue) Len() int {
	return q.events.Len()
}

// Ordered returns a copy of the queued events in pop order.
func (q *eventQueue) Ordered() []*Event {
	events := slices.Clone(q.events)
	slices.SortFunc(events, func(a, b *Event) int {
		switch {
		case before(a, b):
			return -1
		case before(b, a):
			return 1
		default:
			return 0
		}
	})

	return events
}

func before(a, b *Event) bool {
	if a.time != b.time {
		return a.time < b.time
	}

	return a.id < b.id
}

type eventHeap []*Event

// Len returns the length of the event queue.
func (h eventHeap) Len() int {
	return len(h)
}

// Less returns true if the i-th event happens before the j-th event.
func (h eventHeap) Less(i, j int) bool {
	return before(h[i], h[j])
}

// Swap changes the position of two events in the event queue.
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds an event into the event queue.
func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

// Pop removes and returns the next event to happen.
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]

	return evt
}
