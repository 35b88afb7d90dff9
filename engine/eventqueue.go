package engine

import (
	"container/heap"
	"sync"
)

// EventQueue orders events by (Time, Priority, Sequence).
type EventQueue interface {
	Push(evt Event)
	Pop() Event
	Len() int
	Peek() Event
}

// EventQueueImpl is a thread-safe, heap-backed EventQueue. The engine only
// ever drives one queue from one goroutine, but Schedule can be called by
// model code running on its own coroutine's goroutine while the loop
// goroutine is blocked inside a dispatch, so the queue still needs its own
// lock.
type EventQueueImpl struct {
	sync.Mutex
	events eventHeap
}

// NewEventQueue creates an empty EventQueue.
func NewEventQueue() *EventQueueImpl {
	q := new(EventQueueImpl)
	q.events = make(eventHeap, 0)
	heap.Init(&q.events)
	return q
}

func (q *EventQueueImpl) Push(evt Event) {
	q.Lock()
	heap.Push(&q.events, evt)
	q.Unlock()
}

func (q *EventQueueImpl) Pop() Event {
	q.Lock()
	e := heap.Pop(&q.events).(Event)
	q.Unlock()
	return e
}

func (q *EventQueueImpl) Len() int {
	q.Lock()
	l := q.events.Len()
	q.Unlock()
	return l
}

func (q *EventQueueImpl) Peek() Event {
	q.Lock()
	evt := q.events[0]
	q.Unlock()
	return evt
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

// Less orders by simulated time first, then priority (lower first), then
// sequence (lower first) so that events scheduled earlier at an identical
// (time, priority) pair dispatch first.
func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if c := a.Time().Compare(b.Time()); c != 0 {
		return c < 0
	}
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	return a.Sequence() < b.Sequence()
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return event
}
