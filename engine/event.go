// Package engine implements the simulated clock, the event queue and the
// single-threaded event loop that drives a model. It is the foundation
// every other package (coroutine, agent, resource, downtime, process,
// model) schedules work through.
package engine

import (
	"github.com/desim/desim/simtime"
)

// Event is something scheduled to happen at a point in simulated time.
// Every event carries a monotonically increasing Sequence, assigned when
// the event is built, used to break ties between events sharing both a Time and
// a Priority; this keeps dispatch order fully deterministic for a given
// sequence of Schedule calls.
type Event interface {
	ID() string
	Time() simtime.SimTime
	Priority() int
	Sequence() uint64
	Handler() Handler
	Cancelled() bool
}

// A Handler reacts to the events scheduled against it. Handle errors that
// implement faults.Fault halt the run; any other error is logged and
// swallowed.
type Handler interface {
	Handle(e Event) error
}

// HandlerFunc adapts a plain function to Handler, the way internal engine
// users (coroutine resumption, downtime transitions, timeouts) schedule
// one-off callbacks without declaring a dedicated type.
type HandlerFunc func(e Event) error

func (f HandlerFunc) Handle(e Event) error { return f(e) }

// EventBase is embedded by concrete event types, or used directly via
// NewEvent, to provide the common bookkeeping every Event needs.
type EventBase struct {
	id        string
	time      simtime.SimTime
	priority  int
	sequence  uint64
	handler   Handler
	cancelled *bool
}

// NewEvent constructs an Event. seq should come from the owning Loop's
// sequence counter so ordering stays deterministic across a run.
func NewEvent(t simtime.SimTime, priority int, seq uint64, handler Handler) *EventBase {
	cancelled := false
	return &EventBase{
		id:        GetIDGenerator().Generate(),
		time:      t,
		priority:  priority,
		sequence:  seq,
		handler:   handler,
		cancelled: &cancelled,
	}
}

func (e *EventBase) ID() string               { return e.id }
func (e *EventBase) Time() simtime.SimTime     { return e.time }
func (e *EventBase) Priority() int             { return e.priority }
func (e *EventBase) Sequence() uint64          { return e.sequence }
func (e *EventBase) Handler() Handler          { return e.handler }
func (e *EventBase) Cancelled() bool           { return *e.cancelled }

// Cancel marks the event so the Loop skips it on dispatch without having
// to search or reorder the heap.
func (e *EventBase) Cancel() { *e.cancelled = true }

// Standard event priorities, lower runs first at equal time; kept as named
// constants so model code doesn't invent its own numbering.
const (
	// PriorityDefault is the rank almost every event schedules at.
	// Equal-time, equal-priority events dispatch in schedule order, which
	// is what makes wait_for(0) resume only after every event already
	// pending at the current time.
	PriorityDefault = 2

	// PriorityResume aliases PriorityDefault: a coroutine resumption is an
	// ordinary now-event appended among its peers, never a queue-jumper.
	PriorityResume = PriorityDefault

	// PriorityInterrupt ranks after resumes so a fulfillment and its
	// timeout landing on the same instant resolve toward fulfillment —
	// the outcome is one of the two, never both.
	PriorityInterrupt = 3
)
