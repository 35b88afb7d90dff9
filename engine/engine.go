package engine

import "github.com/desim/desim/simtime"

// TimeTeller reports the current simulated time.
type TimeTeller interface {
	CurrentTime() simtime.SimTime
}

// Scheduler schedules and cancels future events.
type Scheduler interface {
	Schedule(e Event)
	Cancel(e Event)

	// NextSequence returns the next monotonically increasing sequence
	// number, used by callers across packages to build events via NewEvent
	// before Schedule without reaching into the loop's internals.
	NextSequence() uint64

	// ScheduleIn builds and schedules an event at now+delay, returning it
	// so the caller can Cancel it later (e.g. an acquire timeout cancelled
	// at fulfillment). delay must be >= 0 or *faults.InvalidRequest is
	// returned.
	ScheduleIn(delay simtime.SimTime, priority int, h Handler) (Event, error)
}

// SimulationEndHandler is invoked once after a Loop finishes running, with
// the final simulated time.
type SimulationEndHandler interface {
	Handle(now simtime.SimTime)
}

// SimulationEndHandlerFunc adapts a plain function to SimulationEndHandler.
type SimulationEndHandlerFunc func(now simtime.SimTime)

func (f SimulationEndHandlerFunc) Handle(now simtime.SimTime) { f(now) }

// Loop is the single-threaded event loop that drives one replication.
// There is deliberately no parallel variant: the coroutine host depends
// on the loop running on exactly one goroutine at a time, and parallelism
// lives across replications, not inside a run.
type Loop interface {
	Hookable
	TimeTeller
	Scheduler

	// Run processes events until the queue is empty or until stop
	// returns true when evaluated against the time of the next event.
	// A nil stop runs to exhaustion.
	Run(stop func(next simtime.SimTime) bool) error

	RegisterSimulationEndHandler(handler SimulationEndHandler)
	Finished()
}
