package downtime

import (
	"github.com/desim/desim/engine"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/rng"
	"github.com/desim/desim/simtime"
)

// FailureAgent drives unplanned outages from a pair of sampled time
// sequences: time-to-failure and time-to-repair, each drawn from its own
// rng.Sequence so the two streams stay independent and
// replication-reproducible. Unlike
// ScheduledAgent's fixed cycle, each failure's timing depends on the
// previous repair's duration, so occurrences are rescheduled one at a
// time rather than computed from an absolute cycle offset.
type FailureAgent struct {
	*Agent

	timeToFailure rng.Sequence
	timeToRepair  rng.Sequence
}

// NewFailureAgent constructs a FailureAgent for res. timeToFailure and
// timeToRepair are independently-seeded sequences (e.g. two
// rng.Registry.NewSequence calls against distinct stream ids) yielding
// durations in the clock's base unit.
func NewFailureAgent(id string, res *resource.Resource, clock Clock, idGen func() string, notify HolderNotifier, timeToFailure, timeToRepair rng.Sequence) *FailureAgent {
	return &FailureAgent{
		Agent:         NewAgent(id, res, clock, idGen, notify),
		timeToFailure: timeToFailure,
		timeToRepair:  timeToRepair,
	}
}

// Start schedules the first failure occurrence.
func (fa *FailureAgent) Start() {
	fa.scheduleNextFailure()
}

func (fa *FailureAgent) scheduleNextFailure() {
	delay := simtime.New(fa.timeToFailure.Next(), simtime.BaseUnit())
	if _, err := fa.clock.ScheduleIn(delay, engine.PriorityDefault, engine.HandlerFunc(func(engine.Event) error {
		fa.TakeDownResource()
		fa.scheduleRepair()
		return nil
	})); err != nil {
		panic(err)
	}
}

func (fa *FailureAgent) scheduleRepair() {
	delay := simtime.New(fa.timeToRepair.Next(), simtime.BaseUnit())
	if _, err := fa.clock.ScheduleIn(delay, engine.PriorityDefault, engine.HandlerFunc(func(engine.Event) error {
		fa.BringUpResource()
		fa.scheduleNextFailure()
		return nil
	})); err != nil {
		panic(err)
	}
}
