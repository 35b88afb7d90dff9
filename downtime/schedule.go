package downtime

import (
	"sort"

	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/simtime"
)

// Interval is one non-overlapping down period within a cycle.
type Interval struct {
	Offset   simtime.SimTime
	Duration simtime.SimTime
}

// Schedule is a cyclic downtime timetable: a cycle length plus the
// non-overlapping intervals within each cycle the resource spends down.
type Schedule struct {
	CycleLength simtime.SimTime
	Intervals   []Interval
}

// Validate checks that every interval fits inside the cycle and that no
// two intervals overlap.
func (s Schedule) Validate() error {
	sorted := make([]Interval, len(s.Intervals))
	copy(sorted, s.Intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset.Less(sorted[j].Offset) })

	for i, iv := range sorted {
		end, err := iv.Offset.Add(iv.Duration)
		if err != nil {
			return err
		}
		if end.Greater(s.CycleLength) {
			return &faults.InvalidRequest{Msg: "downtime interval extends past the cycle length"}
		}
		if i > 0 {
			prevEnd, err := sorted[i-1].Offset.Add(sorted[i-1].Duration)
			if err != nil {
				return err
			}
			if prevEnd.Greater(iv.Offset) {
				return &faults.InvalidRequest{Msg: "overlapping downtime intervals"}
			}
		}
	}
	return nil
}

// ScheduledAgent drives a Schedule indefinitely: at n*cycle+offset_i it
// invokes the pluggable StartTakedown seam; the default implementation
// takes the resource down immediately and schedules the matching bring-up
// at (actual takedown time)+duration_i. A customizing caller overrides
// StartTakedown to coordinate with peers (e.g. two agents that must not
// both be down at once) — at that point it owns the bring-up timing too,
// since it may have deferred the actual take-down.
type ScheduledAgent struct {
	*Agent

	schedule Schedule

	// StartTakedown is the customization seam. It receives the
	// interval that triggered this attempt and is responsible for calling
	// TakeDownResource and, eventually, BringUpResource — possibly after
	// rescheduling itself via Retry to wait on a peer.
	StartTakedown func(iv Interval)
}

// NewScheduledAgent constructs a ScheduledAgent. The schedule is validated
// before construction succeeds.
func NewScheduledAgent(id string, res *resource.Resource, clock Clock, idGen func() string, notify HolderNotifier, schedule Schedule) (*ScheduledAgent, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	sa := &ScheduledAgent{
		Agent:    NewAgent(id, res, clock, idGen, notify),
		schedule: schedule,
	}
	sa.StartTakedown = sa.DefaultStartTakedown
	return sa, nil
}

// DefaultStartTakedown takes the resource down immediately and schedules
// the matching bring-up after the interval's duration. Custom StartTakedown
// overrides delegate here once their own coordination allows the break to
// proceed.
func (sa *ScheduledAgent) DefaultStartTakedown(iv Interval) {
	sa.TakeDownResource()
	if _, err := sa.clock.ScheduleIn(iv.Duration, engine.PriorityDefault, engine.HandlerFunc(func(engine.Event) error {
		sa.BringUpResource()
		return nil
	})); err != nil {
		panic(err)
	}
}

// Retry reschedules a call to StartTakedown for iv after delay — the hook
// a custom StartTakedown uses to defer its own attempt (e.g. while a peer
// agent is down).
func (sa *ScheduledAgent) Retry(iv Interval, delay simtime.SimTime) {
	if _, err := sa.clock.ScheduleIn(delay, engine.PriorityDefault, engine.HandlerFunc(func(engine.Event) error {
		sa.StartTakedown(iv)
		return nil
	})); err != nil {
		panic(err)
	}
}

// Start begins the indefinite cycle, scheduling every interval's first
// occurrence.
func (sa *ScheduledAgent) Start() {
	for _, iv := range sa.schedule.Intervals {
		sa.scheduleOccurrence(iv, 0)
	}
}

// scheduleOccurrence schedules cycle n's nominal takedown time for iv —
// computed from absolute model time (n*cycle+offset) rather than
// incrementally chained delays, so a custom StartTakedown's retries never
// drift the next cycle's nominal start.
func (sa *ScheduledAgent) scheduleOccurrence(iv Interval, cycle int) {
	cycleStart := sa.schedule.CycleLength.Scale(float64(cycle))
	nominal, err := cycleStart.Add(iv.Offset)
	if err != nil {
		panic(err)
	}
	delay, err := nominal.Sub(sa.clock.CurrentTime())
	if err != nil {
		panic(err)
	}
	if delay.Seconds() < 0 {
		delay = simtime.New(0, simtime.Seconds)
	}

	if _, err := sa.clock.ScheduleIn(delay, engine.PriorityDefault, engine.HandlerFunc(func(engine.Event) error {
		sa.StartTakedown(iv)
		sa.scheduleOccurrence(iv, cycle+1)
		return nil
	})); err != nil {
		panic(err)
	}
}
