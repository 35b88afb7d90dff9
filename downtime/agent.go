// Package downtime implements scheduled and failure-driven resource
// take-down/bring-up: the up / going_down / down state machine, the
// hard-stop-with-timeout variant, and the two concrete schedulers (a
// cyclic Schedule and a failure agent driven by random time-to-failure /
// time-to-repair draws) built on the shared transition primitives.
package downtime

import (
	"github.com/desim/desim/agent"
	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/simtime"
)

// Clock is the scheduling/clock capability a downtime agent needs.
type Clock = resource.Clock

// HolderNotifier delivers err into the coroutine of the process that holds
// assignment — the process layer supplies this (it is the only layer that
// knows how to map a process ID back to a suspended coroutine).
type HolderNotifier func(assignment *resource.Assignment, err error)

// Agent is a downtime agent associated with exactly one Resource. Multiple
// downtime agents may share a resource — e.g. a ScheduledAgent for breaks
// plus a FailureAgent for unplanned outages — each independently calling
// TakeDownResource/SetGoingDown/BringUpResource on the same Resource.
type Agent struct {
	*agent.Base

	Resource *resource.Resource
	clock    Clock
	Notify   HolderNotifier

	hardTimeoutEvt engine.Event
}

// NewAgent constructs a downtime Agent for res.
func NewAgent(id string, res *resource.Resource, clock Clock, idGen func() string, notify HolderNotifier) *Agent {
	a := &Agent{Resource: res, clock: clock, Notify: notify}
	a.Base = agent.NewBase(id, idGen)
	return a
}

// TakeDownResource is the protected _takedown_resource primitive: up ->
// down immediately. Every current holder is notified with a ResourceDown
// fault and then has its units of this resource forcibly released — the
// holder may still hold units of other resources if its assignment spans
// a pool.
func (a *Agent) TakeDownResource() {
	holders := a.Resource.Holders()
	a.Resource.TakeDownAll()

	if a.hardTimeoutEvt != nil {
		a.clock.Cancel(a.hardTimeoutEvt)
		a.hardTimeoutEvt = nil
	}

	for _, h := range holders {
		if a.Notify != nil {
			a.Notify(h, &faults.ResourceDown{ResourceID: a.Resource.ID})
		}
		_ = h.SubtractAll(a.Resource)
	}
}

// SetGoingDown is the protected _set_resource_going_down primitive: up ->
// going_down. The resource stays valid for current holders but is
// excluded from new assignments. If timeout is finite and > 0, a hard
// take-down is scheduled at now+timeout, falling back to
// TakeDownResource if nothing brings the resource up first.
func (a *Agent) SetGoingDown(timeout simtime.SimTime) error {
	a.Resource.SetGoingDown(true)

	if !timeout.IsInfinite() && timeout.Seconds() > 0 {
		evt, err := a.clock.ScheduleIn(timeout, engine.PriorityInterrupt, engine.HandlerFunc(func(engine.Event) error {
			a.hardTimeoutEvt = nil
			a.TakeDownResource()
			return nil
		}))
		if err != nil {
			return err
		}
		a.hardTimeoutEvt = evt
	}
	return nil
}

// BringUpResource is the protected _bring_up_resource primitive:
// going_down or down -> up. Publishes RSRC_UP to subscribers and
// re-triggers queue processing on the resource's assignment agent.
func (a *Agent) BringUpResource() {
	a.Resource.BringUpAll()

	if a.hardTimeoutEvt != nil {
		a.clock.Cancel(a.hardTimeoutEvt)
		a.hardTimeoutEvt = nil
	}

	a.Publish(resource.MsgResourceUp, a.Resource.ID)

	if owner, ok := a.Resource.Agent.(interface{ ProcessQueuedRequests() }); ok {
		owner.ProcessQueuedRequests()
	}
}

// IsDown reports whether the resource currently has any down units.
func (a *Agent) IsDown() bool { return a.Resource.DownUnits() > 0 }

// IsGoingDown reports the soft-stop flag.
func (a *Agent) IsGoingDown() bool { return a.Resource.GoingDown() }
