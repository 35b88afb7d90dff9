// Package resource implements the resource capacity model, the
// single-resource assignment agent, and the resource pool:
// priority-ordered, multi-unit request assignment with timeouts, partial
// release, and up/going-down/down lifecycle accounting.
package resource

import (
	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
)

// Clock is the subset of engine.Loop an assignment agent needs: it
// schedules resume/timeout events and reads the current simulated time
// when stamping an Assignment's AcquireTime.
type Clock interface {
	engine.Scheduler
	engine.TimeTeller
}

// Resource is a capacity-constrained object required by processes.
// Capacity is fixed at construction; InUse and DownUnits change only
// through an AssignmentAgent or a downtime.Agent.
type Resource struct {
	ID       string
	Class    string // class-like descriptor a Pool selector can match
	Capacity uint32

	inUse     uint32
	downUnits uint32
	goingDown bool
	holders   []*Assignment

	// Agent is the assignment agent this resource belongs to — itself for
	// a plain single-resource Agent, or a shared Pool. Cyclic by
	// construction: the resource points at its agent, the agent (if a
	// plain Agent) points back at its one resource.
	Agent AssignmentAgent

	// OnUsageChange, if set, fires after every change to InUse or
	// DownUnits. The model layer uses it to feed the resource's
	// time-weighted Utilization dataset.
	OnUsageChange func(r *Resource)

	// OnFullRelease, if set, fires once per full release of an assignment
	// holding units of this resource, including the forced release of a
	// holder during a take-down, feeding the ProcessTime dataset.
	OnFullRelease func(r *Resource, a *Assignment)
}

// NewResource constructs a Resource. capacity must be >= 1.
func NewResource(id, class string, capacity uint32) *Resource {
	if capacity < 1 {
		panic("resource: capacity must be >= 1")
	}
	return &Resource{ID: id, Class: class, Capacity: capacity}
}

// InUse returns the number of units currently assigned.
func (r *Resource) InUse() uint32 { return r.inUse }

// DownUnits returns the number of units currently down.
func (r *Resource) DownUnits() uint32 { return r.downUnits }

// GoingDown reports whether the resource is in the soft-stop state: still
// serving existing holders but excluded from new assignments.
func (r *Resource) GoingDown() bool { return r.goingDown }

// AvailableForNewRequest is capacity - in_use - down_units, or zero while
// going_down, regardless of arithmetic headroom.
func (r *Resource) AvailableForNewRequest() uint32 {
	if r.goingDown || r.inUse+r.downUnits >= r.Capacity {
		return 0
	}
	return r.Capacity - r.inUse - r.downUnits
}

// ClassMatches reports whether this resource satisfies a pool selector
// naming class. Matching is by exact name (empty selector matches any);
// subtype hierarchies are modeled by giving resources their superclass
// name.
func (r *Resource) ClassMatches(class string) bool {
	return class == "" || r.Class == class
}

func (r *Resource) notifyUsage() {
	if r.OnUsageChange != nil {
		r.OnUsageChange(r)
	}
}

func (r *Resource) addInUse(n uint32) error {
	if r.inUse+r.downUnits+n > r.Capacity {
		return &faults.SchedulerInvariantViolated{Msg: "in_use would exceed capacity on " + r.ID}
	}
	r.inUse += n
	r.notifyUsage()
	return nil
}

func (r *Resource) releaseInUse(n uint32) {
	if n > r.inUse {
		r.inUse = 0
	} else {
		r.inUse -= n
	}
	r.notifyUsage()
}

// SetGoingDown flips the soft-stop flag. Exported for downtime.Agent,
// which owns the only legitimate caller of this transition.
func (r *Resource) SetGoingDown(v bool) { r.goingDown = v }

// TakeDownAll marks the entire resource down, regardless of how many units
// are currently in use — a hard take-down always affects the resource as a
// whole. The down state supersedes going_down: the three states are
// mutually exclusive.
func (r *Resource) TakeDownAll() {
	r.downUnits = r.Capacity
	r.goingDown = false
	r.notifyUsage()
}

// BringUpAll clears both the down and going-down state.
func (r *Resource) BringUpAll() {
	r.downUnits = 0
	r.goingDown = false
	r.notifyUsage()
}

// Holders returns every Assignment currently holding at least one unit of
// r, used by a downtime.Agent to find who to interrupt on a hard
// take-down.
func (r *Resource) Holders() []*Assignment {
	out := make([]*Assignment, len(r.holders))
	copy(out, r.holders)
	return out
}

func (r *Resource) addHolder(a *Assignment) {
	r.holders = append(r.holders, a)
}

func (r *Resource) removeHolder(a *Assignment) {
	for i, h := range r.holders {
		if h == a {
			r.holders = append(r.holders[:i:i], r.holders[i+1:]...)
			return
		}
	}
}
