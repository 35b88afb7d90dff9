package resource

import (
	"fmt"

	"github.com/desim/desim/faults"
	"github.com/desim/desim/simtime"
)

// Grant is one resource's contribution to an Assignment.
type Grant struct {
	Resource *Resource
	Units    uint32
}

// releaser is implemented by whichever AssignmentAgent (or Pool) committed
// an Assignment, so Release/Subtract can route units back to the right
// owner without Assignment needing to know about Agent/Pool directly.
type releaser interface {
	releaseUnits(r *Resource, n uint32)
	triggerRequeue()
}

// Assignment is the record of units of one or more resources handed to a
// specific process. A pool acquire can span multiple resources of the
// matched class; a plain Agent acquire always yields a single-resource
// Assignment.
type Assignment struct {
	ID          string
	ProcessID   string
	AcquireTime simtime.SimTime

	grants   []Grant
	released bool
	owner    releaser
}

// Resources lists the distinct resources this assignment holds units of.
func (a *Assignment) Resources() []*Resource {
	out := make([]*Resource, 0, len(a.grants))
	for _, g := range a.grants {
		out = append(out, g.Resource)
	}
	return out
}

// Contains reports whether the assignment still holds any units of r.
func (a *Assignment) Contains(r *Resource) bool {
	return a.UnitsOf(r) > 0
}

// UnitsOf returns how many units of r this assignment currently holds.
func (a *Assignment) UnitsOf(r *Resource) uint32 {
	for _, g := range a.grants {
		if g.Resource == r {
			return g.Units
		}
	}
	return 0
}

// TotalUnits is the sum of units held across every resource.
func (a *Assignment) TotalUnits() uint32 {
	var total uint32
	for _, g := range a.grants {
		total += g.Units
	}
	return total
}

// Released reports whether every unit has already been returned.
func (a *Assignment) Released() bool { return a.released }

// Subtract releases n units of resource r from this assignment, a partial
// release. It is an error to subtract more units than the assignment
// holds of r.
func (a *Assignment) Subtract(r *Resource, n uint32) error {
	for i, g := range a.grants {
		if g.Resource != r {
			continue
		}
		if n > g.Units {
			return &faults.InvalidRequest{Msg: fmt.Sprintf(
				"assignment %s holds only %d units of %s, cannot subtract %d", a.ID, g.Units, r.ID, n)}
		}
		a.owner.releaseUnits(r, n)
		if n == g.Units {
			a.grants = append(a.grants[:i:i], a.grants[i+1:]...)
			r.removeHolder(a)
			if r.OnFullRelease != nil {
				r.OnFullRelease(r, a)
			}
		} else {
			a.grants[i].Units -= n
		}
		if len(a.grants) == 0 {
			a.released = true
		}
		a.owner.triggerRequeue()
		return nil
	}
	return &faults.InvalidRequest{Msg: "assignment " + a.ID + " does not hold resource " + r.ID}
}

// SubtractAll releases every unit of resource r this assignment holds.
func (a *Assignment) SubtractAll(r *Resource) error {
	return a.Subtract(r, a.UnitsOf(r))
}

// Release returns every unit in this assignment to its owning agent(s).
// Idempotent: releasing an already-released assignment is a no-op,
// matching scoped-acquire's "released exactly once" guarantee even when
// both an explicit Release and a scope exit race to reclaim the same
// assignment.
func (a *Assignment) Release() {
	if a.released {
		return
	}
	for _, g := range a.grants {
		a.owner.releaseUnits(g.Resource, g.Units)
		g.Resource.removeHolder(a)
		if g.Resource.OnFullRelease != nil {
			g.Resource.OnFullRelease(g.Resource, a)
		}
	}
	a.grants = nil
	a.released = true
	a.owner.triggerRequeue()
}
