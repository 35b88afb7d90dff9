package model

import (
	"github.com/desim/desim/faults"
	"github.com/desim/desim/process"
	"github.com/desim/desim/simtime"
)

// Entity is a transient model object with an immutable ID, a mutable
// location, and a reference to its process. Created by a source,
// destroyed on move-to-sink.
type Entity struct {
	id    string
	class string
	m     *Model

	location  *Location
	proc      *process.Process
	created   simtime.SimTime
	destroyed bool
}

// NewEntity creates an entity outside of any location. Sources are the
// usual creator; tests build entities directly.
func (m *Model) NewEntity(id, class string) *Entity {
	return &Entity{id: id, class: class, m: m, created: m.CurrentTime()}
}

// ID returns the entity's element ID.
func (e *Entity) ID() string { return e.id }

// Class returns the entity's class name.
func (e *Entity) Class() string { return e.class }

// Location returns where the entity currently resides, nil if nowhere
// (not yet placed, or destroyed).
func (e *Entity) Location() *Location { return e.location }

// Process returns the process driving this entity's lifetime.
func (e *Entity) Process() *process.Process { return e.proc }

// SetProcess associates the driving process; sources call this at
// generation time.
func (e *Entity) SetProcess(p *process.Process) { e.proc = p }

// CreateTime returns when the entity was generated.
func (e *Entity) CreateTime() simtime.SimTime { return e.created }

// Destroyed reports whether the entity has reached a sink.
func (e *Entity) Destroyed() bool { return e.destroyed }

// TimeInSystem is now minus create time, the usual sink-side statistic.
func (e *Entity) TimeInSystem() simtime.SimTime {
	delta, err := e.m.CurrentTime().Sub(e.created)
	if err != nil {
		return simtime.FromScalar(0)
	}
	return delta
}

// MoveTo relocates the entity: exit bookkeeping at the old location,
// entry bookkeeping at the new one. Moving to a sink destroys the
// entity.
func (e *Entity) MoveTo(loc *Location) error {
	if e.destroyed {
		return &faults.InvalidRequest{Msg: "entity " + e.id + " was already destroyed"}
	}

	if e.location != nil {
		e.location.exit(e)
	}
	e.location = loc
	loc.enter(e)

	if loc.sink {
		loc.exit(e)
		e.location = nil
		e.destroyed = true
	}
	return nil
}
