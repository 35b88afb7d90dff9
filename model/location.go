package model

import (
	"github.com/desim/desim/dataset"
	"github.com/desim/desim/engine"
	"github.com/desim/desim/simtime"
)

// Location is a tree-structured static object entities reside in. It
// maintains three datasets: Population (time-weighted), Entries
// (unweighted, one observation per entry) and Time (unweighted,
// per-entity exit delta).
type Location struct {
	id       string
	parent   *Location
	children []*Location
	m        *Model

	// population keeps entry order, so the head is always the
	// longest-resident entity — a SimQueue just reads this.
	population []*Entity
	entryTime  map[*Entity]simtime.SimTime

	popCounter *dataset.Counter
	entries    *dataset.Collector
	timeIn     *dataset.Collector

	// sink marks a terminal location: entering destroys the entity.
	sink bool
}

// NewLocation creates a location under parent (nil for a root location).
func (m *Model) NewLocation(parent *Location, name string) *Location {
	parentID := ""
	if parent != nil {
		parentID = parent.id
	}
	id := engine.BuildName(parentID, name)
	engine.NameMustBeValid(id)

	loc := &Location{
		id:        id,
		parent:    parent,
		m:         m,
		entryTime: make(map[*Entity]simtime.SimTime),
	}
	if parent != nil {
		parent.children = append(parent.children, loc)
	}

	m.Data.RegisterElement(id, "Location", "location")
	loc.popCounter = dataset.NewCounter(m.Data, id, "Population")
	loc.entries = m.Data.NewCollector(id, "Entries", "int")
	loc.timeIn = m.Data.NewCollector(id, "Time", "simtime")
	return loc
}

// Name returns the location's dotted element ID.
func (l *Location) Name() string { return l.id }

// Parent returns the owning location, nil for a root.
func (l *Location) Parent() *Location { return l.parent }

// Children returns the child locations.
func (l *Location) Children() []*Location { return l.children }

// CurrentPopulation returns how many entities currently reside here.
func (l *Location) CurrentPopulation() int { return len(l.population) }

// Entries returns the total number of entries over the run so far.
func (l *Location) Entries() int { return l.entries.Entries() }

// Resident reports whether e is currently inside this location.
func (l *Location) Resident(e *Entity) bool {
	_, ok := l.entryTime[e]
	return ok
}

func (l *Location) enter(e *Entity) {
	l.population = append(l.population, e)
	l.entryTime[e] = l.m.CurrentTime()
	_ = l.popCounter.Increment(nil, 1)
	l.entries.AddValue(1)
}

func (l *Location) exit(e *Entity) {
	enterTime, ok := l.entryTime[e]
	if !ok {
		return
	}
	delete(l.entryTime, e)
	for i, resident := range l.population {
		if resident == e {
			l.population = append(l.population[:i:i], l.population[i+1:]...)
			break
		}
	}
	l.popCounter.Decrement(1)
	if delta, err := l.m.CurrentTime().Sub(enterTime); err == nil {
		l.timeIn.AddValue(delta.Seconds())
	}
}

// Queue is the queue specialization of Location: Size is a population
// synonym, and Head exposes the longest-waiting resident. Entry order is
// reflected, not enforced.
type Queue struct {
	*Location
}

// NewQueue creates a queue location under parent.
func (m *Model) NewQueue(parent *Location, name string) *Queue {
	return &Queue{Location: m.NewLocation(parent, name)}
}

// Size is the queue's current population.
func (q *Queue) Size() int { return q.CurrentPopulation() }

// Head returns the entity that entered earliest, nil when empty.
func (q *Queue) Head() *Entity {
	if len(q.population) == 0 {
		return nil
	}
	return q.population[0]
}

// EntitySink is a terminal location: an entity moved here has its exit
// bookkeeping recorded and is then destroyed.
type EntitySink struct {
	*Location
}

// NewSink creates an entity sink under parent.
func (m *Model) NewSink(parent *Location, name string) *EntitySink {
	loc := m.NewLocation(parent, name)
	loc.sink = true
	return &EntitySink{Location: loc}
}

// Destroyed returns how many entities have terminated here.
func (s *EntitySink) Destroyed() int { return s.entries.Entries() }
