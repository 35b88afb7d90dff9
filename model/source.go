package model

import (
	"github.com/desim/desim/engine"
	"github.com/desim/desim/process"
	"github.com/desim/desim/rng"
	"github.com/desim/desim/simtime"
)

// Generator describes one entity stream attached to a Source: an entity
// class, an interarrival sample sequence, and the run body each generated
// entity's process executes.
type Generator struct {
	EntityClass  string
	Interarrival rng.Sequence
	Priority     int

	// Run is the process body; it receives the generated entity and the
	// process wrapping its coroutine.
	Run func(e *Entity, p *process.Process) error

	// Stats, when set, records per-class In-Process / Process-Time /
	// Entries datasets shared by every process this generator spawns.
	Stats *process.ClassStats

	count int
}

// Source is a location that generates entities and their processes at
// configured interarrival times. Multiple generators can be attached;
// their schedules are independent.
type Source struct {
	*Location

	m    *Model
	gens []*Generator
}

// NewSource creates a source location under parent.
func (m *Model) NewSource(parent *Location, name string) *Source {
	return &Source{Location: m.NewLocation(parent, name), m: m}
}

// AddGenerator attaches gen to this source.
func (s *Source) AddGenerator(gen *Generator) {
	s.gens = append(s.gens, gen)
}

// Start schedules every generator's first firing at now+0 — the first
// interarrival draw happens immediately.
func (s *Source) Start() {
	for _, gen := range s.gens {
		g := gen
		if _, err := s.m.ScheduleIn(simtime.FromScalar(0), engine.PriorityDefault,
			engine.HandlerFunc(func(engine.Event) error {
				s.fire(g)
				return nil
			})); err != nil {
			panic(err)
		}
	}
}

// fire draws the next interarrival, schedules the next firing,
// instantiates the entity and its process, and schedules the process
// start at now.
func (s *Source) fire(g *Generator) {
	next := simtime.FromScalar(g.Interarrival.Next())
	if _, err := s.m.ScheduleIn(next, engine.PriorityDefault,
		engine.HandlerFunc(func(engine.Event) error {
			s.fire(g)
			return nil
		})); err != nil {
		panic(err)
	}

	g.count++
	entityID := engine.BuildNameWithIndex(s.Name(), g.EntityClass, g.count)
	e := s.m.NewEntity(entityID, g.EntityClass)
	if err := e.MoveTo(s.Location); err != nil {
		panic(err)
	}

	p := s.m.NewProcess(engine.BuildName(entityID, "Process"), g.Priority,
		func(p *process.Process) error {
			return g.Run(e, p)
		})
	if g.Stats != nil {
		p.SetStats(g.Stats)
	}
	e.SetProcess(p)
	p.Start()
}
