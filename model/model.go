// Package model implements the static-model layer — entities, locations,
// queues, sources and sinks — together with the per-run context object
// that ties the clock, RNG registry, element registry and process table
// into one replication. All run-scoped mutable state lives on the Model
// and is passed explicitly; there are no process-wide globals beyond the
// ID generator and simtime's configured base unit.
package model

import (
	"github.com/sirupsen/logrus"

	"github.com/desim/desim/agent"
	"github.com/desim/desim/dataset"
	"github.com/desim/desim/downtime"
	"github.com/desim/desim/engine"
	"github.com/desim/desim/process"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/rng"
	"github.com/desim/desim/simtime"
)

// Model is one replication's run context. It implements process.Env and
// receives RSRC_UP publications from downtime agents it watches.
type Model struct {
	*engine.SerialLoop
	*agent.Base

	Rand *rng.Registry
	Data *dataset.Registry

	run       int
	processes map[string]*process.Process
	upWaiters map[string][]func(upTime simtime.SimTime)

	log *logrus.Entry
}

// New constructs the run context for replication run, emitting datasets to
// sink. A nil sink discards all emissions.
func New(run int, streamsPerRun int, sink dataset.Sink) *Model {
	if streamsPerRun <= 0 {
		streamsPerRun = rng.DefaultStreamsPerRun
	}

	loop := engine.NewSerialLoop()
	m := &Model{
		SerialLoop: loop,
		Rand:       rng.NewRegistry(run, streamsPerRun),
		run:        run,
		processes:  make(map[string]*process.Process),
		upWaiters:  make(map[string][]func(simtime.SimTime)),
		log:        logrus.WithField("component", "model").WithField("run", run),
	}
	m.Base = agent.NewBase("Model", m.NewID)
	m.Data = dataset.NewRegistry(loop, sink, run)

	m.On(resource.MsgResourceUp, func(msg *agent.Message) bool {
		resourceID, ok := msg.Payload.(string)
		if !ok {
			return true
		}
		waiters := m.upWaiters[resourceID]
		delete(m.upWaiters, resourceID)
		now := m.CurrentTime()
		for _, w := range waiters {
			w(now)
		}
		return true
	})

	return m
}

// RunIndex returns the replication index.
func (m *Model) RunIndex() int { return m.run }

// NewID mints an element/message ID from the process-wide generator. Runs
// default to the sequential generator so dataset emission order stays
// byte-identical across replications with the same seed.
func (m *Model) NewID() string {
	return engine.GetIDGenerator().Generate()
}

// Deliver accepts a message and drains the queue immediately; the Model's
// only subscription is RSRC_UP fan-out from watched downtime agents.
func (m *Model) Deliver(msg *agent.Message) {
	m.Base.Deliver(msg)
	m.ProcessQueue()
}

// AwaitResourceUp implements process.Env: resume fires when resourceID's
// next RSRC_UP publication arrives.
func (m *Model) AwaitResourceUp(resourceID string, resume func(upTime simtime.SimTime)) {
	m.upWaiters[resourceID] = append(m.upWaiters[resourceID], resume)
}

// NewProcess creates and registers a Process whose requests carry
// priority. The process unregisters itself on completion.
func (m *Model) NewProcess(id string, priority int, body process.Body) *process.Process {
	p := process.New(id, priority, m, body)
	m.processes[id] = p
	p.OnComplete(func(error) { delete(m.processes, id) })
	return p
}

// ProcessByID returns the live process with the given element ID, nil if
// none.
func (m *Model) ProcessByID(id string) *process.Process { return m.processes[id] }

// NotifyHolder is the downtime.HolderNotifier for this run: it maps the
// assignment's process ID back to a suspended coroutine and injects err.
func (m *Model) NotifyHolder(a *resource.Assignment, err error) {
	if p := m.processes[a.ProcessID]; p != nil {
		p.Interrupt(err)
	}
}

// WatchDowntime subscribes the run context to a downtime agent's RSRC_UP
// publications so WaitForThroughDowntime waiters can be woken.
func (m *Model) WatchDowntime(a *downtime.Agent) {
	a.AddSubscriber(m, resource.MsgResourceUp)
}

// NewResource creates a resource with its own single-resource assignment
// agent, registers it as a model element, and wires its Utilization
// (time-weighted, normalized by capacity) and ProcessTime (unweighted,
// per fully-released assignment) datasets.
func (m *Model) NewResource(parent, name, class string, capacity uint32) *resource.Resource {
	id := engine.BuildName(parent, name)
	engine.NameMustBeValid(id)

	res := resource.NewResource(id, class, capacity)
	resource.NewAgent(res, m, m.NewID)
	m.instrumentResource(res)
	return res
}

// NewPool creates an empty resource pool registered as a model element.
// Members added with AddResource route their releases here.
func (m *Model) NewPool(parent, name string) *resource.Pool {
	id := engine.BuildName(parent, name)
	engine.NameMustBeValid(id)
	m.Data.RegisterElement(id, "Pool", "pool")
	return resource.NewPool(id, m, m.NewID)
}

// NewPoolResource creates a resource intended for pool membership: it is
// instrumented like NewResource but gets no assignment agent of its own —
// Pool.AddResource wires the pool as its agent.
func (m *Model) NewPoolResource(parent, name, class string, capacity uint32) *resource.Resource {
	id := engine.BuildName(parent, name)
	engine.NameMustBeValid(id)

	res := resource.NewResource(id, class, capacity)
	m.instrumentResource(res)
	return res
}

func (m *Model) instrumentResource(res *resource.Resource) {
	m.Data.RegisterElement(res.ID, res.Class, "resource")

	util := m.Data.NewTimeWeighted(res.ID, "Utilization", "float")
	res.OnUsageChange = func(r *resource.Resource) {
		util.SetValue(float64(r.InUse()) / float64(r.Capacity))
	}

	procTime := m.Data.NewCollector(res.ID, "ProcessTime", "simtime")
	res.OnFullRelease = func(r *resource.Resource, a *resource.Assignment) {
		held, err := m.CurrentTime().Sub(a.AcquireTime)
		if err != nil {
			return
		}
		procTime.AddValue(held.Seconds())
	}
}

// NewScheduledDowntime creates a scheduled downtime agent for res, wired
// to interrupt holders through this run's process table and watched for
// RSRC_UP.
func (m *Model) NewScheduledDowntime(parent, name string, res *resource.Resource, schedule downtime.Schedule) (*downtime.ScheduledAgent, error) {
	id := engine.BuildName(parent, name)
	engine.NameMustBeValid(id)

	sa, err := downtime.NewScheduledAgent(id, res, m, m.NewID, m.NotifyHolder, schedule)
	if err != nil {
		return nil, err
	}
	m.WatchDowntime(sa.Agent)
	return sa, nil
}

// NewFailureDowntime creates a failure agent for res from time-to-failure
// and time-to-repair sample sequences.
func (m *Model) NewFailureDowntime(parent, name string, res *resource.Resource, ttf, ttr rng.Sequence) *downtime.FailureAgent {
	id := engine.BuildName(parent, name)
	engine.NameMustBeValid(id)

	fa := downtime.NewFailureAgent(id, res, m, m.NewID, m.NotifyHolder, ttf, ttr)
	m.WatchDowntime(fa.Agent)
	return fa
}

func stopAfter(boundary simtime.SimTime) func(next simtime.SimTime) bool {
	return func(next simtime.SimTime) bool { return next.Greater(boundary) }
}

// RunSingle drives one replication: warmup (emitted as batch 0), then
// nbatches batches of batchLength each. Batch boundaries split open
// time-weighted intervals so each batch integrates over exactly its own
// span.
func (m *Model) RunSingle(warmup, batchLength simtime.SimTime, nbatches int) error {
	m.Data.BeginRun()
	m.log.WithFields(logrus.Fields{
		"warmup":   warmup.String(),
		"batch":    batchLength.String(),
		"nbatches": nbatches,
	}).Debug("model: starting replication")

	boundary := warmup
	if err := m.SerialLoop.Run(stopAfter(boundary)); err != nil {
		return err
	}

	for b := 1; b <= nbatches; b++ {
		m.Data.BeginBatch(b, boundary.Seconds())
		next, err := boundary.Add(batchLength)
		if err != nil {
			return err
		}
		boundary = next
		if err := m.SerialLoop.Run(stopAfter(boundary)); err != nil {
			return err
		}
	}

	m.Data.EndRun(boundary.Seconds())
	m.Finished()
	return nil
}
