package model_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/desim/desim/dataset"
	"github.com/desim/desim/downtime"
	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
	"github.com/desim/desim/model"
	"github.com/desim/desim/process"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/rng"
	"github.com/desim/desim/simtime"
)

var _ = Describe("Going-down with timeout", func() {
	It("hard-stops a lingering holder, who recovers on another resource", func() {
		m := model.New(1, 0, dataset.NullSink{})

		primary := m.NewResource("", "TellerA", "Teller", 1)
		backup := m.NewResource("", "TellerB", "Teller", 1)

		da := downtime.NewAgent("BreakA", primary, m, m.NewID, m.NotifyHolder)
		m.WatchDowntime(da)

		var downAt, doneAt float64
		var recoveredOn *resource.Resource

		customer := m.NewProcess("Customer.Process", 0, func(p *process.Process) error {
			a, err := p.Acquire(primary, 1)
			if err != nil {
				return err
			}

			err = p.WaitFor(secs(20))
			var down *faults.ResourceDown
			if errors.As(err, &down) {
				downAt = m.CurrentTime().Seconds()
				p.Release(a)

				b, err := p.Acquire(backup, 1)
				if err != nil {
					return err
				}
				recoveredOn = backup
				if err := p.WaitFor(secs(6)); err != nil {
					return err
				}
				p.Release(b)
			} else if err != nil {
				return err
			}

			doneAt = m.CurrentTime().Seconds()
			return nil
		})
		customer.Start()

		// The break starts at t=10 with a four-second grace period; the
		// customer is still being served at t=14, so the hard stop fires.
		_, err := m.ScheduleIn(secs(10), engine.PriorityDefault,
			engine.HandlerFunc(func(engine.Event) error {
				return da.SetGoingDown(secs(4))
			}))
		Expect(err).To(Succeed())

		Expect(m.Run(nil)).To(Succeed())

		Expect(downAt).To(Equal(14.0))
		Expect(recoveredOn).To(Equal(backup))
		Expect(doneAt).To(Equal(20.0))
		Expect(primary.DownUnits()).To(Equal(primary.Capacity))
		Expect(backup.InUse()).To(Equal(uint32(0)))
	})
})

func buildTinyShop(m *model.Model) *model.EntitySink {
	shop := m.NewLocation(nil, "Shop")
	queue := m.NewQueue(shop, "Line")
	server := m.NewResource(shop.Name(), "Server", "Server", 1)
	src := m.NewSource(shop, "Door")
	exit := m.NewSink(shop, "Out")

	interarrival := m.Rand.NewSequence(rng.Exponential, 1, 5)
	service := m.Rand.NewSequence(rng.Exponential, 2, 4)

	stats := process.NewClassStats(m.Data, "ShopJob")

	src.AddGenerator(&model.Generator{
		EntityClass:  "Job",
		Interarrival: interarrival,
		Stats:        stats,
		Run: func(e *model.Entity, p *process.Process) error {
			if err := e.MoveTo(queue.Location); err != nil {
				return err
			}
			err := p.WithAcquire(server, 1, func(*resource.Assignment) error {
				return p.WaitFor(simtime.FromScalar(service.Next()))
			})
			if err != nil {
				return err
			}
			return e.MoveTo(exit.Location)
		},
	})
	src.Start()
	return exit
}

var _ = Describe("RunSingle", func() {
	It("emits run, batch and dataset events in order", func() {
		sink := &recordingSink{}
		m := model.New(1, 0, sink)
		buildTinyShop(m)

		Expect(m.RunSingle(secs(50), secs(100), 2)).To(Succeed())

		var structure []string
		for _, l := range sink.lines {
			switch l[0:2] {
			case "be", "en": // beginRun/beginBatch/endBatch/endRun
				structure = append(structure, l)
			}
		}
		Expect(structure).To(Equal([]string{
			"beginRun 1",
			"beginBatch 0",
			"endBatch 0",
			"beginBatch 1",
			"endBatch 1",
			"beginBatch 2",
			"endBatch 2",
			"endRun 1",
		}))
	})

	It("is deterministic: same run index reproduces the emission sequence", func() {
		run := func() []string {
			sink := &recordingSink{}
			m := model.New(3, 0, sink)
			buildTinyShop(m)
			Expect(m.RunSingle(secs(50), secs(100), 3)).To(Succeed())
			return sink.lines
		}

		Expect(run()).To(Equal(run()))
	})

	It("draws different samples for different run indices", func() {
		run := func(idx int) []string {
			sink := &recordingSink{}
			m := model.New(idx, 0, sink)
			buildTinyShop(m)
			Expect(m.RunSingle(secs(50), secs(100), 1)).To(Succeed())
			return sink.lines
		}

		Expect(run(1)).NotTo(Equal(run(2)))
	})
})
