package model_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/desim/desim/dataset"
	"github.com/desim/desim/downtime"
	"github.com/desim/desim/model"
	"github.com/desim/desim/process"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/simtime"
)

func secs(v float64) simtime.SimTime { return simtime.New(v, simtime.Seconds) }

// fixedSeq yields a repeating cycle of values.
type fixedSeq struct {
	values []float64
	i      int
}

func (s *fixedSeq) Next() float64 {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}

func (s *fixedSeq) Reset() { s.i = 0 }

// recordingSink captures every sink call as a formatted line.
type recordingSink struct {
	lines []string
}

func (s *recordingSink) OnElement(id, class, typ string) {
	s.lines = append(s.lines, fmt.Sprintf("element %s %s %s", id, class, typ))
}

func (s *recordingSink) OnDataset(id int, elem, name, vt string, tw bool, unit string) {
	s.lines = append(s.lines, fmt.Sprintf("dataset %d %s %s %v", id, elem, name, tw))
}

func (s *recordingSink) PutUnweighted(id, run, batch int, t, v float64) {
	s.lines = append(s.lines, fmt.Sprintf("uw %d %d %d %g %g", id, run, batch, t, v))
}

func (s *recordingSink) PutTimeWeighted(id, run, batch int, from, to, v float64) {
	s.lines = append(s.lines, fmt.Sprintf("tw %d %d %d %g %g %g", id, run, batch, from, to, v))
}

func (s *recordingSink) BeginRun(run int)        { s.lines = append(s.lines, fmt.Sprintf("beginRun %d", run)) }
func (s *recordingSink) BeginBatch(run, b int)   { s.lines = append(s.lines, fmt.Sprintf("beginBatch %d", b)) }
func (s *recordingSink) EndBatch(run, b int)     { s.lines = append(s.lines, fmt.Sprintf("endBatch %d", b)) }
func (s *recordingSink) EndRun(run int)          { s.lines = append(s.lines, fmt.Sprintf("endRun %d", run)) }

var _ = Describe("Entity lifecycle", func() {
	It("moves entities source -> queue -> sink with population bookkeeping", func() {
		m := model.New(1, 0, dataset.NullSink{})

		shop := m.NewLocation(nil, "Shop")
		queue := m.NewQueue(shop, "Line")
		server := m.NewResource(shop.Name(), "Server", "Server", 1)
		src := m.NewSource(shop, "Door")
		exit := m.NewSink(shop, "Out")

		service := &fixedSeq{values: []float64{3}}

		src.AddGenerator(&model.Generator{
			EntityClass:  "Job",
			Interarrival: &fixedSeq{values: []float64{5}},
			Run: func(e *model.Entity, p *process.Process) error {
				if err := e.MoveTo(queue.Location); err != nil {
					return err
				}
				err := p.WithAcquire(server, 1, func(*resource.Assignment) error {
					return p.WaitFor(secs(service.Next()))
				})
				if err != nil {
					return err
				}
				return e.MoveTo(exit.Location)
			},
		})
		src.Start()

		stop := func(next simtime.SimTime) bool { return next.Greater(secs(29)) }
		Expect(m.Run(stop)).To(Succeed())

		// Entities arrive at t=0,5,10,15,20,25 and each needs 3s of
		// service, so all six are gone by t=28.
		Expect(exit.Destroyed()).To(Equal(6))
		Expect(queue.Size()).To(Equal(0))
		Expect(server.InUse()).To(Equal(uint32(0)))
		Expect(src.Entries()).To(Equal(6))
	})

	It("keeps an entity in exactly one location until destroyed", func() {
		m := model.New(1, 0, dataset.NullSink{})
		a := m.NewLocation(nil, "A")
		b := m.NewLocation(nil, "B")
		sink := m.NewSink(nil, "Out")

		e := m.NewEntity("A.Job[1]", "Job")
		Expect(e.MoveTo(a)).To(Succeed())
		Expect(a.Resident(e)).To(BeTrue())

		Expect(e.MoveTo(b)).To(Succeed())
		Expect(a.Resident(e)).To(BeFalse())
		Expect(b.Resident(e)).To(BeTrue())
		Expect(a.CurrentPopulation()).To(Equal(0))
		Expect(b.CurrentPopulation()).To(Equal(1))

		Expect(e.MoveTo(sink.Location)).To(Succeed())
		Expect(e.Destroyed()).To(BeTrue())
		Expect(e.Location()).To(BeNil())
		Expect(b.CurrentPopulation()).To(Equal(0))

		Expect(e.MoveTo(a)).To(HaveOccurred())
	})
})

var _ = Describe("Scheduled downtime with peer coordination", func() {
	It("delays the second agent's break until the first is back up", func() {
		m := model.New(1, 0, dataset.NullSink{})

		r1 := m.NewResource("", "StationA", "Station", 1)
		r2 := m.NewResource("", "StationB", "Station", 1)

		var transitions []string
		record := func(name string) func(*resource.Resource) {
			return func(r *resource.Resource) {
				state := "up"
				if r.DownUnits() > 0 {
					state = "down"
				}
				transitions = append(transitions, fmt.Sprintf(
					"%s %s@%g", name, state, m.CurrentTime().Seconds()))
			}
		}
		r1.OnUsageChange = record("A")
		r2.OnUsageChange = record("B")

		oneBreak := downtime.Schedule{
			CycleLength: secs(1000),
			Intervals:   []downtime.Interval{{Offset: secs(120), Duration: secs(15)}},
		}

		sa1, err := m.NewScheduledDowntime("", "BreakA", r1, oneBreak)
		Expect(err).To(Succeed())
		sa2, err := m.NewScheduledDowntime("", "BreakB", r2, oneBreak)
		Expect(err).To(Succeed())

		// "Don't both be down": the second agent defers while its peer is
		// down, retrying once the peer's break is over.
		sa2.StartTakedown = func(iv downtime.Interval) {
			if r1.DownUnits() > 0 || r1.GoingDown() {
				sa2.Retry(iv, secs(15))
				return
			}
			sa2.DefaultStartTakedown(iv)
		}

		sa1.Start()
		sa2.Start()

		stop := func(next simtime.SimTime) bool { return next.Greater(secs(200)) }
		Expect(m.Run(stop)).To(Succeed())

		Expect(transitions).To(Equal([]string{
			"A down@120", "A up@135",
			"B down@135", "B up@150",
		}))
	})
})
