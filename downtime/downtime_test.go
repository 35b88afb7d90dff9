package downtime_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/desim/desim/agent"
	"github.com/desim/desim/downtime"
	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/simtime"
)

func idGen() func() string {
	n := 0
	return func() string {
		n++
		return string(rune('a' + n))
	}
}

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

func secs(v float64) simtime.SimTime { return simtime.New(v, simtime.Seconds) }

var _ = Describe("Schedule", func() {
	It("rejects overlapping intervals", func() {
		s := downtime.Schedule{
			CycleLength: secs(100),
			Intervals: []downtime.Interval{
				{Offset: secs(10), Duration: secs(20)},
				{Offset: secs(25), Duration: secs(10)},
			},
		}
		Expect(s.Validate()).To(HaveOccurred())
	})

	It("rejects an interval extending past the cycle", func() {
		s := downtime.Schedule{
			CycleLength: secs(100),
			Intervals:   []downtime.Interval{{Offset: secs(90), Duration: secs(20)}},
		}
		Expect(s.Validate()).To(HaveOccurred())
	})

	It("accepts non-overlapping intervals inside the cycle", func() {
		s := downtime.Schedule{
			CycleLength: secs(100),
			Intervals: []downtime.Interval{
				{Offset: secs(10), Duration: secs(10)},
				{Offset: secs(50), Duration: secs(10)},
			},
		}
		Expect(s.Validate()).To(Succeed())
	})
})

var _ = Describe("Agent", func() {
	var (
		loop *engine.SerialLoop
		res  *resource.Resource
		ra   *resource.Agent
	)

	BeforeEach(func() {
		loop = engine.NewSerialLoop()
		res = resource.NewResource("Shop.Machine", "Machine", 1)
		ra = resource.NewAgent(res, loop, idGen())
	})

	It("notifies and forcibly releases holders on a hard take-down", func() {
		var held *resource.Assignment
		req := &resource.Request{ID: "r", ProcessID: "p", NumUnits: 1,
			Selector: resource.Selector{Resource: res}}
		req.Resolve = func(a *resource.Assignment, err error) { held = a }
		Expect(ra.Enqueue(req)).To(Succeed())
		Expect(held).NotTo(BeNil())

		var notified error
		da := downtime.NewAgent("Shop.MachineBreak", res, loop, idGen(),
			func(a *resource.Assignment, err error) { notified = err })

		da.TakeDownResource()

		var down *faults.ResourceDown
		Expect(errors.As(notified, &down)).To(BeTrue())
		Expect(held.Released()).To(BeTrue())
		Expect(res.InUse()).To(Equal(uint32(0)))
		Expect(res.DownUnits()).To(Equal(res.Capacity))
		Expect(da.IsDown()).To(BeTrue())
	})

	It("still records the holder's full release on a forced take-down", func() {
		var releases int
		res.OnFullRelease = func(*resource.Resource, *resource.Assignment) { releases++ }

		req := &resource.Request{ID: "r", ProcessID: "p", NumUnits: 1,
			Selector: resource.Selector{Resource: res}}
		Expect(ra.Enqueue(req)).To(Succeed())

		da := downtime.NewAgent("Shop.MachineBreak", res, loop, idGen(), nil)
		da.TakeDownResource()

		Expect(releases).To(Equal(1))
	})

	It("keeps existing holders but blocks new requests while going down", func() {
		var held *resource.Assignment
		req := &resource.Request{ID: "r", ProcessID: "p", NumUnits: 1,
			Selector: resource.Selector{Resource: res}}
		req.Resolve = func(a *resource.Assignment, err error) { held = a }
		Expect(ra.Enqueue(req)).To(Succeed())

		da := downtime.NewAgent("Shop.MachineBreak", res, loop, idGen(), nil)
		Expect(da.SetGoingDown(simtime.Infinite())).To(Succeed())

		Expect(held.Released()).To(BeFalse())
		Expect(res.AvailableForNewRequest()).To(Equal(uint32(0)))
		Expect(da.IsGoingDown()).To(BeTrue())
	})

	It("escalates going-down to a hard take-down when the timeout fires", func() {
		req := &resource.Request{ID: "r", ProcessID: "p", NumUnits: 1,
			Selector: resource.Selector{Resource: res}}
		var held *resource.Assignment
		req.Resolve = func(a *resource.Assignment, err error) { held = a }
		Expect(ra.Enqueue(req)).To(Succeed())

		da := downtime.NewAgent("Shop.MachineBreak", res, loop, idGen(), nil)
		Expect(da.SetGoingDown(secs(4))).To(Succeed())

		Expect(loop.Run(nil)).To(Succeed())

		Expect(loop.CurrentTime().Seconds()).To(Equal(4.0))
		Expect(da.IsDown()).To(BeTrue())
		Expect(held.Released()).To(BeTrue())
	})

	It("cancels the pending hard take-down when brought up first", func() {
		da := downtime.NewAgent("Shop.MachineBreak", res, loop, idGen(), nil)
		Expect(da.SetGoingDown(secs(4))).To(Succeed())

		da.BringUpResource()
		Expect(loop.Run(nil)).To(Succeed())
		Expect(da.IsDown()).To(BeFalse())
		Expect(da.IsGoingDown()).To(BeFalse())
	})

	It("publishes RSRC_UP and reprocesses the queue on bring-up", func() {
		da := downtime.NewAgent("Shop.MachineBreak", res, loop, idGen(), nil)
		da.TakeDownResource()

		var resolvedID string
		req := &resource.Request{ID: "r", ProcessID: "p", NumUnits: 1,
			Selector: resource.Selector{Resource: res}}
		req.Resolve = func(a *resource.Assignment, err error) { resolvedID = a.ID }
		Expect(ra.Enqueue(req)).To(Succeed())
		Expect(resolvedID).To(BeEmpty())

		sub := &upRecorder{}
		sub.Base = agent.NewBase("Sub", idGen())
		sub.On(resource.MsgResourceUp, func(msg *agent.Message) bool {
			sub.got = msg.Payload.(string)
			return true
		})
		da.AddSubscriber(sub, resource.MsgResourceUp)

		da.BringUpResource()
		sub.ProcessQueue()

		Expect(resolvedID).NotTo(BeEmpty())
		Expect(sub.got).To(Equal(res.ID))
	})
})

type upRecorder struct {
	*agent.Base
	got string
}

var _ = Describe("ScheduledAgent", func() {
	It("takes the resource down at each interval and brings it back up", func() {
		loop := engine.NewSerialLoop()
		res := resource.NewResource("Shop.Machine", "Machine", 1)
		resource.NewAgent(res, loop, idGen())

		var transitions []string
		res.OnUsageChange = func(r *resource.Resource) {
			if r.DownUnits() > 0 {
				transitions = append(transitions,
					"down@"+loop.CurrentTime().String())
			} else {
				transitions = append(transitions,
					"up@"+loop.CurrentTime().String())
			}
		}

		sa, err := downtime.NewScheduledAgent("Shop.Break", res, loop, idGen(), nil,
			downtime.Schedule{
				CycleLength: secs(100),
				Intervals:   []downtime.Interval{{Offset: secs(20), Duration: secs(10)}},
			})
		Expect(err).To(Succeed())
		sa.Start()

		stop := func(next simtime.SimTime) bool { return next.Greater(secs(250)) }
		Expect(loop.Run(stop)).To(Succeed())

		Expect(transitions).To(Equal([]string{
			"down@20 seconds", "up@30 seconds",
			"down@120 seconds", "up@130 seconds",
			"down@220 seconds", "up@230 seconds",
		}))
	})
})

var _ = Describe("FailureAgent", func() {
	It("alternates time-to-failure and time-to-repair", func() {
		loop := engine.NewSerialLoop()
		res := resource.NewResource("Shop.Machine", "Machine", 1)
		resource.NewAgent(res, loop, idGen())

		var transitions []string
		res.OnUsageChange = func(r *resource.Resource) {
			if r.DownUnits() > 0 {
				transitions = append(transitions, "down@"+loop.CurrentTime().String())
			} else {
				transitions = append(transitions, "up@"+loop.CurrentTime().String())
			}
		}

		fa := downtime.NewFailureAgent("Shop.Failure", res, loop, idGen(), nil,
			&fixedSeq{values: []float64{50}}, &fixedSeq{values: []float64{5}})
		fa.Start()

		stop := func(next simtime.SimTime) bool { return next.Greater(secs(120)) }
		Expect(loop.Run(stop)).To(Succeed())

		Expect(transitions).To(Equal([]string{
			"down@50 seconds", "up@55 seconds",
			"down@105 seconds", "up@110 seconds",
		}))
	})
})
