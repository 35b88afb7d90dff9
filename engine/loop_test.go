package engine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/desim/desim/simtime"
)

var _ = Describe("SerialLoop", func() {
	var loop *SerialLoop

	BeforeEach(func() {
		loop = NewSerialLoop()
	})

	It("dispatches events in (time, priority, sequence) order", func() {
		var order []string

		record := func(name string) HandlerFunc {
			return func(Event) error {
				order = append(order, name)
				return nil
			}
		}

		seq := uint64(0)
		next := func() uint64 { seq++; return seq }

		loop.Schedule(NewEvent(simtime.New(4, simtime.Seconds), PriorityDefault, next(), record("t4")))
		loop.Schedule(NewEvent(simtime.New(2, simtime.Seconds), PriorityDefault, next(), record("t2")))
		loop.Schedule(NewEvent(simtime.New(2, simtime.Seconds), PriorityDefault, next(), record("t2b")))
		loop.Schedule(NewEvent(simtime.New(3, simtime.Seconds), PriorityDefault, next(), record("t3")))

		Expect(loop.Run(nil)).To(Succeed())
		Expect(order).To(Equal([]string{"t2", "t2b", "t3", "t4"}))
	})

	It("lets a handler schedule more events at the current time, appended to the tail", func() {
		var order []string
		seq := uint64(0)
		next := func() uint64 { seq++; return seq }

		var later HandlerFunc = func(Event) error {
			order = append(order, "later")
			return nil
		}

		var first HandlerFunc = func(Event) error {
			order = append(order, "first")
			loop.Schedule(NewEvent(loop.CurrentTime(), PriorityDefault, next(), later))
			return nil
		}

		var second HandlerFunc = func(Event) error {
			order = append(order, "second")
			return nil
		}

		t := simtime.New(1, simtime.Seconds)
		loop.Schedule(NewEvent(t, PriorityDefault, next(), first))
		loop.Schedule(NewEvent(t, PriorityDefault, next(), second))

		Expect(loop.Run(nil)).To(Succeed())
		Expect(order).To(Equal([]string{"first", "second", "later"}))
	})

	It("stops when stop(next) is true", func() {
		count := 0
		seq := uint64(0)
		next := func() uint64 { seq++; return seq }
		var h HandlerFunc = func(Event) error { count++; return nil }

		for i := 1; i <= 5; i++ {
			loop.Schedule(NewEvent(simtime.New(float64(i), simtime.Seconds), PriorityDefault, next(), h))
		}

		stopAt := simtime.New(3, simtime.Seconds)
		Expect(loop.Run(func(t simtime.SimTime) bool { return !t.Less(stopAt) })).To(Succeed())
		Expect(count).To(Equal(2))
	})

	It("skips cancelled events", func() {
		count := 0
		seq := uint64(0)
		next := func() uint64 { seq++; return seq }
		var h HandlerFunc = func(Event) error { count++; return nil }

		evt := NewEvent(simtime.New(1, simtime.Seconds), PriorityDefault, next(), h)
		loop.Schedule(evt)
		loop.Cancel(evt)
		loop.Schedule(NewEvent(simtime.New(2, simtime.Seconds), PriorityDefault, next(), h))

		Expect(loop.Run(nil)).To(Succeed())
		Expect(count).To(Equal(1))
	})

	It("invokes registered simulation-end handlers with the final time", func() {
		seq := uint64(0)
		loop.Schedule(NewEvent(simtime.New(7, simtime.Seconds), PriorityDefault, func() uint64 { seq++; return seq }(),
			HandlerFunc(func(Event) error { return nil })))

		Expect(loop.Run(nil)).To(Succeed())

		var got simtime.SimTime
		loop.RegisterSimulationEndHandler(SimulationEndHandlerFunc(func(now simtime.SimTime) { got = now }))
		loop.Finished()
		Expect(got.Equal(simtime.New(7, simtime.Seconds))).To(BeTrue())
	})
})
