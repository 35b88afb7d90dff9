package resource_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
	"github.com/desim/desim/resource"
)

func newIDGen() func() string {
	n := 0
	return func() string {
		n++
		return string(rune('a' + n))
	}
}

// request builds a Request that records its resolution.
type resolved struct {
	assignment *resource.Assignment
	err        error
	done       bool
}

func newRequest(id string, n uint32, priority int, sel resource.Selector) (*resource.Request, *resolved) {
	r := &resolved{}
	req := &resource.Request{
		ID:        id,
		ProcessID: id + ".Process",
		Selector:  sel,
		NumUnits:  n,
		Priority:  priority,
	}
	req.Resolve = func(a *resource.Assignment, err error) {
		r.assignment = a
		r.err = err
		r.done = true
	}
	return req, r
}

var _ = Describe("Agent", func() {
	var (
		loop  *engine.SerialLoop
		res   *resource.Resource
		agent *resource.Agent
	)

	BeforeEach(func() {
		loop = engine.NewSerialLoop()
		res = resource.NewResource("Shop.Server", "Server", 2)
		agent = resource.NewAgent(res, loop, newIDGen())
	})

	It("fulfills a request immediately when capacity allows", func() {
		req, r := newRequest("r1", 1, 0, resource.Selector{Resource: res})

		Expect(agent.Enqueue(req)).To(Succeed())

		Expect(r.done).To(BeTrue())
		Expect(r.err).To(BeNil())
		Expect(r.assignment.TotalUnits()).To(Equal(uint32(1)))
		Expect(res.InUse()).To(Equal(uint32(1)))
	})

	It("rejects n outside [1, capacity]", func() {
		req, _ := newRequest("r1", 3, 0, resource.Selector{Resource: res})
		err := agent.Enqueue(req)

		var invalid *faults.InvalidRequest
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &invalid)).To(BeTrue())
	})

	It("restores in_use after acquire then release", func() {
		req, r := newRequest("r1", 2, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(req)).To(Succeed())
		Expect(res.InUse()).To(Equal(uint32(2)))

		r.assignment.Release()
		Expect(res.InUse()).To(Equal(uint32(0)))
		Expect(r.assignment.Released()).To(BeTrue())
	})

	It("applies hard priority: no backfill behind an unmet higher-priority request", func() {
		// One unit already taken, one free.
		first, f := newRequest("r0", 1, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(first)).To(Succeed())
		Expect(f.done).To(BeTrue())

		high, hr := newRequest("high", 2, 0, resource.Selector{Resource: res})
		low, lr := newRequest("low", 1, 1, resource.Selector{Resource: res})
		Expect(agent.Enqueue(high)).To(Succeed())
		Expect(agent.Enqueue(low)).To(Succeed())

		// The low-priority request would fit, but must not be backfilled.
		Expect(hr.done).To(BeFalse())
		Expect(lr.done).To(BeFalse())

		// Releasing the original unit lets the high-priority request in;
		// the low-priority one still waits.
		f.assignment.Release()
		Expect(hr.done).To(BeTrue())
		Expect(hr.assignment.TotalUnits()).To(Equal(uint32(2)))
		Expect(lr.done).To(BeFalse())
	})

	It("resolves an expired request with TimedOut and skips it at the next release", func() {
		hold, h := newRequest("hold", 2, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(hold)).To(Succeed())

		waiting, w := newRequest("waiting", 1, 0, resource.Selector{Resource: res})
		later, l := newRequest("later", 1, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(waiting)).To(Succeed())
		Expect(agent.Enqueue(later)).To(Succeed())

		agent.ExpireTimeout(waiting)
		Expect(w.done).To(BeTrue())
		var timedOut *faults.TimedOut
		Expect(errors.As(w.err, &timedOut)).To(BeTrue())

		// The freed unit goes to the next waiter, not the timed-out one.
		h.assignment.Release()
		Expect(l.done).To(BeTrue())
		Expect(w.assignment).To(BeNil())
	})

	It("excludes a going-down resource from new assignments", func() {
		res.SetGoingDown(true)
		Expect(res.AvailableForNewRequest()).To(Equal(uint32(0)))

		req, r := newRequest("r1", 1, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(req)).To(Succeed())
		Expect(r.done).To(BeFalse())

		res.BringUpAll()
		agent.ProcessQueuedRequests()
		Expect(r.done).To(BeTrue())
	})

	It("supports partial release by resource and count", func() {
		req, r := newRequest("r1", 2, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(req)).To(Succeed())

		Expect(r.assignment.Subtract(res, 1)).To(Succeed())
		Expect(res.InUse()).To(Equal(uint32(1)))
		Expect(r.assignment.Released()).To(BeFalse())
		Expect(r.assignment.UnitsOf(res)).To(Equal(uint32(1)))

		Expect(r.assignment.SubtractAll(res)).To(Succeed())
		Expect(res.InUse()).To(Equal(uint32(0)))
		Expect(r.assignment.Released()).To(BeTrue())
	})

	It("fires OnFullRelease once the last unit of a resource is subtracted", func() {
		var releases int
		res.OnFullRelease = func(*resource.Resource, *resource.Assignment) { releases++ }

		req, r := newRequest("r1", 2, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(req)).To(Succeed())

		// A partial subtraction is not a full release of the resource.
		Expect(r.assignment.Subtract(res, 1)).To(Succeed())
		Expect(releases).To(Equal(0))

		Expect(r.assignment.SubtractAll(res)).To(Succeed())
		Expect(releases).To(Equal(1))
	})

	It("fires OnFullRelease from Release and from a draining Subtract alike", func() {
		var releases int
		res.OnFullRelease = func(*resource.Resource, *resource.Assignment) { releases++ }

		first, f := newRequest("r1", 1, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(first)).To(Succeed())
		f.assignment.Release()
		Expect(releases).To(Equal(1))

		second, s := newRequest("r2", 1, 0, resource.Selector{Resource: res})
		Expect(agent.Enqueue(second)).To(Succeed())
		Expect(s.assignment.Subtract(res, 1)).To(Succeed())
		Expect(releases).To(Equal(2))
	})
})
