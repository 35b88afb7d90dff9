package resource

import (
	"sort"

	"github.com/desim/desim/agent"
	"github.com/desim/desim/faults"
)

// Message types exchanged over the generic agent layer: an acquire posts
// a resource-request message and fulfillment posts an assignment message,
// both to the assignment agent's own queue. The hot path below manages its
// own priority-ordered Request slice rather than reparsing these out of
// the generic FIFO queue on every pass. A release sends no
// resource-release message: it calls the owning agent's requeue directly.
// None of these messages is published to subscribers.
const (
	MsgResourceRequest = "RSRC_REQUEST"
	MsgResourceRelease = "RSRC_RELEASE"
	MsgAssignment      = "RSRC_ASSIGN"
	MsgResourceUp      = "RSRC_UP"
	MsgResourceDown    = "RSRC_DOWN"
)

// AssignmentAgent is anything a Request can be enqueued against: a plain
// single-resource Agent or a Pool.
type AssignmentAgent interface {
	agent.Receiver
	releaser
	Enqueue(req *Request) error
	ProcessQueuedRequests()

	// ExpireTimeout removes req from the pending queue and resolves it
	// with a TimedOut fault — the handler of the timeout event an acquire
	// with a finite timeout schedules.
	ExpireTimeout(req *Request)

	// Withdraw silently removes req from the pending queue without
	// resolving it, used when the requesting process is interrupted while
	// blocked on the acquire.
	Withdraw(req *Request)
}

// Agent is the assignment agent for exactly one Resource. It applies hard
// priority: a lower-priority request is never backfilled ahead of a
// still-unfulfilled higher-priority one, even if it would fit.
type Agent struct {
	*agent.Base

	Resource *Resource
	clock    Clock
	idGen    func() string

	requests []*Request
	seq      uint64
}

// NewAgent constructs the default assignment agent for res and wires it as
// res's own Agent: the resource points at its assignment agent, which in
// this default case is dedicated to it.
func NewAgent(res *Resource, clock Clock, idGen func() string) *Agent {
	a := &Agent{
		Resource: res,
		clock:    clock,
		idGen:    idGen,
	}
	a.Base = agent.NewBase(res.ID+".Agent", idGen)
	res.Agent = a

	a.On(MsgResourceRequest, func(*agent.Message) bool { return true })
	a.On(MsgResourceRelease, func(*agent.Message) bool {
		a.ProcessQueuedRequests()
		return true
	})

	return a
}

func (a *Agent) nextSeq() uint64 { a.seq++; return a.seq }

// Enqueue validates and queues req, then immediately attempts assignment,
// so a request that fits is resolved within the same event dispatch that
// posted it.
func (a *Agent) Enqueue(req *Request) error {
	if req.NumUnits < 1 || req.NumUnits > a.Resource.Capacity {
		return &faults.InvalidRequest{Msg: "acquire: n must be between 1 and the resource's capacity"}
	}

	req.EnqueueSeq = a.nextSeq()
	a.requests = append(a.requests, req)
	a.SendAsync(a, MsgResourceRequest, req)
	a.ProcessQueuedRequests()
	return nil
}

// ProcessQueuedRequests iterates requests in priority order, fulfilling
// greedily, but stops entirely the moment one request cannot be met — no
// opportunistic backfill of a smaller request behind it.
func (a *Agent) ProcessQueuedRequests() {
	sort.SliceStable(a.requests, func(i, j int) bool {
		if a.requests[i].Priority != a.requests[j].Priority {
			return a.requests[i].Priority < a.requests[j].Priority
		}
		return a.requests[i].EnqueueSeq < a.requests[j].EnqueueSeq
	})

	remaining := a.requests[:0:0]
	stopped := false

	for _, req := range a.requests {
		if stopped {
			remaining = append(remaining, req)
			continue
		}

		available := a.Resource.AvailableForNewRequest()
		if available < req.NumUnits {
			stopped = true
			remaining = append(remaining, req)
			continue
		}

		if err := a.Resource.addInUse(req.NumUnits); err != nil {
			stopped = true
			remaining = append(remaining, req)
			continue
		}

		assignment := &Assignment{
			ID:          a.idGen(),
			ProcessID:   req.ProcessID,
			AcquireTime: a.clock.CurrentTime(),
			grants:      []Grant{{Resource: a.Resource, Units: req.NumUnits}},
			owner:       a,
		}
		a.Resource.addHolder(assignment)
		req.CancelTimeout()
		a.SendAsync(a, MsgAssignment, assignment)
		if req.Resolve != nil {
			req.Resolve(assignment, nil)
		}
	}

	a.requests = remaining
}

// ExpireTimeout removes req from the pending queue and resolves it with a
// TimedOut fault — called by the timeout event an acquire schedules.
func (a *Agent) ExpireTimeout(req *Request) {
	a.Withdraw(req)
	if req.Resolve != nil {
		req.Resolve(nil, &faults.TimedOut{RequestID: req.ID})
	}
}

// Withdraw removes req without resolving it.
func (a *Agent) Withdraw(req *Request) {
	for i, r := range a.requests {
		if r == req {
			a.requests = append(a.requests[:i:i], a.requests[i+1:]...)
			return
		}
	}
}

func (a *Agent) releaseUnits(r *Resource, n uint32) {
	if r == a.Resource {
		r.releaseInUse(n)
	}
}

func (a *Agent) triggerRequeue() { a.ProcessQueuedRequests() }
