package resource

import (
	"sort"

	"github.com/desim/desim/agent"
	"github.com/desim/desim/faults"
)

// Pool is an assignment agent that multiplexes a heterogeneous set of
// resources, selecting among them by class. Ownership is membership-only:
// the Pool manages its resources' pool membership but does not own the
// Resources themselves.
type Pool struct {
	*agent.Base

	Members []*Resource
	clock   Clock
	idGen   func() string

	requests []*Request
	seq      uint64

	// Algorithm is the pluggable assignment seam: models with
	// domain-specific assignment rules replace it wholesale. Defaults to
	// DefaultPoolAlgorithm. A custom algorithm reads the
	// PoolAssignmentContext and returns the plans to commit; it must not
	// exceed any member's availability.
	Algorithm PoolAlgorithm
}

// PoolAlgorithm decides, given the pool's current priority-ordered pending
// requests and a read/reserve view of each member's availability, which
// requests to fulfill this pass. It returns the set of (request, grants)
// to commit; requests not returned remain queued.
type PoolAlgorithm func(ctx *PoolAssignmentContext) []PoolPlan

// PoolPlan is one request's proposed fulfillment.
type PoolPlan struct {
	Request *Request
	Grants  []Grant
}

// PoolAssignmentContext is the read-only view and reservation ledger a
// PoolAlgorithm operates over.
type PoolAssignmentContext struct {
	Members  []*Resource
	Requests []*Request // already sorted by (priority, enqueue order)
}

// Available returns the current real availability of every member,
// indexed by resource ID, as the starting point for a provisional
// reservation ledger.
func (ctx *PoolAssignmentContext) Available() map[string]uint32 {
	avail := make(map[string]uint32, len(ctx.Members))
	for _, m := range ctx.Members {
		avail[m.ID] = m.AvailableForNewRequest()
	}
	return avail
}

// NewPool constructs an empty Pool. Add members with AddResource.
func NewPool(id string, clock Clock, idGen func() string) *Pool {
	p := &Pool{clock: clock, idGen: idGen, Algorithm: DefaultPoolAlgorithm}
	p.Base = agent.NewBase(id, idGen)

	p.On(MsgResourceRequest, func(*agent.Message) bool { return true })
	p.On(MsgResourceRelease, func(*agent.Message) bool {
		p.ProcessQueuedRequests()
		return true
	})

	return p
}

// AddResource enrolls res as a pool member and wires its Agent back to the
// pool so release/downtime notifications route here.
func (p *Pool) AddResource(res *Resource) {
	res.Agent = p
	p.Members = append(p.Members, res)
}

// PoolSize is the number of member resources.
func (p *Pool) PoolSize() int { return len(p.Members) }

// Resources returns every member whose class matches (or every member if
// class is empty).
func (p *Pool) Resources(class string) []*Resource {
	var out []*Resource
	for _, m := range p.Members {
		if m.ClassMatches(class) {
			out = append(out, m)
		}
	}
	return out
}

// Available sums AvailableForNewRequest across every member matching
// class.
func (p *Pool) Available(class string) uint32 {
	var total uint32
	for _, m := range p.Resources(class) {
		total += m.AvailableForNewRequest()
	}
	return total
}

// AvailableResources returns the members matching class that currently
// have spare capacity.
func (p *Pool) AvailableResources(class string) []*Resource {
	var out []*Resource
	for _, m := range p.Resources(class) {
		if m.AvailableForNewRequest() > 0 {
			out = append(out, m)
		}
	}
	return out
}

func (p *Pool) nextSeq() uint64 { p.seq++; return p.seq }

// Enqueue validates and queues req against the pool's matched class.
func (p *Pool) Enqueue(req *Request) error {
	if req.NumUnits < 1 {
		return &faults.InvalidRequest{Msg: "acquire_from: n must be >= 1"}
	}
	totalCapacity := uint32(0)
	for _, m := range p.Resources(req.Selector.Class) {
		totalCapacity += m.Capacity
	}
	if req.NumUnits > totalCapacity {
		return &faults.InvalidRequest{Msg: "acquire_from: matching members' combined capacity is less than n"}
	}

	req.EnqueueSeq = p.nextSeq()
	p.requests = append(p.requests, req)
	p.SendAsync(p, MsgResourceRequest, req)
	p.ProcessQueuedRequests()
	return nil
}

// ProcessQueuedRequests runs the configured PoolAlgorithm and commits
// whatever plans it returns.
func (p *Pool) ProcessQueuedRequests() {
	sort.SliceStable(p.requests, func(i, j int) bool {
		if p.requests[i].Priority != p.requests[j].Priority {
			return p.requests[i].Priority < p.requests[j].Priority
		}
		return p.requests[i].EnqueueSeq < p.requests[j].EnqueueSeq
	})

	ctx := &PoolAssignmentContext{Members: p.Members, Requests: p.requests}
	plans := p.Algorithm(ctx)

	committed := make(map[*Request]bool, len(plans))
	for _, plan := range plans {
		for _, g := range plan.Grants {
			if err := g.Resource.addInUse(g.Units); err != nil {
				continue
			}
		}
		assignment := &Assignment{
			ID:          p.idGen(),
			ProcessID:   plan.Request.ProcessID,
			AcquireTime: p.clock.CurrentTime(),
			grants:      plan.Grants,
			owner:       p,
		}
		for _, g := range plan.Grants {
			g.Resource.addHolder(assignment)
		}
		plan.Request.CancelTimeout()
		p.SendAsync(p, MsgAssignment, assignment)
		if plan.Request.Resolve != nil {
			plan.Request.Resolve(assignment, nil)
		}
		committed[plan.Request] = true
	}

	remaining := p.requests[:0:0]
	for _, r := range p.requests {
		if !committed[r] {
			remaining = append(remaining, r)
		}
	}
	p.requests = remaining
}

// ExpireTimeout removes req from the pending queue and resolves it with a
// TimedOut fault.
func (p *Pool) ExpireTimeout(req *Request) {
	p.Withdraw(req)
	if req.Resolve != nil {
		req.Resolve(nil, &faults.TimedOut{RequestID: req.ID})
	}
}

// Withdraw removes req without resolving it.
func (p *Pool) Withdraw(req *Request) {
	for i, r := range p.requests {
		if r == req {
			p.requests = append(p.requests[:i:i], p.requests[i+1:]...)
			return
		}
	}
}

func (p *Pool) releaseUnits(r *Resource, n uint32) { r.releaseInUse(n) }

func (p *Pool) triggerRequeue() { p.ProcessQueuedRequests() }

// DefaultPoolAlgorithm maximizes total assignments while guaranteeing a
// lower-priority request is fulfilled in a pass only if doing so never
// touches a unit a still-unfulfilled higher-priority request could have
// used. Ties among equally-valid maximizing assignments are broken by
// lowest resource ID first, keeping the choice deterministic.
func DefaultPoolAlgorithm(ctx *PoolAssignmentContext) []PoolPlan {
	working := ctx.Available()

	members := make([]*Resource, len(ctx.Members))
	copy(members, ctx.Members)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	var plans []PoolPlan

	for _, req := range ctx.Requests {
		need := req.NumUnits
		var grants []Grant

		for _, m := range members {
			if need == 0 {
				break
			}
			if !req.Selector.Matches(m) {
				continue
			}
			free := working[m.ID]
			if free == 0 {
				continue
			}
			take := free
			if take > need {
				take = need
			}
			grants = append(grants, Grant{Resource: m, Units: take})
			working[m.ID] -= take
			need -= take
		}

		if need == 0 {
			plans = append(plans, PoolPlan{Request: req, Grants: grants})
			continue
		}

		// Unmet: the units gathered above stay reserved (not returned to
		// working) so a lower-priority request below cannot be fulfilled
		// with capacity this higher-priority request would need — this is
		// the "reserve the highest-matching units" half of the invariant.
	}

	return plans
}
