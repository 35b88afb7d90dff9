// Package process implements the process layer: a wrapper around one
// coroutine plus an entity reference and a priority, exposing WaitFor,
// Acquire, AcquireFrom and Release to the model's run() body. It owns its
// acquisitions so that completion — normal return, error return or panic
// — always releases every still-held unit.
package process

import (
	"errors"
	"fmt"

	"github.com/desim/desim/agent"
	"github.com/desim/desim/coroutine"
	"github.com/desim/desim/engine"
	"github.com/desim/desim/faults"
	"github.com/desim/desim/resource"
	"github.com/desim/desim/simtime"
)

// Env is the per-run capability set a Process needs: the clock and
// scheduler, an ID mint, and the resource-up waitlist used by
// WaitForThroughDowntime. The model package's Model implements it; tests
// supply their own.
type Env interface {
	engine.TimeTeller
	engine.Scheduler

	NewID() string

	// AwaitResourceUp registers resume to be called once the named
	// resource comes back up (an RSRC_UP publication reaches the run
	// context).
	AwaitResourceUp(resourceID string, resume func(upTime simtime.SimTime))
}

// Body is a process's run() function. It executes on the process's own
// coroutine; every blocking operation goes through p.
type Body func(p *Process) error

// Process wraps one coroutine. Zero or one Process exists per entity;
// agents and sources refer to it by its element ID. A Process is itself
// an addressable agent so it can exchange synchronous messages.
type Process struct {
	*agent.Base

	id       string
	priority int
	env      Env

	coro  *coroutine.Coro
	yield coroutine.Yield

	held          []*resource.Assignment
	pendingResume engine.Event

	// blockedOn tracks the acquire this process is currently suspended in,
	// so an Interrupt can withdraw the request instead of leaving it to be
	// fulfilled after the process has moved on.
	blockedOn      resource.AssignmentAgent
	blockedRequest *resource.Request

	stats     *ClassStats
	startTime simtime.SimTime
	started   bool
	finished  bool

	// awaiting is the ID of the synchronous message whose response this
	// process is suspended on, "" when not in a SendSync.
	awaiting        string
	awaitingTimeout engine.Event

	onComplete []func(err error)
}

// New creates a suspended Process. body does not run until Start's
// process-start event fires.
func New(id string, priority int, env Env, body Body) *Process {
	p := &Process{id: id, priority: priority, env: env}
	p.Base = agent.NewBase(id, env.NewID)
	p.coro = coroutine.Spawn(func(y coroutine.Yield) (interface{}, error) {
		p.yield = y
		return nil, body(p)
	})
	return p
}

// ID returns the process's element ID.
func (p *Process) ID() string { return p.id }

// Priority returns the priority every resource request this process issues
// carries (lower is more urgent).
func (p *Process) Priority() int { return p.priority }

// Finished reports whether run() has completed.
func (p *Process) Finished() bool { return p.finished }

// SetStats attaches per-class bookkeeping recorded at start and completion.
func (p *Process) SetStats(s *ClassStats) { p.stats = s }

// OnComplete registers f to run when the process finishes, after held
// resources are released. err is nil on normal completion.
func (p *Process) OnComplete(f func(err error)) {
	p.onComplete = append(p.onComplete, f)
}

// Start schedules the process-start event at the current time. The body
// begins when it fires.
func (p *Process) Start() {
	if _, err := p.env.ScheduleIn(simtime.FromScalar(0), engine.PriorityDefault,
		engine.HandlerFunc(func(engine.Event) error {
			return p.resumeNow(nil, nil)
		})); err != nil {
		panic(err)
	}
}

// resumeNow runs the coroutine until its next suspension or completion.
// Returned faults propagate into the event loop, which halts the run.
func (p *Process) resumeNow(v interface{}, err error) error {
	p.pendingResume = nil
	if !p.started {
		p.started = true
		p.startTime = p.env.CurrentTime()
		if p.stats != nil {
			p.stats.processStarted()
		}
	}
	out := p.coro.Resume(v, err)
	if !out.Finished {
		return nil
	}
	return p.finish(out)
}

// finish runs the completion protocol: release everything still held,
// emit the per-class bookkeeping, then surface the outcome. A panic or an
// error returned from run() becomes a ModelError that halts the run.
func (p *Process) finish(out coroutine.Outcome) error {
	p.finished = true
	p.releaseAll()

	if p.stats != nil {
		elapsed, _ := p.env.CurrentTime().Sub(p.startTime)
		p.stats.processCompleted(elapsed)
	}

	var bodyErr error
	switch {
	case out.Panic != nil:
		bodyErr = &faults.ModelError{Cause: out.Panic}
	case out.Err != nil:
		bodyErr = &faults.ModelError{Cause: out.Err}
	}

	for _, f := range p.onComplete {
		f(bodyErr)
	}
	return bodyErr
}

func (p *Process) releaseAll() {
	for _, a := range p.held {
		a.Release()
	}
	p.held = nil
}

// HeldAssignments returns the assignments this process currently holds
// units under.
func (p *Process) HeldAssignments() []*resource.Assignment {
	out := make([]*resource.Assignment, 0, len(p.held))
	for _, a := range p.held {
		if !a.Released() {
			out = append(out, a)
		}
	}
	return out
}

func (p *Process) suspend() (interface{}, error) {
	if p.yield == nil {
		panic(fmt.Sprintf("process %s: blocking operation called outside run()", p.id))
	}
	return p.yield.Suspend()
}

// scheduleResume schedules an event at the current time that resumes the
// coroutine with (v, err). It is the only way a suspended process ever
// wakes: the resumption is itself an event appended among now-events, so
// it dispatches after everything already pending at the current time.
func (p *Process) scheduleResume(v interface{}, err error, priority int) {
	evt, schedErr := p.env.ScheduleIn(simtime.FromScalar(0), priority,
		engine.HandlerFunc(func(engine.Event) error {
			return p.resumeNow(v, err)
		}))
	if schedErr != nil {
		panic(schedErr)
	}
	p.pendingResume = evt
}

// Interrupt injects err into the process's suspended coroutine. Any
// pending timed resume is cancelled; the coroutine's current Suspend call
// returns err instead.
func (p *Process) Interrupt(err error) {
	if p.finished {
		return
	}
	if p.pendingResume != nil {
		p.env.Cancel(p.pendingResume)
		p.pendingResume = nil
	}
	if p.blockedRequest != nil {
		p.blockedOn.Withdraw(p.blockedRequest)
		p.blockedRequest.CancelTimeout()
		p.blockedOn, p.blockedRequest = nil, nil
	}
	p.scheduleResume(nil, err, engine.PriorityInterrupt)
}

// WaitFor suspends the process for delta of simulated time. A
// ResourceDown interrupt arriving during the wait is re-raised into the
// body; use WaitForThroughDowntime to absorb it instead.
func (p *Process) WaitFor(delta simtime.SimTime) error {
	return p.waitFor(delta, false)
}

// WaitForThroughDowntime behaves like WaitFor, except that a ResourceDown
// interrupt is swallowed: the process parks until the resource comes back
// up, then transparently re-waits the unexpired portion, so the total time
// the wait covers is the original delta plus the down duration.
func (p *Process) WaitForThroughDowntime(delta simtime.SimTime) error {
	return p.waitFor(delta, true)
}

func (p *Process) waitFor(delta simtime.SimTime, extend bool) error {
	if delta.Seconds() < 0 {
		return &faults.InvalidRequest{Msg: "wait_for: negative delta"}
	}

	target, err := p.env.CurrentTime().Add(delta)
	if err != nil {
		return err
	}

	evt, err := p.env.ScheduleIn(delta, engine.PriorityResume,
		engine.HandlerFunc(func(engine.Event) error {
			return p.resumeNow(nil, nil)
		}))
	if err != nil {
		return err
	}
	p.pendingResume = evt

	_, serr := p.suspend()
	if serr == nil {
		return nil
	}

	var down *faults.ResourceDown
	if extend && errors.As(serr, &down) {
		remaining, subErr := target.Sub(p.env.CurrentTime())
		if subErr != nil {
			return subErr
		}
		if remaining.Seconds() < 0 {
			remaining = simtime.FromScalar(0)
		}

		p.env.AwaitResourceUp(down.ResourceID, func(simtime.SimTime) {
			p.scheduleResume(nil, nil, engine.PriorityResume)
		})
		if _, upErr := p.suspend(); upErr != nil {
			return upErr
		}
		return p.waitFor(remaining, extend)
	}
	return serr
}

// Acquire blocks until n units of res are assigned to this process, with
// no timeout.
func (p *Process) Acquire(res *resource.Resource, n uint32) (*resource.Assignment, error) {
	return p.AcquireTimeout(res, n, simtime.Infinite())
}

// AcquireTimeout is Acquire with a finite timeout: if the request is still
// unfulfilled at now+timeout it is withdrawn and a TimedOut fault is
// returned.
func (p *Process) AcquireTimeout(res *resource.Resource, n uint32, timeout simtime.SimTime) (*resource.Assignment, error) {
	if res.Agent == nil {
		return nil, &faults.InvalidRequest{Msg: "acquire: resource " + res.ID + " has no assignment agent"}
	}
	return p.acquire(res.Agent, resource.Selector{Resource: res}, n, timeout)
}

// AcquireFrom blocks until n units of any resource matching class are
// assigned by the given agent — typically a Pool.
func (p *Process) AcquireFrom(aa resource.AssignmentAgent, class string, n uint32) (*resource.Assignment, error) {
	return p.AcquireFromTimeout(aa, class, n, simtime.Infinite())
}

// AcquireFromTimeout is AcquireFrom with a finite timeout.
func (p *Process) AcquireFromTimeout(aa resource.AssignmentAgent, class string, n uint32, timeout simtime.SimTime) (*resource.Assignment, error) {
	return p.acquire(aa, resource.Selector{Class: class}, n, timeout)
}

func (p *Process) acquire(aa resource.AssignmentAgent, sel resource.Selector, n uint32, timeout simtime.SimTime) (*resource.Assignment, error) {
	req := &resource.Request{
		ID:        p.env.NewID(),
		ProcessID: p.id,
		Selector:  sel,
		NumUnits:  n,
		Priority:  p.priority,
	}
	req.Resolve = func(a *resource.Assignment, err error) {
		p.scheduleResume(a, err, engine.PriorityResume)
	}

	if !timeout.IsInfinite() {
		// The timeout runs at interrupt priority so that a same-time
		// enqueue still gets its processing pass first — even a zero
		// timeout gives the request one chance at fulfillment.
		evt, err := p.env.ScheduleIn(timeout, engine.PriorityInterrupt,
			engine.HandlerFunc(func(engine.Event) error {
				aa.ExpireTimeout(req)
				return nil
			}))
		if err != nil {
			return nil, err
		}
		req.SetTimeoutCancel(func() { p.env.Cancel(evt) })
	}

	if err := aa.Enqueue(req); err != nil {
		req.CancelTimeout()
		return nil, err
	}

	p.blockedOn, p.blockedRequest = aa, req
	v, err := p.suspend()
	p.blockedOn, p.blockedRequest = nil, nil
	if err != nil {
		return nil, err
	}
	a := v.(*resource.Assignment)
	p.held = append(p.held, a)
	return a, nil
}

// Release returns every unit of a and re-triggers queue processing on the
// owning agent. Safe to call on an already-released assignment.
func (p *Process) Release(a *resource.Assignment) {
	a.Release()
	for i, h := range p.held {
		if h == a {
			p.held = append(p.held[:i:i], p.held[i+1:]...)
			break
		}
	}
}

// WithAcquire is the scoped-acquire form: acquire n units of res, run fn,
// and release on every exit path exactly once.
func (p *Process) WithAcquire(res *resource.Resource, n uint32, fn func(a *resource.Assignment) error) error {
	a, err := p.Acquire(res, n)
	if err != nil {
		return err
	}
	defer p.Release(a)
	return fn(a)
}

// WithAcquireFrom is WithAcquire over a pool-style agent and class
// selector.
func (p *Process) WithAcquireFrom(aa resource.AssignmentAgent, class string, n uint32, fn func(a *resource.Assignment) error) error {
	a, err := p.AcquireFrom(aa, class, n)
	if err != nil {
		return err
	}
	defer p.Release(a)
	return fn(a)
}

// SendSync delivers a message to another agent and suspends until a
// response to it arrives or timeout fires, whichever is first. On timeout
// the original message is withdrawn from the receiver's queue and a
// TimedOut fault is returned.
func (p *Process) SendSync(to agent.Receiver, msgType string, payload interface{}, timeout simtime.SimTime) (*agent.Message, error) {
	msg := &agent.Message{
		ID:       p.env.NewID(),
		Type:     msgType,
		Sender:   p.id,
		Receiver: to.ID(),
		Payload:  payload,
	}
	p.awaiting = msg.ID

	if !timeout.IsInfinite() {
		evt, err := p.env.ScheduleIn(timeout, engine.PriorityInterrupt,
			engine.HandlerFunc(func(engine.Event) error {
				if p.awaiting != msg.ID {
					return nil
				}
				p.awaiting = ""
				p.awaitingTimeout = nil
				if remover, ok := to.(interface{ RemoveMessage(string) bool }); ok {
					remover.RemoveMessage(msg.ID)
				}
				p.scheduleResume(nil, &faults.TimedOut{RequestID: msg.ID}, engine.PriorityInterrupt)
				return nil
			}))
		if err != nil {
			p.awaiting = ""
			return nil, err
		}
		p.awaitingTimeout = evt
	}

	to.Deliver(msg)
	if pq, ok := to.(interface{ ProcessQueue() }); ok {
		pq.ProcessQueue()
	}

	v, err := p.suspend()
	p.awaiting = ""
	if err != nil {
		return nil, err
	}
	return v.(*agent.Message), nil
}

// Deliver routes an awaited synchronous response straight into the
// suspended coroutine; everything else lands in the regular agent queue.
func (p *Process) Deliver(msg *agent.Message) {
	if msg.IsResponse() && msg.ResponseTo == p.awaiting {
		p.awaiting = ""
		if p.awaitingTimeout != nil {
			p.env.Cancel(p.awaitingTimeout)
			p.awaitingTimeout = nil
		}
		p.scheduleResume(msg, nil, engine.PriorityResume)
		return
	}
	p.Base.Deliver(msg)
}

// SuspendFor implements dataset.Suspender so a capped Counter can block
// this process: register captures the resume thunk, then the coroutine
// parks until it is invoked.
func (p *Process) SuspendFor(register func(resume func(err error))) error {
	register(func(err error) {
		p.scheduleResume(nil, err, engine.PriorityResume)
	})
	_, err := p.suspend()
	return err
}
