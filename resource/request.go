package resource

// Selector names which resource(s) a Request is eligible for: either one
// specific resource (Acquire) or a class descriptor a Pool matches against
// its member resources' Class (AcquireFrom).
type Selector struct {
	Resource *Resource // non-nil for a specific-resource request
	Class    string    // used when Resource is nil
}

// Matches reports whether r satisfies this selector.
func (s Selector) Matches(r *Resource) bool {
	if s.Resource != nil {
		return s.Resource == r
	}
	return r.ClassMatches(s.Class)
}

// OnResolve is called at most once per Request, either with a completed
// Assignment or with a faults.TimedOut error. A withdrawn request is never
// resolved, and validation failures are returned by Enqueue instead.
// It is how the resource package hands control back to whatever suspended
// the requesting coroutine — kept as a plain callback here so this package
// has no dependency on the coroutine/process layers.
type OnResolve func(assignment *Assignment, err error)

// Request is one pending acquire call's state.
type Request struct {
	ID         string
	ProcessID  string
	EntityID   string
	Selector   Selector
	NumUnits   uint32
	Priority   int
	EnqueueSeq uint64

	Resolve OnResolve

	timeoutCancel func() // set by the agent that scheduled this request's timeout
}

// SetTimeoutCancel records how to cancel this request's pending timeout
// event. The process layer sets it right after scheduling the timeout so
// fulfillment can cancel the event without knowing about the scheduler.
func (r *Request) SetTimeoutCancel(cancel func()) {
	r.timeoutCancel = cancel
}

// CancelTimeout cancels any pending timeout event associated with this
// request — called synchronously the moment fulfillment commits, so a
// request is either fulfilled or timed out, never both.
func (r *Request) CancelTimeout() {
	if r.timeoutCancel != nil {
		r.timeoutCancel()
		r.timeoutCancel = nil
	}
}
