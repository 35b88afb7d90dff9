// Package coroutine implements the cooperative-multitasking host:
// spawn/resume/suspend over a single logical thread of control. Goroutines
// are stackful, so a goroutine parked on a pair of rendezvous channels
// lets Suspend work from an arbitrarily deep call inside the coroutine
// body — acquire and wait primitives are routinely called from helper
// methods, not just directly from run().
//
// Exactly one of {the caller of Resume, the coroutine's own goroutine} is
// ever runnable at a time: Resume blocks until the coroutine either calls
// Suspend or returns, and Suspend blocks until the next Resume. There is no
// additional concurrency here for the process layer to reason about.
package coroutine

// Yield is the capability a running coroutine uses to suspend itself. The
// process layer passes one down through the call stack of a model's run()
// body (directly or via helper methods); wait_for, acquire and
// acquire_from all bottom out in a call to Suspend.
type Yield interface {
	// Suspend hands control back to whoever called Resume and blocks until
	// the next Resume call. It returns the value Resume supplied, or a
	// non-nil error Resume supplied — TimedOut, ResourceDown, an explicit
	// interrupt — for the body to handle as it would any other Go error.
	Suspend() (interface{}, error)
}

// Body is a coroutine's top-level function, e.g. a Process's run().
type Body func(y Yield) (interface{}, error)

type resumeMsg struct {
	value interface{}
	err   error
}

// Outcome reports what happened to a coroutine between one Resume call and
// the next suspension or completion.
type Outcome struct {
	Value    interface{}
	Err      error
	Finished bool
	// Panic carries a recovered panic value from the coroutine body, kept
	// distinct from Err because a panic always means a model error rather
	// than a value the body returned deliberately.
	Panic interface{}
}

type yieldMsg Outcome

// Coro is a single suspended-or-running coroutine.
type Coro struct {
	resumeCh chan resumeMsg
	yieldCh  chan yieldMsg
	started  bool
	finished bool
}

// Spawn creates a coroutine. body does not begin executing until the first
// Resume call.
func Spawn(body Body) *Coro {
	c := &Coro{
		resumeCh: make(chan resumeMsg),
		yieldCh:  make(chan yieldMsg),
	}

	y := &yielder{c: c}

	go func() {
		first := <-c.resumeCh
		if first.err != nil {
			c.yieldCh <- yieldMsg{Finished: true, Err: first.err}
			return
		}

		defer func() {
			if r := recover(); r != nil {
				c.yieldCh <- yieldMsg{Finished: true, Panic: r}
			}
		}()

		value, err := body(y)
		c.yieldCh <- yieldMsg{Finished: true, Value: value, Err: err}
	}()

	return c
}

// Resume runs c until its next Suspend call or completion. value and err
// become the return of the Suspend call c is currently parked in. On the
// very first Resume value is ignored; a non-nil err finishes the coroutine
// with that error without ever running body, which is how a coroutine is
// cancelled before it starts.
func (c *Coro) Resume(value interface{}, err error) Outcome {
	if c.finished {
		panic("coroutine: Resume called after completion")
	}

	c.started = true
	c.resumeCh <- resumeMsg{value: value, err: err}
	out := Outcome(<-c.yieldCh)
	if out.Finished {
		c.finished = true
	}
	return out
}

// Started reports whether Resume has been called at least once.
func (c *Coro) Started() bool { return c.started }

// Finished reports whether the coroutine has returned, panicked, or been
// aborted.
func (c *Coro) Finished() bool { return c.finished }

type yielder struct{ c *Coro }

func (y *yielder) Suspend() (interface{}, error) {
	y.c.yieldCh <- yieldMsg{}
	r := <-y.c.resumeCh
	return r.value, r.err
}
