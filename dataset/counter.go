package dataset

import "github.com/desim/desim/faults"

// Suspender parks the calling process until the resume function handed to
// register is invoked. The process layer implements it over its coroutine;
// keeping it as an interface here means a capped Counter can block its
// caller until decrements make room without this package depending on the
// process layer.
type Suspender interface {
	SuspendFor(register func(resume func(err error))) error
}

type counterWaiter struct {
	n      int64
	resume func(err error)
}

// Counter is a time-weighted counter with an optional capacity. Every
// value change emits a time-weighted transition on the backing dataset.
type Counter struct {
	ds       *TimeWeighted
	value    int64
	capacity int64 // 0 means unbounded

	waiters []*counterWaiter
}

// NewCounter creates an unbounded counter emitting to a new time-weighted
// dataset named name under elementID.
func NewCounter(reg *Registry, elementID, name string) *Counter {
	return &Counter{ds: reg.NewTimeWeighted(elementID, name, "int")}
}

// NewCappedCounter creates a counter that blocks Increment callers while
// the increment would exceed capacity.
func NewCappedCounter(reg *Registry, elementID, name string, capacity int64) *Counter {
	c := NewCounter(reg, elementID, name)
	c.capacity = capacity
	return c
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value }

// Capacity returns the configured capacity, 0 if unbounded.
func (c *Counter) Capacity() int64 { return c.capacity }

// Increment raises the count by n. If the counter is capped and the
// increment would exceed capacity, the caller suspends via s until
// decrements make room; s may be nil only for an uncapped counter or an
// increment that fits.
func (c *Counter) Increment(s Suspender, n int64) error {
	for c.capacity > 0 && c.value+n > c.capacity {
		if s == nil {
			return &faults.InvalidRequest{
				Msg: "counter increment exceeds capacity and no suspender was supplied"}
		}
		err := s.SuspendFor(func(resume func(err error)) {
			c.waiters = append(c.waiters, &counterWaiter{n: n, resume: resume})
		})
		if err != nil {
			return err
		}
	}
	c.value += n
	c.ds.SetValue(float64(c.value))
	return nil
}

// Decrement lowers the count by n (floored at zero) and wakes, in FIFO
// order, every blocked incrementer whose amount now fits. A woken caller
// re-checks capacity before applying, so an intervening increment simply
// puts it back to sleep.
func (c *Counter) Decrement(n int64) {
	c.value -= n
	if c.value < 0 {
		c.value = 0
	}
	c.ds.SetValue(float64(c.value))

	for len(c.waiters) > 0 && c.value+c.waiters[0].n <= c.capacity {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		w.resume(nil)
	}
}
