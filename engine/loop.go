package engine

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/desim/desim/faults"
	"github.com/desim/desim/simtime"
)

// SerialLoop is the Loop implementation used by every replication: a
// strictly serial dispatcher over one EventQueue, with SimTime-keyed
// ordering and explicit per-event cancellation.
type SerialLoop struct {
	HookableBase

	timeLock sync.RWMutex
	now      simtime.SimTime

	seq   uint64
	queue EventQueue

	runLock sync.Mutex

	endHandlers []SimulationEndHandler

	log *logrus.Entry
}

// NewSerialLoop creates a SerialLoop starting at time zero in the
// configured base unit.
func NewSerialLoop() *SerialLoop {
	return &SerialLoop{
		now:   simtime.FromScalar(0),
		queue: NewEventQueue(),
		log:   logrus.WithField("component", "engine.loop"),
	}
}

// NextSequence returns the next monotonically increasing sequence number,
// used by model code to construct events via NewEvent before Schedule.
func (l *SerialLoop) NextSequence() uint64 {
	return atomic.AddUint64(&l.seq, 1)
}

// Schedule inserts evt into the queue. Scheduling an event strictly before
// the current time is a programmer error and halts the run immediately:
// nothing may travel backward in time.
func (l *SerialLoop) Schedule(evt Event) {
	now := l.readNow()
	if evt.Time().Less(now) {
		l.log.WithFields(logrus.Fields{
			"event": evt.ID(),
			"time":  evt.Time().String(),
			"now":   now.String(),
		}).Panic("engine: scheduled an event earlier than current time")
	}
	l.queue.Push(evt)
}

// ScheduleIn builds an event at now+delay and schedules it, returning the
// event so the caller can cancel it later.
func (l *SerialLoop) ScheduleIn(delay simtime.SimTime, priority int, h Handler) (Event, error) {
	if delay.Seconds() < 0 {
		return nil, &faults.InvalidRequest{Msg: "cannot schedule a negative delay"}
	}
	t, err := l.readNow().Add(delay)
	if err != nil {
		return nil, err
	}
	evt := NewEvent(t, priority, l.NextSequence(), h)
	l.Schedule(evt)
	return evt, nil
}

// Cancel marks evt so the loop skips it without searching the heap.
func (l *SerialLoop) Cancel(evt Event) {
	if c, ok := evt.(interface{ Cancel() }); ok {
		c.Cancel()
	}
}

func (l *SerialLoop) readNow() simtime.SimTime {
	l.timeLock.RLock()
	defer l.timeLock.RUnlock()
	return l.now
}

func (l *SerialLoop) writeNow(t simtime.SimTime) {
	l.timeLock.Lock()
	l.now = t
	l.timeLock.Unlock()
}

// CurrentTime returns the time of the event currently (or most recently)
// dispatched.
func (l *SerialLoop) CurrentTime() simtime.SimTime {
	return l.readNow()
}

// Run dispatches events in (Time, Priority, Sequence) order until the
// queue drains or stop(next) returns true for the upcoming event's time.
// A Handle error implementing faults.Fault halts the run and is returned;
// any other error is logged and the run continues.
func (l *SerialLoop) Run(stop func(next simtime.SimTime) bool) error {
	l.runLock.Lock()
	defer l.runLock.Unlock()

	for l.queue.Len() > 0 {
		next := l.queue.Peek()
		if stop != nil && stop(next.Time()) {
			return nil
		}

		evt := l.queue.Pop()
		if evt.Cancelled() {
			continue
		}

		if evt.Time().Less(l.readNow()) {
			l.log.WithFields(logrus.Fields{
				"event": evt.ID(),
				"time":  evt.Time().String(),
				"now":   l.readNow().String(),
			}).Panic("engine: cannot run an event in the past")
		}
		l.writeNow(evt.Time())

		ctx := HookCtx{Domain: l, Pos: HookPosBeforeEvent, Item: evt}
		l.InvokeHook(ctx)

		if err := evt.Handler().Handle(evt); err != nil {
			if fault, ok := err.(interface{ Kind() string }); ok {
				l.log.WithFields(logrus.Fields{
					"event": evt.ID(),
					"kind":  fault.Kind(),
				}).Error("engine: halting run on fault")
				return err
			}
			l.log.WithError(err).Warn("engine: handler returned a non-fatal error")
		}

		ctx.Pos = HookPosAfterEvent
		l.InvokeHook(ctx)
	}

	return nil
}

func (l *SerialLoop) RegisterSimulationEndHandler(h SimulationEndHandler) {
	l.endHandlers = append(l.endHandlers, h)
}

// Finished invokes every registered SimulationEndHandler with the final
// simulated time. Call once after Run returns.
func (l *SerialLoop) Finished() {
	now := l.readNow()
	for _, h := range l.endHandlers {
		h.Handle(now)
	}
}
