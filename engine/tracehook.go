package engine

import "github.com/sirupsen/logrus"

// EventTracer is a Hook that logs each dispatched event, backing the
// SimTrace configuration knobs: tracing stops after maxEvents dispatches.
// The formatting is just structured log fields; anything richer belongs
// to an external trace formatter.
type EventTracer struct {
	maxEvents int
	count     int
	log       *logrus.Entry
}

// NewEventTracer creates a tracer that records at most maxEvents events
// (<= 0 means unlimited).
func NewEventTracer(maxEvents int) *EventTracer {
	return &EventTracer{
		maxEvents: maxEvents,
		log:       logrus.WithField("component", "engine.trace"),
	}
}

// Func implements Hook.
func (t *EventTracer) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}
	if t.maxEvents > 0 && t.count >= t.maxEvents {
		return
	}
	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}
	t.count++
	t.log.WithFields(logrus.Fields{
		"event": evt.ID(),
		"time":  evt.Time().String(),
		"seq":   evt.Sequence(),
	}).Info("dispatch")
}
