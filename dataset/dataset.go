// Package dataset implements the data-collection layer: per-element
// datasets whose emissions — unweighted point values and time-weighted
// transitions — flow to an injected Sink. Storage and reporting live
// behind the Sink interface; the engine only ever writes.
package dataset

import (
	"path"
	"strings"

	"github.com/desim/desim/engine"
)

// Sink receives every dataset emission for one run. The sqlite
// implementation in datasink/sqlite maps these to SQL rows; the NullSink
// discards them.
type Sink interface {
	OnElement(elementID, className, elementType string)
	OnDataset(datasetID int, elementID, name, valueType string, timeWeighted bool, timeUnit string)

	PutUnweighted(datasetID, run, batch int, simTime, value float64)
	PutTimeWeighted(datasetID, run, batch int, fromTime, toTime, value float64)

	BeginRun(run int)
	BeginBatch(run, batch int)
	EndBatch(run, batch int)
	EndRun(run int)
}

// NullSink discards every emission. It is the default until a model run is
// wired to a real sink.
type NullSink struct{}

func (NullSink) OnElement(string, string, string)                         {}
func (NullSink) OnDataset(int, string, string, string, bool, string)      {}
func (NullSink) PutUnweighted(int, int, int, float64, float64)            {}
func (NullSink) PutTimeWeighted(int, int, int, float64, float64, float64) {}
func (NullSink) BeginRun(int)                                             {}
func (NullSink) BeginBatch(int, int)                                      {}
func (NullSink) EndBatch(int, int)                                        {}
func (NullSink) EndRun(int)                                               {}

// disableRule is one parsed DataCollection.DisableDatasets entry:
// "[elementGlob] datasetGlob".
type disableRule struct {
	elementGlob string
	datasetGlob string
}

// Registry is the per-run element and dataset registry. It assigns
// dataset IDs, tracks the current batch, applies the
// DataCollection.Disable* config filters, and flushes open time-weighted
// intervals at batch boundaries.
type Registry struct {
	clock engine.TimeTeller
	sink  Sink
	run   int
	batch int

	nextDatasetID int

	disabledElements []string
	disabledDatasets []disableRule

	timeWeighted []*TimeWeighted
}

// NewRegistry constructs the registry for one replication's run index.
func NewRegistry(clock engine.TimeTeller, sink Sink, run int) *Registry {
	if sink == nil {
		sink = NullSink{}
	}
	return &Registry{clock: clock, sink: sink, run: run}
}

// Run returns the replication index this registry emits under.
func (r *Registry) Run() int { return r.run }

// Batch returns the current batch number (0 during warmup).
func (r *Registry) Batch() int { return r.batch }

// DisableElements installs the DataCollection.DisableElements globs: any
// element whose ID matches one of them registers no datasets at all.
func (r *Registry) DisableElements(globs []string) {
	r.disabledElements = append(r.disabledElements, globs...)
}

// DisableDatasets installs DataCollection.DisableDatasets rules. Each rule
// is "elementGlob datasetGlob", or a bare dataset glob applying to every
// element.
func (r *Registry) DisableDatasets(rules []string) {
	for _, rule := range rules {
		fields := strings.Fields(rule)
		switch len(fields) {
		case 1:
			r.disabledDatasets = append(r.disabledDatasets,
				disableRule{elementGlob: "*", datasetGlob: fields[0]})
		case 2:
			r.disabledDatasets = append(r.disabledDatasets,
				disableRule{elementGlob: fields[0], datasetGlob: fields[1]})
		}
	}
}

func (r *Registry) elementDisabled(elementID string) bool {
	for _, g := range r.disabledElements {
		if ok, _ := path.Match(g, elementID); ok {
			return true
		}
	}
	return false
}

func (r *Registry) datasetDisabled(elementID, name string) bool {
	if r.elementDisabled(elementID) {
		return true
	}
	for _, rule := range r.disabledDatasets {
		elemOK, _ := path.Match(rule.elementGlob, elementID)
		dsOK, _ := path.Match(rule.datasetGlob, name)
		if elemOK && dsOK {
			return true
		}
	}
	return false
}

// RegisterElement announces a model element to the sink. Disabled elements
// are silently skipped, along with every dataset later created under them.
func (r *Registry) RegisterElement(elementID, className, elementType string) {
	if r.elementDisabled(elementID) {
		return
	}
	r.sink.OnElement(elementID, className, elementType)
}

func (r *Registry) now() float64 {
	return r.clock.CurrentTime().Seconds()
}

// NewTimeWeighted creates a time-weighted dataset under elementID. The
// returned dataset emits one (from, to, value) interval per value change,
// the value holding until the next change.
func (r *Registry) NewTimeWeighted(elementID, name, valueType string) *TimeWeighted {
	d := &TimeWeighted{
		reg:      r,
		id:       r.nextDatasetID,
		disabled: r.datasetDisabled(elementID, name),
		since:    r.now(),
	}
	r.nextDatasetID++
	if !d.disabled {
		r.sink.OnDataset(d.id, elementID, name, valueType, true, r.timeUnit())
		r.timeWeighted = append(r.timeWeighted, d)
	}
	return d
}

// NewCollector creates an unweighted dataset under elementID: each AddValue
// emits one (time, value) point.
func (r *Registry) NewCollector(elementID, name, valueType string) *Collector {
	c := &Collector{
		reg:      r,
		id:       r.nextDatasetID,
		disabled: r.datasetDisabled(elementID, name),
	}
	r.nextDatasetID++
	if !c.disabled {
		r.sink.OnDataset(c.id, elementID, name, valueType, false, r.timeUnit())
	}
	return c
}

func (r *Registry) timeUnit() string {
	return r.clock.CurrentTime().Unit().String()
}

// BeginRun starts emission for this run; warmup emissions are tagged
// batch 0, which the summary layer typically discards.
func (r *Registry) BeginRun() {
	r.batch = 0
	r.sink.BeginRun(r.run)
	r.sink.BeginBatch(r.run, 0)
}

// BeginBatch closes the previous batch at the boundary time and switches
// every subsequent emission to batch b. Open time-weighted intervals are
// split at the boundary so each batch's time-weighted statistics integrate
// over exactly its own span.
func (r *Registry) BeginBatch(b int, boundary float64) {
	for _, d := range r.timeWeighted {
		d.flushAt(boundary)
	}
	r.sink.EndBatch(r.run, r.batch)
	r.batch = b
	r.sink.BeginBatch(r.run, b)
}

// EndRun closes the final batch at boundary and ends the run.
func (r *Registry) EndRun(boundary float64) {
	for _, d := range r.timeWeighted {
		d.flushAt(boundary)
	}
	r.sink.EndBatch(r.run, r.batch)
	r.sink.EndRun(r.run)
}

// TimeWeighted is a time-weighted dataset: it tracks a piecewise-constant
// value and emits one interval per transition.
type TimeWeighted struct {
	reg      *Registry
	id       int
	disabled bool

	value float64
	since float64
}

// Value returns the current piecewise-constant value.
func (d *TimeWeighted) Value() float64 { return d.value }

// SetValue records a transition to v at the current simulated time,
// emitting the interval the previous value covered.
func (d *TimeWeighted) SetValue(v float64) {
	now := d.reg.now()
	if !d.disabled && now > d.since {
		d.reg.sink.PutTimeWeighted(d.id, d.reg.run, d.reg.batch, d.since, now, d.value)
	}
	d.value = v
	d.since = now
}

func (d *TimeWeighted) flushAt(boundary float64) {
	if !d.disabled && boundary > d.since {
		d.reg.sink.PutTimeWeighted(d.id, d.reg.run, d.reg.batch, d.since, boundary, d.value)
	}
	d.since = boundary
}

// Collector is an unweighted dataset.
type Collector struct {
	reg      *Registry
	id       int
	disabled bool
	entries  int
}

// AddValue emits one (time, v) observation.
func (c *Collector) AddValue(v float64) {
	c.entries++
	if c.disabled {
		return
	}
	c.reg.sink.PutUnweighted(c.id, c.reg.run, c.reg.batch, c.reg.now(), v)
}

// Entries reports how many observations have been added over the run.
func (c *Collector) Entries() int { return c.entries }
