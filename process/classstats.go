package process

import (
	"github.com/desim/desim/dataset"
	"github.com/desim/desim/simtime"
)

// ClassStats carries the per-process-class datasets: an "In-Process"
// time-weighted counter and unweighted "Process-Time" and "Entries"
// collectors, keyed by the process class element rather than by instance.
// Every Process of the class shares one ClassStats.
type ClassStats struct {
	inProcess   *dataset.Counter
	processTime *dataset.Collector
	entries     *dataset.Collector
}

// NewClassStats registers the class element and its datasets with reg.
func NewClassStats(reg *dataset.Registry, elementID string) *ClassStats {
	reg.RegisterElement(elementID, elementID, "process")
	return &ClassStats{
		inProcess:   dataset.NewCounter(reg, elementID, "In-Process"),
		processTime: reg.NewCollector(elementID, "Process-Time", "simtime"),
		entries:     reg.NewCollector(elementID, "Entries", "int"),
	}
}

// InProcess returns the number of processes of this class currently
// running.
func (s *ClassStats) InProcess() int64 { return s.inProcess.Value() }

// Completions returns how many processes of this class have finished.
func (s *ClassStats) Completions() int { return s.processTime.Entries() }

func (s *ClassStats) processStarted() {
	// In-Process is uncapped, so a nil suspender can never be consulted.
	_ = s.inProcess.Increment(nil, 1)
	s.entries.AddValue(1)
}

func (s *ClassStats) processCompleted(elapsed simtime.SimTime) {
	s.inProcess.Decrement(1)
	s.processTime.AddValue(elapsed.Seconds())
}
