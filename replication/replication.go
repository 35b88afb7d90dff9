// Package replication launches independent replications, one OS process
// each. Parallelism in this engine exists only across replications:
// inside a run everything is single-threaded, so the driver's whole job
// is fanning out `desim run --run-index r` child processes and collecting
// their exit status.
package replication

import (
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// Driver fans replications out across child processes.
type Driver struct {
	// Binary is the executable to launch, typically os.Executable().
	Binary string

	// Args are the arguments before the run index; the driver appends
	// "--run-index r" for each replication.
	Args []string

	// Parallelism bounds concurrently running children; <= 0 means all at
	// once.
	Parallelism int

	log *logrus.Entry
}

// NewDriver constructs a Driver for the given binary and base arguments.
func NewDriver(binary string, args ...string) *Driver {
	return &Driver{
		Binary: binary,
		Args:   args,
		log:    logrus.WithField("component", "replication"),
	}
}

// Run launches replications 1..n and waits for all of them. The first
// child failure is returned after every child has finished; remaining
// children are not killed, since each replication's output is independent
// and still usable.
func (d *Driver) Run(n int) error {
	if n < 1 {
		return fmt.Errorf("replication: need at least 1 replication, got %d", n)
	}

	limit := d.Parallelism
	if limit <= 0 {
		limit = n
	}
	slots := make(chan struct{}, limit)

	var wg sync.WaitGroup
	errs := make([]error, n+1)

	for r := 1; r <= n; r++ {
		wg.Add(1)
		go func(run int) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()

			errs[run] = d.runOne(run)
		}(r)
	}
	wg.Wait()

	for r := 1; r <= n; r++ {
		if errs[r] != nil {
			return fmt.Errorf("replication %d: %w", r, errs[r])
		}
	}
	return nil
}

func (d *Driver) runOne(run int) error {
	args := append(append([]string{}, d.Args...), "--run-index", strconv.Itoa(run))
	cmd := exec.Command(d.Binary, args...)

	d.log.WithField("run", run).Info("launching replication")
	out, err := cmd.CombinedOutput()
	if err != nil {
		d.log.WithField("run", run).WithError(err).
			WithField("output", string(out)).Error("replication failed")
		return err
	}
	d.log.WithField("run", run).Info("replication complete")
	return nil
}
