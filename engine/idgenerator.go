package engine

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator mints the IDs stamped on events, messages and assignments.
type IDGenerator interface {
	Generate() string
}

// Replication determinism hangs on ID generation: with the sequential
// generator, the same (seed, run index, model) yields a byte-identical
// emission sequence, so it is the default and the mode every measured
// replication uses. The xid-backed generator keeps IDs unique when
// several goroutines mint them at once, at the cost of run-to-run
// reproducibility — acceptable for ad-hoc tooling only.
var (
	idGenMu     sync.Mutex
	idGen       IDGenerator
	idGenChosen bool
)

// UseSequentialIDGenerator selects the deterministic counter-backed
// generator. Must be called before the first Generate.
func UseSequentialIDGenerator() {
	chooseIDGenerator(&sequentialIDGenerator{})
}

// UseParallelIDGenerator selects the xid-backed generator. Must be called
// before the first Generate.
func UseParallelIDGenerator() {
	chooseIDGenerator(parallelIDGenerator{})
}

func chooseIDGenerator(g IDGenerator) {
	idGenMu.Lock()
	defer idGenMu.Unlock()
	if idGenChosen {
		log.Panic("engine: cannot change the ID generator after first use")
	}
	idGen = g
	idGenChosen = true
}

// GetIDGenerator returns the generator in use, defaulting to the
// sequential one.
func GetIDGenerator() IDGenerator {
	idGenMu.Lock()
	defer idGenMu.Unlock()
	if !idGenChosen {
		idGen = &sequentialIDGenerator{}
		idGenChosen = true
	}
	return idGen
}

type sequentialIDGenerator struct {
	next uint64
}

func (g *sequentialIDGenerator) Generate() string {
	return strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}

type parallelIDGenerator struct{}

func (parallelIDGenerator) Generate() string {
	return xid.New().String()
}
