// Package rng binds the engine to a reproducible bit-generator family. It
// derives one independent stream per (replication, model-stream-id) pair
// from a single 128-bit base seed and exposes the standard simulation
// distributions, each as a restartable lazy sequence of samples.
//
// The generator is PCG (math/rand/v2.PCG, added in Go 1.22). True
// jumped-ahead advancement isn't exposed by the stdlib type, so streams
// are derived by hashing the (run, stream) index into the 128-bit base
// seed with a splitmix64-style mix before constructing each PCG —
// independent per stream and reproducible from the pair, which is what
// replication determinism actually requires: the same (seed, run index,
// model) must yield a byte-identical emission sequence.
package rng

import "math/rand/v2"

// BaseSeedHi and BaseSeedLo are the two 64-bit halves of the fixed
// 128-bit base seed 339697402671268427564149969060011333618.
const (
	BaseSeedHi uint64 = 0xff8f570928e45146
	BaseSeedLo uint64 = 0xe3bceb93067657f2
)

// DefaultStreamsPerRun and DefaultMaxReplications are the built-in
// defaults, overridable via SimRandom.StreamsPerRun / .MaxReplications.
const (
	DefaultStreamsPerRun   = 2000
	DefaultMaxReplications = 100
)

// splitmix64 is used only to mix a stream index into the base seed before
// constructing a PCG source; it is never used as the sampling generator.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// StreamIndex computes run*streamsPerRun + stream, the flat index each
// replication's per-stream state is derived from.
func StreamIndex(run, stream, streamsPerRun int) uint64 {
	return uint64(run)*uint64(streamsPerRun) + uint64(stream)
}

// Registry derives and caches one *rand.Rand (a PCG source) per
// (run, stream) pair for a single run index. Like the element registry,
// it is per-run state passed explicitly rather than a global.
type Registry struct {
	run           int
	streamsPerRun int
	sources       map[int]*rand.Rand
}

// NewRegistry constructs the RNG registry for one replication.
func NewRegistry(run, streamsPerRun int) *Registry {
	return &Registry{run: run, streamsPerRun: streamsPerRun, sources: make(map[int]*rand.Rand)}
}

// Source returns (creating if necessary) the *rand.Rand for model stream
// id within this run.
func (g *Registry) Source(stream int) *rand.Rand {
	if r, ok := g.sources[stream]; ok {
		return r
	}
	idx := StreamIndex(g.run, stream, g.streamsPerRun)
	seed1 := BaseSeedLo ^ splitmix64(idx)
	seed2 := BaseSeedHi ^ splitmix64(idx+1)
	r := rand.New(rand.NewPCG(seed1, seed2))
	g.sources[stream] = r
	return r
}

// Sequence is a restartable lazy sequence of distribution samples.
type Sequence interface {
	Next() float64
	// Reset rewinds the sequence to its first sample, reproducing the same
	// values it would yield from a fresh Registry.Source call.
	Reset()
}

type sequence struct {
	run, stream, streamsPerRun int
	sample                     func(r *rand.Rand) float64
	r                          *rand.Rand
}

func newSequence(run, stream, streamsPerRun int, sample func(r *rand.Rand) float64) *sequence {
	s := &sequence{run: run, stream: stream, streamsPerRun: streamsPerRun, sample: sample}
	s.Reset()
	return s
}

func (s *sequence) Next() float64 {
	return s.sample(s.r)
}

func (s *sequence) Reset() {
	idx := StreamIndex(s.run, s.stream, s.streamsPerRun)
	seed1 := BaseSeedLo ^ splitmix64(idx)
	seed2 := BaseSeedHi ^ splitmix64(idx+1)
	s.r = rand.New(rand.NewPCG(seed1, seed2))
}
