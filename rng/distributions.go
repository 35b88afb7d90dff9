package rng

import (
	"math"
	"math/rand/v2"
)

// Dist names the supported distribution families: beta, binomial,
// exponential, gamma, geometric, logistic, lognormal, normal, pareto,
// triangular, uniform, weibull, wald.
type Dist int

const (
	Uniform Dist = iota
	Exponential
	Normal
	LogNormal
	Gamma
	Beta
	Weibull
	Pareto
	Triangular
	Geometric
	Logistic
	Wald
	Binomial
)

// NewSequence builds a restartable Sequence for run/stream that samples
// from dist with the given parameters, interpreted per-distribution below.
func (g *Registry) NewSequence(dist Dist, stream int, params ...float64) Sequence {
	sample := samplerFor(dist, params)
	return newSequence(g.run, stream, g.streamsPerRun, sample)
}

func samplerFor(dist Dist, p []float64) func(r *rand.Rand) float64 {
	switch dist {
	case Uniform:
		lo, hi := arg(p, 0, 0), arg(p, 1, 1)
		return func(r *rand.Rand) float64 { return lo + (hi-lo)*r.Float64() }
	case Exponential:
		mean := arg(p, 0, 1)
		return func(r *rand.Rand) float64 { return mean * r.ExpFloat64() }
	case Normal:
		mean, stddev := arg(p, 0, 0), arg(p, 1, 1)
		return func(r *rand.Rand) float64 { return mean + stddev*r.NormFloat64() }
	case LogNormal:
		mu, sigma := arg(p, 0, 0), arg(p, 1, 1)
		return func(r *rand.Rand) float64 { return math.Exp(mu + sigma*r.NormFloat64()) }
	case Gamma:
		shape, scale := arg(p, 0, 1), arg(p, 1, 1)
		return func(r *rand.Rand) float64 { return gammaSample(r, shape, scale) }
	case Beta:
		alpha, betaP := arg(p, 0, 1), arg(p, 1, 1)
		return func(r *rand.Rand) float64 {
			x := gammaSample(r, alpha, 1)
			y := gammaSample(r, betaP, 1)
			return x / (x + y)
		}
	case Weibull:
		shape, scale := arg(p, 0, 1), arg(p, 1, 1)
		return func(r *rand.Rand) float64 {
			u := r.Float64()
			return scale * math.Pow(-math.Log(1-u), 1/shape)
		}
	case Pareto:
		shape, scale := arg(p, 0, 1), arg(p, 1, 1)
		return func(r *rand.Rand) float64 {
			u := r.Float64()
			return scale / math.Pow(1-u, 1/shape)
		}
	case Triangular:
		low, mode, high := arg(p, 0, 0), arg(p, 1, 0.5), arg(p, 2, 1)
		return func(r *rand.Rand) float64 { return triangularSample(r, low, mode, high) }
	case Geometric:
		prob := arg(p, 0, 0.5)
		return func(r *rand.Rand) float64 {
			u := r.Float64()
			return math.Ceil(math.Log(1-u) / math.Log(1-prob))
		}
	case Logistic:
		mean, scale := arg(p, 0, 0), arg(p, 1, 1)
		return func(r *rand.Rand) float64 {
			u := r.Float64()
			return mean + scale*math.Log(u/(1-u))
		}
	case Wald:
		mean, shape := arg(p, 0, 1), arg(p, 1, 1)
		return func(r *rand.Rand) float64 { return waldSample(r, mean, shape) }
	case Binomial:
		n, prob := int(arg(p, 0, 1)), arg(p, 1, 0.5)
		return func(r *rand.Rand) float64 { return binomialSample(r, n, prob) }
	default:
		return func(r *rand.Rand) float64 { return r.Float64() }
	}
}

func arg(p []float64, idx int, def float64) float64 {
	if idx < len(p) {
		return p[idx]
	}
	return def
}

// gammaSample implements the Marsaglia-Tsang method for shape >= 1, with
// the standard shape<1 boosting trick (sample shape+1 then scale down by
// U^(1/shape)).
func gammaSample(r *rand.Rand, shape, scale float64) float64 {
	if shape < 1 {
		u := r.Float64()
		return gammaSample(r, shape+1, scale) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = r.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := r.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

func triangularSample(r *rand.Rand, low, mode, high float64) float64 {
	u := r.Float64()
	fc := (mode - low) / (high - low)
	if u < fc {
		return low + math.Sqrt(u*(high-low)*(mode-low))
	}
	return high - math.Sqrt((1-u)*(high-low)*(high-mode))
}

// waldSample implements the Michael-Schucany-Haas algorithm for the
// inverse-Gaussian (Wald) distribution.
func waldSample(r *rand.Rand, mean, shape float64) float64 {
	v := r.NormFloat64()
	y := v * v
	x := mean + (mean*mean*y)/(2*shape) - (mean/(2*shape))*math.Sqrt(4*mean*shape*y+mean*mean*y*y)
	u := r.Float64()
	if u <= mean/(mean+x) {
		return x
	}
	return mean * mean / x
}

func binomialSample(r *rand.Rand, n int, prob float64) float64 {
	count := 0
	for i := 0; i < n; i++ {
		if r.Float64() < prob {
			count++
		}
	}
	return float64(count)
}
