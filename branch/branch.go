// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package branch implements the branching-time sampler: drawing
// new divergence times from a fitted birth-death process, conditioned to
// fall inside the admissible interval package place computes for a
// taxonomic group.
//
// Draws are inverse-CDF samples of the same reconstructed-process
// density package rate fits against (rate.LogDensity): for the
// pure-birth case the inversion is a truncated exponential, mapped
// through distuv.Exponential's CDF and quantile function; for a
// general birth-death process the forward CDF is
// evaluated by Simpson quadrature and inverted by bisection, instead of
// trusting a single error-prone hand derivation of its closed form.
package branch

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/js-arias/tact/rate"
)

// NewSource returns a seeded random source for Sample, built from two
// 64-bit sub-seeds derived by hashing the taxonomic node path. Using
// math/rand/v2's PCG, the same pattern package rate's
// simulated-annealing fallback already uses.
func NewSource(seed1, seed2 uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed1, seed2))
}

// quadratureSteps is the number of Simpson-rule subintervals used to
// invert the general birth-death CDF numerically. It must be even.
const quadratureSteps = 64

// bisectionIterations bounds the numerical inversion of the general
// birth-death CDF; each iteration halves the bracket, so 80 iterations
// resolve an interval to far finer than any realistic age precision.
const bisectionIterations = 80

// Sample draws m ordered divergence times (oldest first) from the
// conditioned birth-death process with the given (birth, death) rates,
// restricted to the closed interval [lo, hi]. Ages are in the
// same units as the caller's tree ages.
//
// m <= 0 returns nil. If hi-lo is narrower than precision, Sample
// returns m copies of hi and reports degenerate = true, so the caller
// can log the near-zero-branch warning.
func Sample(rng *rand.Rand, birth, death, lo, hi, precision float64, m int) ([]float64, bool) {
	if m <= 0 {
		return nil, false
	}
	if hi-lo <= precision {
		times := make([]float64, m)
		for i := range times {
			times[i] = hi
		}
		return times, true
	}

	times := make([]float64, m)
	for i := range times {
		u := rng.Float64()
		times[i] = quantile(u, birth, death, lo, hi)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(times)))
	return times, false
}

// quantile inverts the CDF of the reconstructed-process branching-time
// density, truncated to [lo, hi], at the uniform draw u.
func quantile(u, birth, death, lo, hi float64) float64 {
	if death <= 0 {
		return quantilePureBirth(u, birth, lo, hi)
	}
	return quantileBirthDeath(u, birth, death, lo, hi)
}

// quantilePureBirth inverts the truncated-exponential CDF of the Yule
// branching-time density (rate.LogDensity with death=0, rho=1 reduces to
// exp(-birth*t)): the uniform draw u is rescaled to the CDF mass the
// exponential puts on [lo, hi] and mapped back through its quantile
// function. It falls back to a plain uniform draw when birth is too
// small for the exponential form to be numerically meaningful.
func quantilePureBirth(u, birth, lo, hi float64) float64 {
	if birth < 1e-9 {
		return lo + u*(hi-lo)
	}
	exp := distuv.Exponential{Rate: birth}
	t := exp.Quantile(exp.CDF(lo) + u*(exp.CDF(hi)-exp.CDF(lo)))
	if math.IsNaN(t) || t < lo {
		t = lo
	}
	if t > hi {
		t = hi
	}
	return t
}

// quantileBirthDeath inverts the general birth-death branching-time CDF
// by Simpson quadrature plus bisection (no closed-form algebraic
// inversion is trusted here, per the package doc).
func quantileBirthDeath(u, birth, death, lo, hi float64) float64 {
	total := integrate(lo, hi, birth, death)
	if total <= 0 {
		return lo + u*(hi-lo)
	}
	target := u * total

	a, b := lo, hi
	for i := 0; i < bisectionIterations; i++ {
		mid := (a + b) / 2
		if integrate(lo, mid, birth, death) < target {
			a = mid
		} else {
			b = mid
		}
	}
	return (a + b) / 2
}

// integrate returns the Simpson-rule approximation of the (unnormalized)
// branching-time density on [lo, hi].
func integrate(lo, hi, birth, death float64) float64 {
	if hi <= lo {
		return 0
	}
	n := quadratureSteps
	h := (hi - lo) / float64(n)
	sum := density(lo, birth, death) + density(hi, birth, death)
	for i := 1; i < n; i++ {
		x := lo + float64(i)*h
		w := 4.0
		if i%2 == 0 {
			w = 2.0
		}
		sum += w * density(x, birth, death)
	}
	return sum * h / 3
}

func density(t, birth, death float64) float64 {
	return math.Exp(rate.LogDensity(t, birth, death, 1.0))
}
