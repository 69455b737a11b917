// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package rate

import (
	"math"
	"math/rand/v2"
)

// annealBirthDeath is the dual-optimizer fallback: a simulated
// annealing search over birth > death >= 0, the feasible set of
// fitBirthDeath, with birth also capped at ten times the Yule birth
// rate (fitBirthDeath applies no upper bound on birth), used when the primary
// gonum/optimize NelderMead run returns a non-finite likelihood, lands on
// the parameter boundary, or fails to improve on the Yule fit.
// gonum/optimize has no simulated-annealing method, so this hand-written
// search implements it directly, in the same closed-form numerical idiom
// the rest of this package already uses for the Yule optimizer.
//
// rng must be a caller-seeded source (a single global seed plus a
// taxon-path-derived sub-seed), never the package-level math/rand/v2
// source, so that a run is reproducible even on the clades whose fit
// falls back to annealing.
func annealBirthDeath(branchTimes []float64, rho, yuleBirth float64, rng *rand.Rand) (birth, death, ll float64, ok bool) {
	upper := 10 * yuleBirth
	if upper <= 0 {
		upper = 10
	}

	cur := [2]float64{yuleBirth, 0.5 * yuleBirth}
	curLL := logLikelihood(branchTimes, rho, cur[0], cur[1])
	if !isFinite(curLL) {
		curLL = math.Inf(-1)
	}

	best := cur
	bestLL := curLL

	const iterations = 2000
	temp := 1.0
	const coolRate = 0.995

	for i := 0; i < iterations; i++ {
		step := upper * temp * 0.2
		cand := [2]float64{
			cur[0] + (rng.Float64()*2-1)*step,
			cur[1] + (rng.Float64()*2-1)*step,
		}
		if cand[0] <= 0 || cand[0] > upper || cand[1] < 0 || cand[1] >= cand[0] {
			temp *= coolRate
			continue
		}
		candLL := logLikelihood(branchTimes, rho, cand[0], cand[1])
		if !isFinite(candLL) {
			temp *= coolRate
			continue
		}

		accept := candLL > curLL
		if !accept && temp > 0 {
			delta := candLL - curLL
			prob := math.Exp(delta / temp)
			accept = rng.Float64() < prob
		}
		if accept {
			cur, curLL = cand, candLL
			if curLL > bestLL {
				best, bestLL = cur, curLL
			}
		}
		temp *= coolRate
	}

	if !isFinite(bestLL) {
		return 0, 0, 0, false
	}
	return best[0], best[1], bestLL, true
}
