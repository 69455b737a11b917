// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package rate

import "math"

// logP1 is the log-density of a single reconstructed-tree branching time
// t (an age, time before present) under a constant-rate birth-death
// process with incomplete, uniform-at-present sampling fraction rho
// (Stadler, 2009, "On incomplete sampling under birth-death models and
// connections to the sampling-based coalescent", PNAS, eq. 1).
func logP1(t, birth, death, rho float64) float64 {
	r := birth - death
	e := math.Exp(-r * t)
	den := rho*birth + (birth*(1-rho)-death)*e
	if den <= 0 {
		return math.Inf(-1)
	}
	num := rho * r * r * e
	if num <= 0 {
		return math.Inf(-1)
	}
	return math.Log(num) - 2*math.Log(den)
}

// logLikelihood returns the birth-death-with-sampling log-likelihood of
// a clade's branching times, up to an
// additive constant independent of (birth, death).
func logLikelihood(branchTimes []float64, rho, birth, death float64) float64 {
	if birth <= 0 || death < 0 || death >= birth {
		return math.Inf(-1)
	}
	k := len(branchTimes) + 2
	ll := float64(k-2) * math.Log(birth)
	for _, t := range branchTimes {
		ll += logP1(t, birth, death, rho)
		if math.IsInf(ll, -1) {
			return ll
		}
	}
	return ll
}

// yuleLogLikelihood is logLikelihood with death fixed at zero.
func yuleLogLikelihood(branchTimes []float64, rho, birth float64) float64 {
	return logLikelihood(branchTimes, rho, birth, 0)
}

// LogDensity exports logP1, the log-density of a single branching time t
// under a constant-rate birth-death process with sampling fraction rho,
// for package branch's inverse-CDF divergence-time sampler: the
// sampler draws from the same reconstructed-process density the
// estimator fits against, so the two packages share one formula instead
// of maintaining a second copy of the numerics.
func LogDensity(t, birth, death, rho float64) float64 {
	return logP1(t, birth, death, rho)
}
