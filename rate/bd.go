// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package rate

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// penalty is returned, in the minimized (negated) objective, for a point
// outside the feasible set birth > death >= 0. optimize.NelderMead has no
// native support for linear-inequality or bound constraints, so the
// feasible set is enforced with this penalty-augmented objective, a
// common technique when a derivative-free method only accepts a
// Problem.Func.
const penalty = 1e12

func negLogLikBD(branchTimes []float64, rho float64) func(x []float64) float64 {
	return func(x []float64) float64 {
		birth, death := x[0], x[1]
		if birth <= 0 || death < 0 || death >= birth {
			viol := math.Abs(death-birth) + math.Abs(death) + math.Abs(birth)
			return penalty + viol
		}
		ll := logLikelihood(branchTimes, rho, birth, death)
		if !isFinite(ll) {
			return penalty
		}
		return -ll
	}
}

// fitBirthDeath maximizes the birth-death-with-sampling log-likelihood
// with gonum/optimize's NelderMead, starting from the Yule fit with
// death perturbed to 0.5*birth. No upper bound on birth is applied. It
// returns false if the optimizer errors or lands outside the feasible set.
func fitBirthDeath(branchTimes []float64, rho, yuleBirth float64) (birth, death, ll float64, ok bool) {
	neg := negLogLikBD(branchTimes, rho)
	p := optimize.Problem{Func: neg}

	x0 := []float64{yuleBirth, 0.5 * yuleBirth}
	settings := &optimize.Settings{
		MajorIterations: 500,
	}
	res, err := optimize.Minimize(p, x0, settings, &optimize.NelderMead{})
	if err != nil || res == nil {
		return 0, 0, 0, false
	}
	b, d := res.X[0], res.X[1]
	if b <= 0 || d < 0 || d >= b {
		return 0, 0, 0, false
	}
	return b, d, -res.F, true
}
