// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package rate

import "math"

// cgold is the fraction of the larger subinterval probed by a
// golden-section step (2 minus the golden ratio).
const cgold = 0.3819660112501051

// brentMax maximizes a unimodal-enough scalar function f over [lo, hi]
// by golden-section search with successive parabolic interpolation
// (Brent's derivative-free method): each iteration fits a parabola
// through the three best points seen so far and probes its vertex when
// that step is well-behaved, falling back to a golden-section step into
// the larger subinterval otherwise. gonum.org/v1/gonum/optimize ships
// no bounded 1-D routine (its methods are all n-dimensional), so this
// is hand-written. It refines until the bracket is narrower than tol or
// maxIter is reached, and returns the maximizing x and f(x).
func brentMax(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, float64) {
	a, b := lo, hi
	x := a + cgold*(b-a)
	w, v := x, x
	fx := f(x)
	fw, fv := fx, fx

	var d, e float64 // current and previous step widths
	for i := 0; i < maxIter && b-a > tol; i++ {
		m := 0.5 * (a + b)

		useGolden := true
		if math.Abs(e) > tol {
			// fit a parabola through (v,fv), (w,fw), (x,fx); its
			// vertex is x + p/q
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			prev := e
			e = d
			if math.Abs(p) < math.Abs(0.5*q*prev) && p > q*(a-x) && p < q*(b-x) {
				d = p / q
				useGolden = false
			}
		}
		if useGolden {
			if x < m {
				e = b - x
			} else {
				e = a - x
			}
			d = cgold * e
		}

		u := x + d
		if u-a < tol {
			u = a + tol
		}
		if b-u < tol {
			u = b - tol
		}
		fu := f(u)

		if fu >= fx {
			if u < x {
				b = x
			} else {
				a = x
			}
			v, fv = w, fw
			w, fw = x, fx
			x, fx = u, fu
			continue
		}
		if u < x {
			a = u
		} else {
			b = u
		}
		if fu >= fw || w == x {
			v, fv = w, fw
			w, fw = u, fu
		} else if fu >= fv || v == x || v == w {
			v, fv = u, fu
		}
	}
	return x, fx
}

func fitYule(branchTimes []float64, rho, lo, hi float64) (float64, float64) {
	f := func(birth float64) float64 {
		return yuleLogLikelihood(branchTimes, rho, birth)
	}
	return brentMax(f, lo, hi, (hi-lo)*1e-8, 200)
}
