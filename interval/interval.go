// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package interval implements closed-interval arithmetic on ℝ⁺ (times, in
// years): union, intersection, complement within a bounding interval, and
// "atomic-hull" reduction. The placement engine uses these to turn the
// taxonomic age constraints on a group (its stem and crown age, the ages
// of nested monophyletic subgroups, and minimum-age constraints
// propagated from already-resolved subgroups) into the single admissible
// interval the branching-time sampler (package branch) draws from.
package interval

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrDisjoint is returned by Hull when a union cannot be reduced to a
// single interval: some gap inside its convex hull is at least as wide
// as the required minimum width.
var ErrDisjoint = errors.New("disjoint constraints")

// A Closed interval [Lo, Hi] of ℝ⁺, in years. A degenerate interval has
// Lo == Hi.
type Closed struct {
	Lo, Hi int64
}

// Empty reports whether the interval is empty (malformed: Hi < Lo).
func (c Closed) Empty() bool { return c.Hi < c.Lo }

// Width returns Hi - Lo.
func (c Closed) Width() int64 { return c.Hi - c.Lo }

// Contains reports whether t lies in [Lo, Hi].
func (c Closed) Contains(t int64) bool { return t >= c.Lo && t <= c.Hi }

// Intersect returns the intersection of two intervals. The result is
// Empty if they do not overlap.
func Intersect(a, b Closed) Closed {
	lo := a.Lo
	if b.Lo > lo {
		lo = b.Lo
	}
	hi := a.Hi
	if b.Hi < hi {
		hi = b.Hi
	}
	return Closed{Lo: lo, Hi: hi}
}

// IntersectAll intersects a slice of intervals; it returns an Empty
// interval if the set has no common point.
func IntersectAll(cs []Closed) Closed {
	if len(cs) == 0 {
		return Closed{}
	}
	r := cs[0]
	for _, c := range cs[1:] {
		r = Intersect(r, c)
		if r.Empty() {
			return r
		}
	}
	return r
}

// Union merges a slice of (possibly overlapping or unordered) intervals
// into a sorted slice of disjoint intervals. Empty input intervals are
// dropped.
func Union(cs []Closed) []Closed {
	var clean []Closed
	for _, c := range cs {
		if c.Empty() {
			continue
		}
		clean = append(clean, c)
	}
	if len(clean) == 0 {
		return nil
	}
	sortByLo(clean)

	out := []Closed{clean[0]}
	for _, c := range clean[1:] {
		last := &out[len(out)-1]
		if c.Lo <= last.Hi {
			if c.Hi > last.Hi {
				last.Hi = c.Hi
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// Complement returns the portion of the bounding interval `within` not
// covered by the (disjoint, sorted) union U.
func Complement(within Closed, u []Closed) []Closed {
	var out []Closed
	cur := within.Lo
	for _, c := range u {
		if c.Hi < within.Lo || c.Lo > within.Hi {
			continue
		}
		lo, hi := c.Lo, c.Hi
		if lo < within.Lo {
			lo = within.Lo
		}
		if hi > within.Hi {
			hi = within.Hi
		}
		if lo > cur {
			out = append(out, Closed{Lo: cur, Hi: lo})
		}
		if hi+1 > cur {
			cur = hi + 1
		}
	}
	if cur <= within.Hi {
		out = append(out, Closed{Lo: cur, Hi: within.Hi})
	}
	return out
}

// Restrict removes the open interval (0, exclLo) from every interval
// of U that overlaps it. It returns the updated union.
func Restrict(u []Closed, exclLo int64) []Closed {
	var out []Closed
	for _, c := range u {
		if c.Hi < exclLo {
			continue
		}
		if c.Lo < exclLo {
			c.Lo = exclLo
		}
		out = append(out, c)
	}
	return out
}

// Hull reduces a union of disjoint intervals U to a single interval
// [min U, max U], provided no gap inside the convex hull of U is at least
// as wide as eps. It returns ErrDisjoint otherwise.
func Hull(u []Closed, eps int64) (Closed, error) {
	if len(u) == 0 {
		return Closed{}, fmt.Errorf("%w: empty interval union", ErrDisjoint)
	}
	sorted := Union(u)

	lo := sorted[0].Lo
	hi := sorted[len(sorted)-1].Hi
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Lo - sorted[i-1].Hi
		if gap >= eps {
			return Closed{}, fmt.Errorf("%w: gap of %d years at [%d,%d]", ErrDisjoint, gap, sorted[i-1].Hi, sorted[i].Lo)
		}
	}
	return Closed{Lo: lo, Hi: hi}, nil
}

// TightestFeasible returns the point of U closest to the required
// minimum age a, used by the placement fallback when Hull fails and a
// single divergence must be emitted at the tightest feasible age.
func TightestFeasible(u []Closed, a int64) int64 {
	sorted := Union(u)
	if len(sorted) == 0 {
		return a
	}
	best := sorted[0].Hi
	bestDist := absInt64(sorted[0].Hi - a)
	for _, c := range sorted {
		if c.Lo <= a && a <= c.Hi {
			return a
		}
		for _, candidate := range []int64{c.Lo, c.Hi} {
			d := absInt64(candidate - a)
			if d < bestDist {
				best, bestDist = candidate, d
			}
		}
	}
	return best
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sortByLo(cs []Closed) {
	los := make([]float64, len(cs))
	for i, c := range cs {
		los[i] = float64(c.Lo)
	}
	idx := make([]int, len(cs))
	for i := range idx {
		idx[i] = i
	}
	floats.Argsort(los, idx)
	sorted := make([]Closed, len(cs))
	for i, j := range idx {
		sorted[i] = cs[j]
	}
	copy(cs, sorted)
}
