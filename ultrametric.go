// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package tact

import "fmt"

// Ultrametric reports whether every terminal of the tree has age zero
// within the given tolerance. Tolerance is a fraction of the tree's root
// age; a tolerance of 0 uses DefaultPrecision.
func (t *Tree) Ultrametric(tolerance float64) bool {
	if tolerance <= 0 {
		tolerance = DefaultPrecision
	}
	max := t.maxTermAgeDiff()
	limit := tolerance * float64(t.root.age)
	return float64(max) <= limit
}

// RepairUltrametric adjusts terminal branch lengths so that every
// terminal has age exactly zero, distributing the correction to the
// terminal edges. It returns ErrNonUltrametric, without
// modifying the tree, if the largest terminal age exceeds the tolerance
// (a fraction of the root age; 0 uses DefaultPrecision).
func (t *Tree) RepairUltrametric(tolerance float64) error {
	if tolerance <= 0 {
		tolerance = DefaultPrecision
	}
	max := t.maxTermAgeDiff()
	limit := tolerance * float64(t.root.age)
	if float64(max) > limit {
		return fmt.Errorf("%w: largest terminal age %d exceeds tolerance", ErrNonUltrametric, max)
	}
	for _, n := range t.nodes {
		if !n.isTerm() {
			continue
		}
		if n.age == 0 {
			continue
		}
		n.brLen += n.age
		n.age = 0
	}
	return nil
}

func (t *Tree) maxTermAgeDiff() int64 {
	var max int64
	for _, n := range t.nodes {
		if !n.isTerm() {
			continue
		}
		d := n.age
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}
