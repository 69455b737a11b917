// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package place

import (
	"fmt"
	"sort"

	"github.com/js-arias/tact/branch"
	"github.com/js-arias/tact/interval"
)

// An itemGroup is a set of missing species that graftGroup grafts as a
// single clade: either the direct missing children of a taxon (grouped
// individually, one edge each) or the whole membership of a nested,
// still fully-unsampled taxon, which is built as its own cherry-by-
// cherry clade before it is attached (so a genus known only by name,
// nested under the group being resolved, ends up monophyletic, a new
// clade sister to its sampled relatives).
type itemGroup struct {
	names []string
}

// groupItems partitions missing(g) into itemGroups, grouping every
// species whose nearest ancestor-or-self taxon (up to but excluding g)
// is itself still fully unsampled into one group, keyed by the
// outermost such ancestor so the whole nested clade is built together.
func (e *Engine) groupItems(g int, missing []string) []itemGroup {
	byKey := make(map[int][]string)
	var keys []int
	for _, s := range missing {
		k := e.groupKey(g, s)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], s)
	}
	sort.Ints(keys)

	out := make([]itemGroup, 0, len(keys))
	for _, k := range keys {
		names := byKey[k]
		sort.Strings(names)
		out = append(out, itemGroup{names: names})
	}
	return out
}

// groupKey returns the outermost ancestor of species, strictly between
// species and g, that is still fully unsampled; species whose immediate
// containing taxon already has a sampled member (so it already has its
// own structure in the backbone) get a key unique to themselves, keeping
// them as independent single-species groups.
func (e *Engine) groupKey(g int, species string) int {
	id, ok := e.tax.ID(species)
	if !ok {
		return -1
	}
	best := -1
	for p := e.tax.Parent(id); p >= 0 && p != g; p = e.tax.Parent(p) {
		if len(e.sampledOf(e.tax.Species(p))) > 0 {
			break
		}
		best = p
	}
	if best >= 0 {
		return best
	}
	return id
}

// graftGroup draws len(gr.names) branching times on [hull.Lo, hull.Hi]
// and grafts the group onto the backbone: the first, oldest time
// attaches the group's stem to a uniformly chosen valid edge; every
// later, younger time attaches the next species as a sister of a
// uniformly chosen already-placed member of the same group, climbing
// ancestors until an edge whose age range fits is found: the same
// incremental random-attachment construction simulate.Uniform uses to
// build a tree from an unordered set of ages, here driving the
// backbone's own mutation primitives instead of a freestanding tree.
// Every grafted leaf is
// tagged with source, the taxon whose admitted rate fit produced birth
// and death, so the output TSV records each placement's provenance.
func (e *Engine) graftGroup(valid []int, hull interval.Closed, gr itemGroup, path, source string, birth, death float64) error {
	n := len(gr.names)
	if n == 0 {
		return nil
	}

	s1, s2 := e.subSeeds(path + "#" + gr.names[0])
	rng := branch.NewSource(s1, s2)

	names := append([]string(nil), gr.names...)
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	// Rates are events per million years; the hull is in years.
	lo := float64(hull.Lo) / millionYears
	hi := float64(hull.Hi) / millionYears
	prec := float64(e.eps) / millionYears
	times, degenerate := branch.Sample(rng, birth, death, lo, hi, prec, n)
	if degenerate {
		e.log.Warn(TagNearZeroBranch, path, "admissible interval narrower than precision; new divergences collapse to a single age")
	}

	at0 := clampAge(times[0], hull)
	edge := e.pickValidEdge(valid, at0, rng)
	leaf, err := e.backbone.GraftLeaf(edge, at0, names[0])
	if err != nil {
		return fmt.Errorf("place: grafting %q under %q: %w", names[0], path, err)
	}
	e.cache.GraftLeaf(leaf)
	if err := e.backbone.SetSource(leaf, source); err != nil {
		return fmt.Errorf("place: tagging %q under %q: %w", names[0], path, err)
	}
	placed := []int{leaf}

	for i := 1; i < n; i++ {
		at := clampAge(times[i], hull)
		sis := placed[rng.IntN(len(placed))]
		for {
			p := e.backbone.Parent(sis)
			if p < 0 || e.backbone.Age(p) > at {
				break
			}
			sis = p
		}
		if e.backbone.IsRoot(sis) {
			// The climb reached the global root: fall back to one
			// of its children rather than fail the whole run over a
			// single pathological draw at the very top of the tree.
			if children := e.backbone.Children(sis); len(children) > 0 {
				sis = children[0]
			}
		}

		leaf, err := e.backbone.AddSister(sis, 0, at, names[i])
		if err != nil {
			return fmt.Errorf("place: grafting %q under %q: %w", names[i], path, err)
		}
		e.cache.GraftLeaf(leaf)
		if err := e.backbone.SetSource(leaf, source); err != nil {
			return fmt.Errorf("place: tagging %q under %q: %w", names[i], path, err)
		}
		placed = append(placed, leaf)
	}
	return nil
}

// clampAge converts a sampled time (in million years) back to integer
// years, keeping the result strictly inside the admissible interval when
// truncation would land it exactly on a bounding node's own age, where
// no edge can host it.
func clampAge(t float64, hull interval.Closed) int64 {
	at := int64(t * millionYears)
	if at <= hull.Lo && hull.Lo+1 < hull.Hi {
		at = hull.Lo + 1
	}
	if at >= hull.Hi && hull.Hi-1 > hull.Lo {
		at = hull.Hi - 1
	}
	return at
}
