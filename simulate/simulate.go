// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package simulate creates random backbone trees for testing the
// placement pipeline.
package simulate

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/js-arias/tact"
	"gonum.org/v1/gonum/stat/distuv"
)

// Rander is a distribution that returns
// a random number.
type Rander interface {
	Rand() float64
}

// Uniform creates a random tree using a uniform prior
// based on the method described by
// Ronquist et al. (2012)
// "A total evidence approach to dating with fossils,
// applied to the early radiation of Hymenoptera"
// Syst. Biol. 61: 973-999.
// doi:10.1093/sysbio/sys058.
// Uniform panics if len(ages) < 2,
func Uniform(name string, max, min int64, ages []int64) *tact.Tree {
	if len(ages) < 2 {
		panic("expecting more than two terminals")
	}

	for _, a := range ages[1:] {
		if a > min {
			min = a
		}
	}
	rootAge := max
	if max > min {
		rootAge = rand.Int64N(max-min) + min
	}

	// shuffle terminals
	rand.Shuffle(len(ages), func(i, j int) {
		ages[i], ages[j] = ages[j], ages[i]
	})

	added := make([]string, 0, len(ages))
	t := tact.New(name, rootAge)
	// first node
	term := "term0"
	if _, err := t.Add(t.Root(), rootAge-ages[0], term); err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
	added = append(added, term)
	term = "term1"
	if _, err := t.Add(t.Root(), rootAge-ages[1], term); err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
	added = append(added, term)

	for i, a := range ages[2:] {
		// pick sister
		s := added[rand.IntN(i+2)]
		sis, _ := t.TaxNode(s)

		// pick age
		oldest := a
		if sa := t.Age(sis); sa > a {
			oldest = sa
		}
		age := rootAge - rand.Int64N(rootAge-oldest) + 1

		// search coalescent sister
		for {
			p := t.Parent(sis)
			pa := t.Age(p)
			if pa > age {
				break
			}
			sis = p
		}

		term := fmt.Sprintf("term%d", i+2)
		if _, err := t.AddSister(sis, a, age-a, term); err != nil {
			panic(fmt.Sprintf("unexpected error: %v", err))
		}
		added = append(added, term)
	}

	return t
}

// Coalescent creates a random tree
// using the Kingman coalescence
// with a population size of n.
// see Felsenstein J. (2004)
// "Inferring Phylogenies", Sinauer, p.456.
// Coalescent panics if terms < 2.
func Coalescent(name string, n float64, max int64, terms int) *tact.Tree {
	if terms < 2 {
		panic("expecting more than two terminals")
	}

	ages := make([]int64, terms-1)
	for i := range ages {
		rate := float64((i+2)*(i+1)) / (4 * n)
		exp := distuv.Exponential{
			Rate: rate,
		}
		a := int64(exp.Rand())
		for a > max {
			a = int64(exp.Rand())
		}
		ages[i] = a
	}
	slices.SortFunc(ages, func(a, b int64) int {
		return cmp.Compare(b, a)
	})

	added := make([]string, 0, terms)
	t := tact.New(name, ages[0])
	// first node
	term := "term0"
	if _, err := t.Add(t.Root(), ages[0], term); err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
	added = append(added, term)
	term = "term1"
	if _, err := t.Add(t.Root(), ages[0], term); err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
	added = append(added, term)

	for i := 2; i < terms; i++ {
		// pick sister
		s := added[rand.IntN(i)]
		sis, _ := t.TaxNode(s)

		// pick age
		age := ages[i-1]

		// search coalescent sister
		for {
			p := t.Parent(sis)
			pa := t.Age(p)
			if pa > age {
				break
			}
			sis = p
		}

		term := fmt.Sprintf("term%d", i)
		if _, err := t.AddSister(sis, 0, age, term); err != nil {
			panic(fmt.Sprintf("unexpected error: %v", err))
		}
		added = append(added, term)
	}

	return t
}

const millionYears = 1_000_000

// Yule creates a random tree with terms terminals under a pure-birth
// process with the given speciation rate (events per million years),
// conditioned on a root age of max (in years). It returns false if the
// process did not end with exactly terms lineages when the simulation
// clock reached max; callers retry until ok is true.
func Yule(name string, rate float64, max int64, terms int) (*tact.Tree, bool) {
	return BirthDeath(name, rate, 0, max, terms)
}

// BirthDeath creates a random tree with terms terminals under a
// constant-rate birth-death process with the given speciation and
// extinction rates (events per million years), conditioned on a crown
// age of max (in years): the process starts with the two crown lineages
// and is simulated forward to the present. Extinct lineages are pruned,
// so the returned tree is the reconstructed phylogeny of the survivors.
// It returns false (and a nil tree) if either crown lineage left no
// survivors, or if the number of surviving lineages at the present is
// not exactly terms. Callers retry until ok is true.
func BirthDeath(name string, birth, death float64, max int64, terms int) (*tact.Tree, bool) {
	if terms < 2 {
		panic("expecting more than two terminals")
	}
	if birth <= 0 {
		panic("expecting a positive speciation rate")
	}

	type lineage struct {
		children [2]int
		split    int64 // age of the speciation ending the lineage
		extinct  bool
	}

	lins := []lineage{{}, {}}
	active := []int{0, 1}
	clock := int64(0)

	for len(active) > 0 {
		totalRate := float64(len(active)) * (birth + death) / millionYears
		wait := int64(distuv.Exponential{Rate: totalRate}.Rand())
		if wait <= 0 {
			wait = 1
		}
		clock += wait
		if clock >= max {
			break
		}
		age := max - clock

		i := rand.IntN(len(active))
		li := active[i]
		if death == 0 || rand.Float64() < birth/(birth+death) {
			a := len(lins)
			lins = append(lins, lineage{}, lineage{})
			lins[li].children = [2]int{a, a + 1}
			lins[li].split = age
			active[i] = a
			active = append(active, a+1)
			continue
		}
		lins[li].extinct = true
		active = append(active[:i], active[i+1:]...)
	}

	if len(active) != terms {
		return nil, false
	}

	// mark the lineages with at least one surviving descendant
	surv := make([]bool, len(lins))
	var mark func(i int) bool
	mark = func(i int) bool {
		l := lins[i]
		if l.children == [2]int{} {
			surv[i] = !l.extinct
			return surv[i]
		}
		s := mark(l.children[0])
		if mark(l.children[1]) {
			s = true
		}
		surv[i] = s
		return s
	}
	if !mark(0) || !mark(1) {
		return nil, false
	}

	// build the reconstructed tree: follow each surviving lineage down,
	// collapsing speciations where only one side survived, until a
	// divergence between two surviving lineages or a living tip.
	t := tact.New(name, max)
	num := 0
	var build func(parent, i int) bool
	build = func(parent, i int) bool {
		for {
			l := lins[i]
			if l.children == [2]int{} {
				term := fmt.Sprintf("term%d", num)
				num++
				_, err := t.Add(parent, t.Age(parent), term)
				return err == nil
			}
			a, b := l.children[0], l.children[1]
			if surv[a] && surv[b] {
				node, err := t.Add(parent, t.Age(parent)-l.split, "")
				if err != nil {
					return false
				}
				return build(node, a) && build(node, b)
			}
			if surv[a] {
				i = a
			} else {
				i = b
			}
		}
	}
	if !build(t.Root(), 0) || !build(t.Root(), 1) {
		return nil, false
	}
	return t, true
}
