// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package run implements the driver: Phase 1 fans a rate fit out
// over every taxonomic node concurrently and read-only; Phase 2 walks the
// same nodes, in the same order, strictly sequentially, mutating the
// backbone through package place. A single seed parameterizes every
// sub-seed derived from a taxon's path, so the result does not depend on
// how Phase 1 happened to be scheduled.
package run

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/js-arias/tact"
	"github.com/js-arias/tact/place"
	"github.com/js-arias/tact/rate"
	"github.com/js-arias/tact/taxonomy"
)

// A Config holds the CLI parameters the core recognizes.
type Config struct {
	// MinCCP is the crown-capture-probability admission threshold.
	// Zero uses rate.DefaultTheta.
	MinCCP float64

	// Yule forces every rate fit to death = 0.
	Yule bool

	// Precision is the ultrametricity tolerance, a fraction of the
	// root age. Zero uses tact.DefaultPrecision.
	Precision float64

	// Seed parameterizes every sub-seed this run derives.
	Seed uint64

	// Outgroups is the set of leaf names pruned from the backbone
	// before any fitting.
	Outgroups map[string]bool
}

// A Result summarizes a completed (or cancelled) run for
// result-validation reporting.
type Result struct {
	NumPlaced      int
	NumFullyLocked int
	NumCCPFallback int
	NumMinAgeViol  int
	NumRogueTips   int
	NumFitFailed   int

	// Rates is the output rates table: one row per
	// taxonomic node placement was attempted for, keyed by the node's
	// taxon path.
	Rates map[string]place.RateRow
}

// Resolve prunes outgroups from backbone, then runs Phase 1 (concurrent
// rate estimation) and Phase 2 (sequential placement) over tax, in that
// order. cancel is polled between Phase 2 taxa; a cancellation
// discards the in-memory backbone without attempting rollback, so
// callers that want to keep a pre-cancellation backbone must clone it
// first.
func Resolve(ctx context.Context, backbone *tact.Tree, tax *taxonomy.Taxonomy, cfg Config, log Logger, cancel func() bool) (*Result, error) {
	if log == nil {
		log = nopLogger{}
	}

	for name := range cfg.Outgroups {
		if id, ok := backbone.TaxNode(name); ok {
			if err := backbone.Delete(id); err != nil {
				return nil, fmt.Errorf("run: pruning outgroup %q: %w", name, err)
			}
		}
	}

	precision := cfg.Precision
	if precision <= 0 {
		precision = tact.DefaultPrecision
	}
	if !backbone.Ultrametric(precision) {
		if err := backbone.RepairUltrametric(precision); err != nil {
			return nil, err
		}
		log.Info(place.TagUltrametricRepaired, backbone.Name(), "terminal ages adjusted to exactly zero within tolerance")
	}
	if !backbone.IsBinary() {
		return nil, fmt.Errorf("%w: backbone has an unresolved polytomy", tact.ErrNotBinary)
	}

	order := tax.PostOrder()

	rates, numFailed, err := fitRates(ctx, backbone, tax, order, cfg)
	if err != nil {
		return nil, err
	}

	theta := cfg.MinCCP
	if theta <= 0 {
		theta = rate.DefaultTheta
	}
	eps := int64(precision * float64(backbone.Age(backbone.Root())))

	eng := place.NewEngine(backbone, tax, rates, theta, eps, cfg.Seed, log)
	if err := eng.Run(order, cancel); err != nil {
		return nil, err
	}

	res := &Result{
		NumPlaced:      eng.NumPlaced,
		NumFullyLocked: eng.NumFullyLocked,
		NumCCPFallback: eng.NumCCPFallback,
		NumMinAgeViol:  eng.NumMinAgeViol,
		NumRogueTips:   eng.NumRogueTips,
		NumFitFailed:   numFailed,
		Rates:          make(map[string]place.RateRow, len(eng.Rates)),
	}
	for id, row := range eng.Rates {
		res.Rates[taxonPath(tax, id)] = row
	}
	return res, nil
}

// rateSeeds derives two deterministic 64-bit sub-seeds for a taxon path
// from the run's global seed, the same hash scheme the placement
// engine's own sub-seeding uses, so that Phase 1's fit for a given
// taxon is bit-identical regardless of the order fitRates' worker pool
// happens to schedule it in.
func rateSeeds(seed uint64, path string) (uint64, uint64) {
	h1 := fnv.New64a()
	fmt.Fprintf(h1, "%d:%s:rate:1", seed, path)
	h2 := fnv.New64a()
	fmt.Fprintf(h2, "%d:%s:rate:2", seed, path)
	return h1.Sum64(), h2.Sum64()
}

func taxonPath(tax *taxonomy.Taxonomy, g int) string {
	var names []string
	for id := g; id >= 0 && id != tax.Root(); id = tax.Parent(id) {
		names = append([]string{tax.Name(id)}, names...)
	}
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "/"
		}
		out += n
	}
	return out
}

// fitRates runs Phase 1, embarrassingly parallel over taxonomic nodes:
// every taxonomic node that passes the crown-capture-probability
// admission test attempts a rate.Fit concurrently, against the backbone
// as it stands before any placement mutates it. Results are collected
// over a channel and assembled into a place.RateTable once every worker
// finishes, so Phase 2's order of consumption never depends on the
// order workers happened to finish in. An errgroup.WithContext bounds
// the worker pool and propagates the first error (or ctx cancellation)
// to every other worker.
func fitRates(ctx context.Context, backbone *tact.Tree, tax *taxonomy.Taxonomy, order []int, cfg Config) (place.RateTable, int, error) {
	type fitResult struct {
		id  int
		res rate.Result
		ok  bool
	}

	theta := cfg.MinCCP
	if theta <= 0 {
		theta = rate.DefaultTheta
	}

	jobs := make([]int, 0, len(order))
	for _, g := range order {
		full := tax.Species(g)
		sampled := sampledOf(backbone, full)
		// Fit only if the crown-capture probability meets the
		// threshold; a refused taxon resolves from its nearest fitted
		// ancestor during placement.
		if !rate.Admits(len(sampled), len(full), theta) {
			continue
		}
		jobs = append(jobs, g)
	}

	results := make(chan fitResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fitWorkers())

	for _, id := range jobs {
		id := id
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, ok := fitOne(backbone, tax, id, cfg)
			results <- fitResult{id: id, res: res, ok: ok}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	close(results)

	rates := make(place.RateTable, len(jobs))
	var numFailed int
	for r := range results {
		if !r.ok {
			numFailed++
			continue
		}
		rates[r.id] = r.res
	}
	return rates, numFailed, nil
}

// fitWorkers bounds Phase 1 concurrency; errgroup.SetLimit(0) would mean
// unlimited, which is wrong for a CPU-bound optimizer fan-out over
// potentially thousands of taxa.
func fitWorkers() int {
	return 8
}

// fitOne attempts a single taxon's rate fit against the backbone's
// current (pre-placement) state: the taxon's sampled species must
// already be monophyletic for their branching times to mean anything; a
// non-monophyletic or under-sampled group is left unfit and resolved
// later from its nearest fitted ancestor.
func fitOne(backbone *tact.Tree, tax *taxonomy.Taxonomy, g int, cfg Config) (rate.Result, bool) {
	full := tax.Species(g)
	sampled := sampledOf(backbone, full)
	if len(sampled) < 2 {
		return rate.Result{}, false
	}
	m := backbone.MRCA(sampled...)
	if m < 0 {
		return rate.Result{}, false
	}
	if len(backbone.LeavesUnder(m)) != len(sampled) {
		// Not monophyletic on the current backbone: a rogue tip.
		return rate.Result{}, false
	}

	crownAge := float64(backbone.Age(m)) / millionYears
	times := branchTimes(backbone, m)

	if cfg.Yule {
		res, err := rate.FitYule(times, len(full), len(sampled), crownAge)
		if err != nil {
			return rate.Result{}, false
		}
		res.Source = tax.Name(g)
		return res, true
	}

	seed1, seed2 := rateSeeds(cfg.Seed, taxonPath(tax, g))
	res, err := rate.Fit(times, len(full), len(sampled), crownAge, seed1, seed2)
	if err != nil {
		return rate.Result{}, false
	}
	res.Source = tax.Name(g)
	return res, true
}

func sampledOf(backbone *tact.Tree, species []string) []string {
	var out []string
	for _, s := range species {
		if _, ok := backbone.TaxNode(s); ok {
			out = append(out, s)
		}
	}
	return out
}

// branchTimes collects the internal-node ages strictly below m (the
// clade's own branching times, oldest first, in millions of years),
// package rate's expected input shape.
func branchTimes(backbone *tact.Tree, m int) []float64 {
	var ages []int64
	var walk func(id int)
	walk = func(id int) {
		children := backbone.Children(id)
		if len(children) == 0 {
			return
		}
		if id != m {
			ages = append(ages, backbone.Age(id))
		}
		for _, c := range children {
			walk(c)
		}
	}
	walk(m)
	sort.Slice(ages, func(i, j int) bool { return ages[i] > ages[j] })

	out := make([]float64, len(ages))
	for i, a := range ages {
		out[i] = float64(a) / millionYears
	}
	return out
}

const millionYears = 1_000_000
