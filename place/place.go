// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package place implements the monophyly-aware placement engine:
// walking the taxonomy bottom-up, for each taxonomic group it discovers
// the backbone edges that are legal attachment points, enforces
// monophyly of already-sampled sibling clades, and grafts the group's
// unsampled species onto those edges with branching times drawn from
// package branch's birth-death sampler on the interval package interval
// computes from the taxonomy's age constraints.
package place

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/js-arias/tact"
	"github.com/js-arias/tact/fastmrca"
	"github.com/js-arias/tact/interval"
	"github.com/js-arias/tact/rate"
	"github.com/js-arias/tact/taxonomy"
)

// Stable log tags, used to classify the run's log stream.
const (
	TagFullyLocked         = "FullyLocked"
	TagMinAgeViolation     = "MinAgeViolation"
	TagRateFitFailed       = "RateFitFailed"
	TagCCPBelowCutoff      = "CCPBelowCutoff"
	TagUltrametricRepaired = "UltrametricRepaired"
	TagRogueTip            = "RogueTip"
	TagNearZeroBranch      = "NearZeroBranch"
)

// ErrMonophylyBroken reports an internal invariant failure: the engine
// never places a species in a way that breaks the monophyly of a group
// that was monophyletic on the input backbone, so reaching it is a bug.
var ErrMonophylyBroken = errors.New("place: monophyly invariant violated")

// ErrCancelled is returned by Run when the caller's cancellation flag
// fires between taxa.
var ErrCancelled = errors.New("place: run cancelled")

// A Logger receives the classified log events of a run, one call per
// event, keyed by the taxon path that triggered it.
type Logger interface {
	Info(tag, taxon, msg string)
	Warn(tag, taxon, msg string)
	Error(tag, taxon, msg string)
}

// nopLogger discards every event; used when a caller passes a nil
// Logger to NewEngine.
type nopLogger struct{}

func (nopLogger) Info(tag, taxon, msg string)  {}
func (nopLogger) Warn(tag, taxon, msg string)  {}
func (nopLogger) Error(tag, taxon, msg string) {}

// A RateTable holds the admitted rate.Result of every taxonomic node for
// which the estimation phase found a qualifying fit, keyed by taxonomy
// node ID.
type RateTable map[int]rate.Result

// A RateRow is one row of the output rates table:
// the rate actually used to place a taxon, its source, and the
// crown-capture probability that gated admission.
type RateRow struct {
	Birth, Death, CCP float64
	Source            string
}

// resolveRate walks from g up through the taxonomy to the nearest
// ancestor-or-self with an admitted fit. It reports the rate, the
// source taxon's label, and whether any ancestor had a fit at all.
func resolveRate(tax *taxonomy.Taxonomy, rates RateTable, g int) (rate.Result, string, bool) {
	for id := g; id >= 0; id = tax.Parent(id) {
		if r, ok := rates[id]; ok {
			return r, tax.Name(id), true
		}
	}
	return rate.Result{}, "", false
}

// An Engine resolves a taxonomy bottom-up onto a mutable backbone
// tree. The zero value is not usable; use NewEngine.
type Engine struct {
	backbone *tact.Tree
	cache    *fastmrca.Cache
	tax      *taxonomy.Taxonomy
	rates    RateTable
	theta    float64
	eps      int64 // minimum gap treated as a genuine disjoint constraint
	seed     uint64
	log      Logger

	// minAge propagates a minimum stem-age constraint from a
	// fully-unsampled subgroup to its parent's admissible-interval
	// computation, keyed by taxonomy node ID.
	minAge map[int]int64

	// rogueLogged dedupes the rogue-tip warning: a non-monophyletic
	// taxon is a descendant of every one of its ancestors, but it is
	// logged once per taxon, not once per ancestor.
	rogueLogged map[int]bool

	// Rates is the output rates table: one row per taxonomic node for
	// which placement was attempted, keyed by taxonomy node ID.
	Rates map[int]RateRow

	// Counters for the end-of-run validation summary.
	NumPlaced      int
	NumFullyLocked int
	NumCCPFallback int
	NumMinAgeViol  int
	NumRogueTips   int
}

// NewEngine builds a placement engine over a backbone tree and taxonomy.
// theta is the crown-capture-probability admission threshold; eps is the
// minimum gap width interval.Hull treats as disjoint; seed parameterizes
// every sub-seed this engine derives. A nil Logger discards every
// event.
func NewEngine(backbone *tact.Tree, tax *taxonomy.Taxonomy, rates RateTable, theta float64, eps int64, seed uint64, log Logger) *Engine {
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		backbone:    backbone,
		cache:       fastmrca.New(backbone),
		tax:         tax,
		rates:       rates,
		theta:       theta,
		eps:         eps,
		seed:        seed,
		log:         log,
		minAge:      make(map[int]int64),
		rogueLogged: make(map[int]bool),
		Rates:       make(map[int]RateRow),
	}
}

// SetMinAge records a minimum age for any new divergence of the
// indicated taxonomic node. A constraint set on a fully
// unsampled group is propagated to the ancestor that ends up grafting
// its species.
func (e *Engine) SetMinAge(taxon int, age int64) {
	e.minAge[taxon] = age
}

// Run resolves every taxonomic node in order (post-order over the
// taxonomy, ties broken by label, the order taxonomy.PostOrder already
// returns), checking cancel between taxa. It returns ErrCancelled if
// cancel reports true, or any fatal structural error.
func (e *Engine) Run(order []int, cancel func() bool) error {
	for _, g := range order {
		if cancel != nil && cancel() {
			return ErrCancelled
		}
		if err := e.resolve(g); err != nil {
			return err
		}
	}
	return nil
}

// subSeeds derives two deterministic 64-bit sub-seeds for a taxon path,
// by hashing the global seed with the path string, so a single global
// seed produces bit-identical outputs across runs regardless of how the
// estimation phase was scheduled.
func (e *Engine) subSeeds(path string) (uint64, uint64) {
	h1 := fnv.New64a()
	fmt.Fprintf(h1, "%d:%s:1", e.seed, path)
	h2 := fnv.New64a()
	fmt.Fprintf(h2, "%d:%s:2", e.seed, path)
	return h1.Sum64(), h2.Sum64()
}

func (e *Engine) taxonPath(g int) string {
	var names []string
	for id := g; id >= 0 && id != e.tax.Root(); id = e.tax.Parent(id) {
		names = append([]string{e.tax.Name(id)}, names...)
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

// sampledOf intersects a species list with the backbone's current
// terminal names.
func (e *Engine) sampledOf(species []string) []string {
	var out []string
	for _, s := range species {
		if _, ok := e.backbone.TaxNode(s); ok {
			out = append(out, s)
		}
	}
	return out
}

func diff(full, sampled []string) []string {
	in := make(map[string]bool, len(sampled))
	for _, s := range sampled {
		in[s] = true
	}
	var out []string
	for _, s := range full {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

// resolve performs the per-group placement transaction for a single
// taxonomic node g.
func (e *Engine) resolve(g int) error {
	full := e.tax.Species(g)
	if len(full) == 0 {
		return nil // Skipped: no leaves.
	}
	sampled := e.sampledOf(full)
	missing := diff(full, sampled)
	if len(missing) == 0 {
		return nil // Skipped: nothing to add.
	}
	path := e.taxonPath(g)

	if len(sampled) == 0 {
		// Fully unsampled: this group contributes leaves but has no
		// MRCA yet. Its species stay in missing(parent) and are
		// grafted, grouped into their own clade, when the parent is
		// resolved (groupItems below). A minimum-age constraint on the
		// group rides along to the ancestor that will do the graft.
		if a, ok := e.minAge[g]; ok {
			if p := e.tax.Parent(g); p >= 0 {
				e.minAge[p] = maxInt64(e.minAge[p], a)
			}
		}
		return nil
	}

	m := e.cache.MRCA(sampled...)
	if m < 0 {
		return fmt.Errorf("%w: no MRCA for sampled species of %q", ErrMonophylyBroken, path)
	}
	crownAge := e.backbone.Age(m)
	stemAge := e.stemAge(m)

	res, source, ok := resolveRate(e.tax, e.rates, g)
	if !ok {
		// No ancestor ever had an admitted fit; fall back to a pure
		// Yule estimate from the clade itself so placement can still
		// proceed.
		e.log.Warn(TagRateFitFailed, path, "no admitted rate fit available from self or any ancestor; using an analytic Yule fallback")
		t := crownAge
		if t <= 0 {
			t = stemAge
		}
		res = rate.Cherry(len(full), float64(t)/millionYears)
		source = e.tax.Name(g)
	}

	var ccp float64
	if len(sampled) >= 2 {
		ccp = rate.CCP(len(sampled), len(full))
	}
	e.Rates[g] = RateRow{Birth: res.Birth, Death: res.Death, CCP: ccp, Source: source}

	admitted := rate.Admits(len(sampled), len(full), e.theta)
	if !admitted {
		e.NumCCPFallback++
		e.log.Info(TagCCPBelowCutoff, path, "crown-capture probability below cutoff; stem attachment permitted")
	}

	marked, rogue := e.markedEdges(g)
	for _, h := range rogue {
		if e.rogueLogged[h] {
			continue
		}
		e.rogueLogged[h] = true
		e.NumRogueTips++
		e.log.Warn(TagRogueTip, e.taxonPath(h), "taxon is not monophyletic in the backbone; TACT does not restrict placement within it")
	}

	valid := e.validEdgesUnder(m, marked)
	fullyLocked := len(valid) == 0
	if fullyLocked {
		e.NumFullyLocked++
		e.log.Info(TagFullyLocked, path, "every edge under the crown is locked by a nested monophyletic taxon; attaching at the stem")
		valid = []int{m}
	}

	hi := crownAge
	if !admitted || fullyLocked {
		hi = stemAge
	}
	// Edges strictly inside a nested monophyletic taxon are already
	// excluded from valid; the admissible interval's lower bound must
	// follow that same exclusion; e.lowerReach(valid) is 0 whenever some
	// unmarked edge still reaches down to the present, and the crown age
	// when only the stem itself remains attachable. The other remaining
	// restriction is the minimum-age constraint propagated from a
	// fully-unsampled subgroup already folded into this group.
	base := interval.Closed{Lo: e.lowerReach(valid), Hi: hi}
	unions := []interval.Closed{base}
	if minA, ok := e.minAge[g]; ok {
		unions = interval.Restrict(unions, minA)
	}

	hull, err := interval.Hull(unions, e.eps)
	if err != nil {
		e.NumMinAgeViol++
		required := stemAge
		if minA, ok := e.minAge[g]; ok {
			required = minA
		}
		at := e.constrainedAge(base, required)
		hull = interval.Closed{Lo: at, Hi: at}
		e.log.Warn(TagMinAgeViolation, path, fmt.Sprintf("%v: emitting a single constrained divergence at age %d", err, at))
	}

	groups := e.groupItems(g, missing)
	for _, gr := range groups {
		if err := e.graftGroup(valid, hull, gr, path, source, res.Birth, res.Death); err != nil {
			return err
		}
	}
	e.NumPlaced++
	return nil
}

// constrainedAge returns the age closest to required that still lies
// inside the feasible interval, stepped one gap width in from the
// boundary so the divergence lands on an edge instead of on an existing
// node.
func (e *Engine) constrainedAge(base interval.Closed, required int64) int64 {
	step := e.eps
	if step < 1 {
		step = 1
	}
	at := interval.TightestFeasible([]interval.Closed{base}, required)
	if at >= base.Hi {
		at = base.Hi - step
	}
	if at <= base.Lo {
		at = base.Lo + step
	}
	if at > base.Hi {
		at = base.Hi
	}
	return at
}

const millionYears = 1_000_000

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) stemAge(m int) int64 {
	p := e.backbone.Parent(m)
	if p < 0 {
		return e.backbone.Age(m)
	}
	return e.backbone.Age(p)
}

// lowerReach returns the youngest age at which some edge in valid can
// actually host a new divergence: the minimum child-node age among valid
// edges, or 0 if any of them bottoms out at the present. A draw younger
// than this has no edge left to land on, since edges strictly inside a
// nested monophyletic taxon were already excluded from valid.
func (e *Engine) lowerReach(valid []int) int64 {
	lo := int64(-1)
	for _, id := range valid {
		if id == e.backbone.Root() {
			continue
		}
		a := e.backbone.Age(id)
		if lo < 0 || a < lo {
			lo = a
		}
	}
	if lo < 0 {
		return 0
	}
	return lo
}

// markedEdges returns the set of backbone node IDs that lie strictly
// inside a smaller sampled monophyletic taxon below g, and
// the taxonomy node IDs of any non-monophyletic ("rogue tip") descendant
// taxa, with at least two sampled species, found along the way.
func (e *Engine) markedEdges(g int) (map[int]bool, []int) {
	marked := make(map[int]bool)
	var rogue []int
	e.walkDescendants(g, func(h int) {
		sampledH := e.sampledOf(e.tax.Species(h))
		if len(sampledH) < 2 {
			return
		}
		if !e.cache.Monophyletic(sampledH) {
			rogue = append(rogue, h)
			return
		}
		mrcaH := e.cache.MRCA(sampledH...)
		e.markStrictDescendants(mrcaH, marked)
	})
	return marked, rogue
}

func (e *Engine) markStrictDescendants(id int, marked map[int]bool) {
	for _, c := range e.backbone.Children(id) {
		marked[c] = true
		e.markStrictDescendants(c, marked)
	}
}

// walkDescendants visits every proper taxonomic descendant of g (any
// depth, internal nodes only).
func (e *Engine) walkDescendants(g int, visit func(id int)) {
	for _, c := range e.tax.Children(g) {
		if e.tax.IsSpecies(c) {
			continue
		}
		visit(c)
		e.walkDescendants(c, visit)
	}
}

// validEdgesUnder returns every backbone node ID in the subtree rooted
// at m (m itself included, as its own stem edge) whose edge is not
// marked.
func (e *Engine) validEdgesUnder(m int, marked map[int]bool) []int {
	var out []int
	var walk func(id int)
	walk = func(id int) {
		if !marked[id] {
			out = append(out, id)
		}
		for _, c := range e.backbone.Children(id) {
			walk(c)
		}
	}
	walk(m)
	sort.Ints(out)
	return out
}

// pickValidEdge returns a uniformly random current edge able to host a
// new divergence at the draw age: each valid edge is followed up its
// current ancestor chain (earlier grafts may have subdivided it) to the
// edge whose age range straddles at. It falls back to the full edge set
// if no edge straddles exactly (can happen at the bounds of the
// admissible interval because of integer rounding).
func (e *Engine) pickValidEdge(valid []int, at int64, rng *rand.Rand) int {
	seen := make(map[int]bool)
	var straddle []int
	for _, id := range valid {
		if id == e.backbone.Root() || e.backbone.Age(id) >= at {
			continue
		}
		c := id
		for {
			p := e.backbone.Parent(c)
			if p < 0 || e.backbone.Age(p) > at {
				break
			}
			c = p
		}
		p := e.backbone.Parent(c)
		if p < 0 || e.backbone.Age(c) >= at || at >= e.backbone.Age(p) || seen[c] {
			continue
		}
		seen[c] = true
		straddle = append(straddle, c)
	}
	if len(straddle) == 0 {
		straddle = valid
	}
	if len(straddle) == 0 {
		return e.backbone.Root()
	}
	return straddle[rng.IntN(len(straddle))]
}
