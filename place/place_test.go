// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package place_test

import (
	"strings"
	"testing"

	"github.com/js-arias/tact"
	"github.com/js-arias/tact/place"
	"github.com/js-arias/tact/rate"
	"github.com/js-arias/tact/taxonomy"
)

const testCSV = `Fam,G1,A
Fam,G1,B
Fam,G2,C
`

func backbone(t *testing.T) *tact.Tree {
	t.Helper()
	tr := tact.New("test", 10)
	in, err := tr.Add(tr.Root(), 5, "")
	if err != nil {
		t.Fatalf("Add internal: %v", err)
	}
	if _, err := tr.Add(in, 5, "A"); err != nil {
		t.Fatalf("Add A: %v", err)
	}
	if _, err := tr.Add(in, 5, "B"); err != nil {
		t.Fatalf("Add B: %v", err)
	}
	return tr
}

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.BuildFromCSV(strings.NewReader(testCSV))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}
	return tax
}

// recorder is a place.Logger that records every event, keyed by tag, for
// assertions.
type recorder struct {
	events map[string][]string
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]string)}
}

func (r *recorder) Info(tag, taxon, msg string)  { r.record(tag, taxon) }
func (r *recorder) Warn(tag, taxon, msg string)  { r.record(tag, taxon) }
func (r *recorder) Error(tag, taxon, msg string) { r.record(tag, taxon) }

func (r *recorder) record(tag, taxon string) {
	r.events[tag] = append(r.events[tag], taxon)
}

func TestEngineGraftsMissingSpecies(t *testing.T) {
	tr := backbone(t)
	tax := testTaxonomy(t)
	rec := newRecorder()

	e := place.NewEngine(tr, tax, place.RateTable{}, 0, 0, 1, rec)
	if err := e.Run(tax.PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := tr.TaxNode("C"); !ok {
		t.Fatalf("C was not grafted onto the backbone")
	}
	if got := len(tr.Terms()); got != 3 {
		t.Errorf("backbone has %d terminals, want 3", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("backbone failed validation after placement: %v", err)
	}
	if e.NumPlaced == 0 {
		t.Errorf("NumPlaced = 0, want at least 1")
	}
}

func TestEngineNothingToDoIsNoop(t *testing.T) {
	tr := tact.New("test", 10)
	in, _ := tr.Add(tr.Root(), 5, "")
	tr.Add(in, 5, "A")
	tr.Add(in, 5, "B")

	tax, err := taxonomy.BuildFromCSV(strings.NewReader("Fam,G1,A\nFam,G1,B\n"))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}

	e := place.NewEngine(tr, tax, place.RateTable{}, 0, 0, 1, nil)
	if err := e.Run(tax.PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(tr.Terms()); got != 2 {
		t.Errorf("backbone has %d terminals, want 2 (nothing should have been added)", got)
	}
	if e.NumPlaced != 0 {
		t.Errorf("NumPlaced = %d, want 0", e.NumPlaced)
	}
}

func TestEngineCancelStopsRun(t *testing.T) {
	tr := backbone(t)
	tax := testTaxonomy(t)

	e := place.NewEngine(tr, tax, place.RateTable{}, 0, 0, 1, nil)
	calls := 0
	err := e.Run(tax.PostOrder(), func() bool {
		calls++
		return true
	})
	if err != place.ErrCancelled {
		t.Fatalf("Run = %v, want ErrCancelled", err)
	}
	if calls != 1 {
		t.Errorf("cancel called %d times, want 1", calls)
	}
}

func TestEngineDeterministicAcrossRuns(t *testing.T) {
	tr1 := backbone(t)
	e1 := place.NewEngine(tr1, testTaxonomy(t), place.RateTable{}, 0, 0, 7, nil)
	if err := e1.Run(testTaxonomy(t).PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	age1 := tr1.Age(mustNode(t, tr1, "C"))

	tr2 := backbone(t)
	e2 := place.NewEngine(tr2, testTaxonomy(t), place.RateTable{}, 0, 0, 7, nil)
	if err := e2.Run(testTaxonomy(t).PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	age2 := tr2.Age(mustNode(t, tr2, "C"))

	if age1 != age2 {
		t.Errorf("same seed produced different ages for C: %d vs %d", age1, age2)
	}
}

func mustNode(t *testing.T, tr *tact.Tree, name string) int {
	t.Helper()
	id, ok := tr.TaxNode(name)
	if !ok {
		t.Fatalf("%q not found on backbone", name)
	}
	return id
}

func TestEngineCCPFallback(t *testing.T) {
	// G1 has two sampled species out of ten known: its crown-capture
	// probability is far below the default cutoff, so it is never fit
	// on its own and must inherit the family's rate, with the family
	// recorded as the source and stem attachment permitted.
	tr := backbone(t)
	csv := "Fam,G1,A\nFam,G1,B\n"
	for _, sp := range []string{"C", "D", "E", "F", "G", "H", "I", "J"} {
		csv += "Fam,G1," + sp + "\n"
	}
	tax, err := taxonomy.BuildFromCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}
	g1, ok := tax.ID("G1")
	if !ok {
		t.Fatalf("G1 not found in taxonomy")
	}
	fam, ok := tax.ID("Fam")
	if !ok {
		t.Fatalf("Fam not found in taxonomy")
	}
	rates := place.RateTable{fam: rate.Result{Birth: 1, Source: "Fam"}}

	rec := newRecorder()
	e := place.NewEngine(tr, tax, rates, 0, 0, 1, rec)
	if err := e.Run(tax.PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if e.NumCCPFallback == 0 {
		t.Errorf("NumCCPFallback = 0, want at least 1")
	}
	var logged bool
	for _, taxon := range rec.events[place.TagCCPBelowCutoff] {
		if taxon == "Fam/G1" {
			logged = true
		}
	}
	if !logged {
		t.Errorf("no CCPBelowCutoff event logged for Fam/G1: %v", rec.events)
	}
	row, ok := e.Rates[g1]
	if !ok {
		t.Fatalf("no rates row for G1: %v", e.Rates)
	}
	if row.Source != "Fam" {
		t.Errorf("rate source for G1 = %q, want %q", row.Source, "Fam")
	}
	if got := len(tr.Terms()); got != 10 {
		t.Errorf("backbone has %d terminals, want 10", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("backbone failed validation after placement: %v", err)
	}
}

func TestEngineMinAgeViolation(t *testing.T) {
	// G2 is fully unsampled and carries a minimum age older than any
	// legal attachment point under Fam (the backbone root is at 10):
	// the constraint rides up to Fam, the restricted interval comes out
	// empty, and the engine must fall back to a single constrained
	// divergence instead of failing.
	tr := backbone(t)
	tax := testTaxonomy(t)
	rec := newRecorder()

	e := place.NewEngine(tr, tax, place.RateTable{}, 0, 0, 1, rec)
	g2, ok := tax.ID("G2")
	if !ok {
		t.Fatalf("G2 not found in taxonomy")
	}
	e.SetMinAge(g2, 20)

	if err := e.Run(tax.PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.NumMinAgeViol != 1 {
		t.Errorf("NumMinAgeViol = %d, want 1", e.NumMinAgeViol)
	}
	if len(rec.events[place.TagMinAgeViolation]) != 1 {
		t.Errorf("MinAgeViolation logged %d times, want 1", len(rec.events[place.TagMinAgeViolation]))
	}
	if _, ok := tr.TaxNode("C"); !ok {
		t.Errorf("C was not grafted despite the constrained fallback")
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("backbone failed validation after constrained placement: %v", err)
	}
}

func TestEngineRogueTipLoggedOncePerTaxon(t *testing.T) {
	// G1 (A, B) is paraphyletic: X sits on the backbone between them, so
	// every ancestor that walks past G1 on its way to resolving its own
	// missing species sees it as a rogue tip. It must still be logged
	// only once across the whole run, not once per ancestor.
	tr := tact.New("test", 10)
	m, _ := tr.Add(tr.Root(), 5, "")
	tr.Add(m, 3, "A")
	tr.Add(m, 4, "X")
	tr.Add(tr.Root(), 9, "B")

	csv := "Fam,Sub,G1,A\nFam,Sub,G1,B\nFam,Sub,G3,E\nFam,G4,X\nFam,G5,Y\n"
	tax, err := taxonomy.BuildFromCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}

	rec := newRecorder()
	e := place.NewEngine(tr, tax, place.RateTable{}, 0, 0, 1, rec)
	if err := e.Run(tax.PostOrder(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var g1Count int
	for _, taxon := range rec.events[place.TagRogueTip] {
		if taxon == "Fam/Sub/G1" {
			g1Count++
		}
	}
	if g1Count != 1 {
		t.Errorf("Fam/Sub/G1 rogue-tip warning logged %d times, want exactly 1", g1Count)
	}
}
