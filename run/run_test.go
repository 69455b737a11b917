// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package run_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/js-arias/tact"
	"github.com/js-arias/tact/run"
	"github.com/js-arias/tact/taxonomy"
)

const millionYears = 1_000_000

func readTaxonomy(t *testing.T, csv string) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.BuildFromCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}
	return tax
}

// cherryBackbone is a two-terminal tree of crown age 1 (in million
// years): the smallest backbone a genus can be sampled by.
func cherryBackbone(t *testing.T) *tact.Tree {
	t.Helper()
	tr := tact.New("cherry", millionYears)
	if _, err := tr.Add(tr.Root(), millionYears, "A"); err != nil {
		t.Fatalf("Add A: %v", err)
	}
	if _, err := tr.Add(tr.Root(), millionYears, "B"); err != nil {
		t.Fatalf("Add B: %v", err)
	}
	return tr
}

func TestResolveCherry(t *testing.T) {
	tr := cherryBackbone(t)
	tax := readTaxonomy(t, "Fam,Gen,A\nFam,Gen,B\nFam,Gen,C\n")

	var buf bytes.Buffer
	res, err := run.Resolve(context.Background(), tr, tax, run.Config{Seed: 0x5AC7}, run.NewWriterLogger(&buf), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := len(tr.Terms()); got != 3 {
		t.Fatalf("resolved tree has %d terminals, want 3", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("resolved tree failed validation: %v", err)
	}
	if !tr.Ultrametric(0) {
		t.Errorf("resolved tree is not ultrametric")
	}

	c, ok := tr.TaxNode("C")
	if !ok {
		t.Fatalf("C was not grafted onto the backbone")
	}
	age := tr.Age(tr.Parent(c))
	if age <= 0 || age >= millionYears {
		t.Errorf("divergence age of C = %d, want inside (0, %d)", age, int64(millionYears))
	}

	// the genus is a cherry with a known species pool of three: the
	// analytic Yule estimate is ln(3) per million years with no
	// extinction.
	row, ok := res.Rates["Fam/Gen"]
	if !ok {
		t.Fatalf("no rates row for Fam/Gen: %v", res.Rates)
	}
	if want := math.Log(3); math.Abs(row.Birth-want) > 1e-6 {
		t.Errorf("birth rate for Fam/Gen = %g, want %g", row.Birth, want)
	}
	if row.Death != 0 {
		t.Errorf("death rate for Fam/Gen = %g, want 0", row.Death)
	}
	if row.Source != "Gen" {
		t.Errorf("rate source for Fam/Gen = %q, want %q", row.Source, "Gen")
	}
}

const sisterCSV = `Fam,GenA,A1
Fam,GenA,A2
Fam,GenA,A3
Fam,GenB,B1
Fam,GenB,B2
Fam,GenB,B3
Fam,GenO,O1
`

// sisterBackbone samples GenA completely (crown age 2, stem age 4, in
// million years) together with the single species of GenO; GenB is
// known only from the taxonomy.
func sisterBackbone(t *testing.T) *tact.Tree {
	t.Helper()
	tr := tact.New("sister", 4*millionYears)
	if _, err := tr.Add(tr.Root(), 4*millionYears, "O1"); err != nil {
		t.Fatalf("Add O1: %v", err)
	}
	m, err := tr.Add(tr.Root(), 2*millionYears, "")
	if err != nil {
		t.Fatalf("Add crown of GenA: %v", err)
	}
	if _, err := tr.Add(m, 2*millionYears, "A1"); err != nil {
		t.Fatalf("Add A1: %v", err)
	}
	in, err := tr.Add(m, millionYears, "")
	if err != nil {
		t.Fatalf("Add inner node of GenA: %v", err)
	}
	if _, err := tr.Add(in, millionYears, "A2"); err != nil {
		t.Fatalf("Add A2: %v", err)
	}
	if _, err := tr.Add(in, millionYears, "A3"); err != nil {
		t.Fatalf("Add A3: %v", err)
	}
	return tr
}

func mono(t *testing.T, tr *tact.Tree, names ...string) bool {
	t.Helper()
	m := tr.MRCA(names...)
	if m < 0 {
		t.Fatalf("no MRCA for %v", names)
	}
	return len(tr.LeavesUnder(m)) == len(names)
}

func TestResolveUnsampledSisterGenus(t *testing.T) {
	tr := sisterBackbone(t)
	tax := readTaxonomy(t, sisterCSV)

	res, err := run.Resolve(context.Background(), tr, tax, run.Config{Seed: 0x5AC7}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := len(tr.Terms()); got != 7 {
		t.Fatalf("resolved tree has %d terminals, want 7", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("resolved tree failed validation: %v", err)
	}
	if !tr.Ultrametric(0) {
		t.Errorf("resolved tree is not ultrametric")
	}

	if !mono(t, tr, "A1", "A2", "A3") {
		t.Errorf("GenA is no longer monophyletic after placement")
	}
	if !mono(t, tr, "B1", "B2", "B3") {
		t.Errorf("GenB was not grafted as its own clade")
	}

	// pre-existing divergences keep their ages
	if age := tr.Age(tr.MRCA("A1", "A2")); age != 2*millionYears {
		t.Errorf("crown age of GenA = %d, want %d", age, int64(2*millionYears))
	}
	if age := tr.Age(tr.MRCA("A2", "A3")); age != millionYears {
		t.Errorf("inner divergence of GenA = %d, want %d", age, int64(millionYears))
	}
	if age := tr.Age(tr.Root()); age != 4*millionYears {
		t.Errorf("root age = %d, want %d", age, int64(4*millionYears))
	}

	if res.NumPlaced == 0 {
		t.Errorf("NumPlaced = 0, want at least 1")
	}
}

func bDivergences(t *testing.T, tr *tact.Tree) []int64 {
	t.Helper()
	ages := []int64{tr.Age(tr.MRCA("B1", "B2", "B3"))}
	for _, n := range []string{"B1", "B2", "B3"} {
		id, ok := tr.TaxNode(n)
		if !ok {
			t.Fatalf("%q not found on backbone", n)
		}
		ages = append(ages, tr.Age(tr.Parent(id)))
	}
	return ages
}

func TestResolveDeterministic(t *testing.T) {
	tax := readTaxonomy(t, sisterCSV)

	tr1 := sisterBackbone(t)
	if _, err := run.Resolve(context.Background(), tr1, tax, run.Config{Seed: 11}, nil, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	tr2 := sisterBackbone(t)
	if _, err := run.Resolve(context.Background(), tr2, tax, run.Config{Seed: 11}, nil, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	a1, a2 := bDivergences(t, tr1), bDivergences(t, tr2)
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("same seed produced different divergences: %v vs %v", a1, a2)
		}
	}

	tr3 := sisterBackbone(t)
	if _, err := run.Resolve(context.Background(), tr3, tax, run.Config{Seed: 12}, nil, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	a3 := bDivergences(t, tr3)
	var differ bool
	for i := range a1 {
		if a1[i] != a3[i] {
			differ = true
			break
		}
	}
	if !differ {
		t.Errorf("different seeds produced identical divergences: %v", a1)
	}
}

func TestResolveYuleFlag(t *testing.T) {
	tr := sisterBackbone(t)
	tax := readTaxonomy(t, sisterCSV)

	res, err := run.Resolve(context.Background(), tr, tax, run.Config{Seed: 0x5AC7, Yule: true}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for p, row := range res.Rates {
		if row.Death != 0 {
			t.Errorf("rates row %q: death = %g, want 0 under the yule flag", p, row.Death)
		}
	}
}

func TestRatesRoundTrip(t *testing.T) {
	tr := cherryBackbone(t)
	tax := readTaxonomy(t, "Fam,Gen,A\nFam,Gen,B\nFam,Gen,C\n")

	res, err := run.Resolve(context.Background(), tr, tax, run.Config{Seed: 1}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var buf bytes.Buffer
	if err := run.WriteRates(&buf, res); err != nil {
		t.Fatalf("WriteRates: %v", err)
	}
	got, err := run.ReadRates(&buf)
	if err != nil {
		t.Fatalf("ReadRates: %v", err)
	}
	if len(got) != len(res.Rates) {
		t.Fatalf("round trip kept %d rows, want %d", len(got), len(res.Rates))
	}
	for p, row := range res.Rates {
		if got[p] != row {
			t.Errorf("row %q = %+v, want %+v", p, got[p], row)
		}
	}
}
