// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package taxonomy_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/js-arias/tact/taxonomy"
)

const csvData = `# Family,Genus,Species
Hominidae,Pan,Pan troglodytes
Hominidae,Pan,Pan paniscus
Hominidae,Homo,Homo sapiens
Hominidae,Gorilla,Gorilla gorilla
`

func TestBuildFromCSV(t *testing.T) {
	tx, err := taxonomy.BuildFromCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}

	want := []string{"Gorilla gorilla", "Homo sapiens", "Pan paniscus", "Pan troglodytes"}
	got := tx.AllSpecies()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllSpecies = %v, want %v", got, want)
	}

	pan, ok := tx.ID("Pan")
	if !ok {
		t.Fatalf("ID(Pan) not found")
	}
	sp := tx.Species(pan)
	if !reflect.DeepEqual(sp, []string{"Pan paniscus", "Pan troglodytes"}) {
		t.Errorf("Species(Pan) = %v", sp)
	}
	if tx.IsSpecies(pan) {
		t.Errorf("IsSpecies(Pan) = true, want false")
	}
}

func TestBuildFromCSVEmptyCell(t *testing.T) {
	_, err := taxonomy.BuildFromCSV(strings.NewReader("Family,,Species\nHominidae,,Pan troglodytes\n"))
	if err == nil {
		t.Fatalf("expecting an error for an empty rank cell")
	}
}

func TestPostOrder(t *testing.T) {
	tx, err := taxonomy.BuildFromCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("BuildFromCSV: %v", err)
	}
	order := tx.PostOrder()
	if len(order) == 0 {
		t.Fatalf("PostOrder: empty")
	}
	// the family must come after its genera.
	family, _ := tx.ID("Hominidae")
	famIdx := -1
	for i, id := range order {
		if id == family {
			famIdx = i
		}
	}
	if famIdx != len(order)-1 {
		t.Errorf("family at index %d, want last (%d)", famIdx, len(order)-1)
	}
}
