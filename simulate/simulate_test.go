// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package simulate_test

import (
	"testing"

	"github.com/js-arias/tact"
	"github.com/js-arias/tact/simulate"
)

func TestUniform(t *testing.T) {
	ages := []int64{0, 0, 5, 10, 20}
	tr := simulate.Uniform("test", 100, 0, ages)
	if got := len(tr.Terms()); got != len(ages) {
		t.Fatalf("Uniform produced %d terminals, want %d", got, len(ages))
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Uniform tree failed validation: %v", err)
	}
}

func TestCoalescent(t *testing.T) {
	tr := simulate.Coalescent("test", 1000, 100, 6)
	if got := len(tr.Terms()); got != 6 {
		t.Fatalf("Coalescent produced %d terminals, want 6", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Coalescent tree failed validation: %v", err)
	}
}

func TestYule(t *testing.T) {
	var tr *tact.Tree
	for {
		var ok bool
		tr, ok = simulate.Yule("test", 5, 10_000_000, 8)
		if ok {
			break
		}
	}
	if got := len(tr.Terms()); got != 8 {
		t.Fatalf("Yule produced %d terminals, want 8", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("Yule tree failed validation: %v", err)
	}
	if !tr.Ultrametric(0) {
		t.Errorf("Yule tree is not ultrametric")
	}
}

func TestBirthDeath(t *testing.T) {
	var tr *tact.Tree
	for {
		var ok bool
		tr, ok = simulate.BirthDeath("test", 5, 1, 10_000_000, 8)
		if ok {
			break
		}
	}
	if got := len(tr.Terms()); got != 8 {
		t.Fatalf("BirthDeath produced %d terminals, want 8", got)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("BirthDeath tree failed validation: %v", err)
	}
}
