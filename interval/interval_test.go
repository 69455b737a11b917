// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package interval_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/js-arias/tact/interval"
)

func TestUnion(t *testing.T) {
	u := interval.Union([]interval.Closed{
		{Lo: 10, Hi: 20},
		{Lo: 0, Hi: 5},
		{Lo: 15, Hi: 30},
	})
	want := []interval.Closed{{Lo: 0, Hi: 5}, {Lo: 10, Hi: 30}}
	if !reflect.DeepEqual(u, want) {
		t.Errorf("Union = %v, want %v", u, want)
	}
}

func TestHullOk(t *testing.T) {
	u := []interval.Closed{{Lo: 0, Hi: 5}, {Lo: 6, Hi: 10}}
	got, err := interval.Hull(u, 2)
	if err != nil {
		t.Fatalf("Hull: %v", err)
	}
	want := interval.Closed{Lo: 0, Hi: 10}
	if got != want {
		t.Errorf("Hull = %v, want %v", got, want)
	}
}

func TestHullDisjoint(t *testing.T) {
	u := []interval.Closed{{Lo: 0, Hi: 5}, {Lo: 20, Hi: 30}}
	_, err := interval.Hull(u, 2)
	if !errors.Is(err, interval.ErrDisjoint) {
		t.Errorf("Hull err = %v, want %v", err, interval.ErrDisjoint)
	}
}

func TestComplement(t *testing.T) {
	within := interval.Closed{Lo: 0, Hi: 100}
	u := []interval.Closed{{Lo: 20, Hi: 40}}
	got := interval.Complement(within, u)
	want := []interval.Closed{{Lo: 0, Hi: 20}, {Lo: 41, Hi: 100}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Complement = %v, want %v", got, want)
	}
}

func TestRestrict(t *testing.T) {
	u := []interval.Closed{{Lo: 0, Hi: 100}}
	got := interval.Restrict(u, 30)
	want := []interval.Closed{{Lo: 30, Hi: 100}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Restrict = %v, want %v", got, want)
	}
}

func TestIntersectAll(t *testing.T) {
	cs := []interval.Closed{{Lo: 0, Hi: 10}, {Lo: 5, Hi: 20}, {Lo: 2, Hi: 8}}
	got := interval.IntersectAll(cs)
	want := interval.Closed{Lo: 5, Hi: 8}
	if got != want {
		t.Errorf("IntersectAll = %v, want %v", got, want)
	}
}
