// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package tact_test

import (
	"reflect"
	"testing"

	"github.com/js-arias/tact"
)

// node is a comparable snapshot of a tree node, used by testTree to
// check a tree built from newick or nexus input against its expected
// shape.
type node struct {
	id       int
	parent   int
	age      int64
	taxon    string
	children []int
	toRoot   int64
	depth    int
}

// treeTest is the expected shape of a tree read from an input source,
// used by TestNewick, TestCollection, and TestNexus.
type treeTest struct {
	name string
	in   string
	age  int64

	nodes  []node
	terms  []string
	taxa   []string
	totLen int64
}

func nodeOf(tr *tact.Tree, id int) node {
	return node{
		id:       id,
		parent:   tr.Parent(id),
		age:      tr.Age(id),
		taxon:    tr.Taxon(id),
		children: tr.Children(id),
		toRoot:   tr.LenToRoot(id),
		depth:    tr.Depth(id),
	}
}

func testTree(t testing.TB, tree *tact.Tree, test treeTest) {
	t.Helper()

	if err := tree.Validate(); err != nil {
		t.Fatalf("%s: unexpected error: %v", test.name, err)
	}

	if nm := tree.Name(); nm != test.name {
		t.Errorf("%s: tree name: got %q", test.name, nm)
	}
	if tree.Root() != 0 {
		t.Errorf("%s: tree root ID %d, want %d", test.name, tree.Root(), 0)
	}

	nodes := tree.Nodes()
	if len(nodes) != len(test.nodes) {
		t.Fatalf("%s: got %d nodes, want %d", test.name, len(nodes), len(test.nodes))
	}

	for i, id := range nodes {
		n := nodeOf(tree, id)
		w := test.nodes[i]
		if !reflect.DeepEqual(n, w) {
			t.Errorf("%s: node %d: got %v, want %v", test.name, id, n, w)
		}

		r := tree.IsRoot(id)
		if n.parent == -1 && !r {
			t.Errorf("%s: is root (node %d) false", test.name, id)
		}
		if n.parent >= 0 && r {
			t.Errorf("%s: is root (node %d) true", test.name, id)
		}

		it := tree.IsTerm(id)
		if it && len(n.children) > 0 {
			t.Errorf("%s: is term (node %d) true", test.name, id)
		}
		if !it && len(n.children) == 0 {
			t.Errorf("%s: is term (node %d) false", test.name, id)
		}

		if w.taxon == "" {
			continue
		}
		term, ok := tree.TaxNode(w.taxon)
		if !ok {
			t.Errorf("%s: taxon %q: not found", test.name, w.taxon)
			continue
		}
		if term != id {
			t.Errorf("%s: taxon %q: got ID %d, want %d\n", test.name, w.taxon, term, id)
		}
	}

	if len(test.taxa) > 0 {
		taxa := tree.Taxa()
		if !reflect.DeepEqual(taxa, test.taxa) {
			t.Errorf("%s: got %v taxa, want %v", test.name, taxa, test.taxa)
		}
	}

	if len(test.terms) > 0 {
		terms := tree.Terms()
		if !reflect.DeepEqual(terms, test.terms) {
			t.Errorf("%s: got %v terminals, want %v", test.name, terms, test.terms)
		}
	}

	if tree.Len() != test.totLen {
		t.Errorf("%s: total length: got %d, want %d", test.name, tree.Len(), test.totLen)
	}
}
