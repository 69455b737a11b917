// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package taxonomy implements the taxonomy tree consumed by TACT's
// placement engine: a rooted tree whose internal labels are taxonomic
// rank names (each unique in the tree) and whose leaves are species
// names. Branch lengths are irrelevant and are not modeled; only the
// topology and the label-to-node mapping matter.
//
// The CSV reader consumes a flat table with one row per species, the
// taxonomic ranks left-to-right from most inclusive to least inclusive,
// and the species name in the last column.
package taxonomy

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"slices"
)

var (
	// ErrEmptyCell is returned when a row has an empty rank or species
	// cell.
	ErrEmptyCell = errors.New("empty taxonomy cell")

	// ErrLabelConflict is returned when the same label is used for two
	// different ranks (or a rank and a species) in the file.
	ErrLabelConflict = errors.New("taxonomy label used at more than one rank")

	// ErrNoRows is returned when a CSV source defines no species rows.
	ErrNoRows = errors.New("taxonomy without rows")
)

// A Taxonomy is a rooted tree of taxonomic ranks, whose leaves are
// species. It is immutable once built.
type Taxonomy struct {
	nodes  map[int]*node
	byName map[string]int
	root   int
}

type node struct {
	id        int
	parent    int
	name      string
	isSpecies bool
	children  []int
}

// BuildFromCSV reads a CSV taxonomy table and builds
// a Taxonomy. Each row is one species; fields left-to-right are taxonomic
// ranks from most inclusive to least inclusive, with the species name in
// the last column. Every cell must be non-empty, and every label must be
// unique across the whole file (no two ranks, or a rank and a species,
// share a name).
func BuildFromCSV(r io.Reader) (*Taxonomy, error) {
	tab := csv.NewReader(bufio.NewReader(r))
	tab.Comment = '#'
	tab.FieldsPerRecord = -1

	tx := &Taxonomy{
		nodes:  make(map[int]*node),
		byName: make(map[string]int),
	}
	root := tx.internalNode("", -1)
	tx.root = root

	var numRows int
	for {
		row, err := tab.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tab.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("on row %d: %v", ln, err)
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("on row %d: expecting at least a rank and a species name", ln)
		}

		parent := root
		for i, cell := range row[:len(row)-1] {
			name := canon(cell)
			if name == "" {
				return nil, fmt.Errorf("on row %d, column %d: %w", ln, i+1, ErrEmptyCell)
			}
			id, ok := tx.byName[name]
			if !ok {
				id = tx.internalNode(name, parent)
			} else if tx.nodes[id].isSpecies {
				return nil, fmt.Errorf("on row %d, column %d: %w: %q", ln, i+1, ErrLabelConflict, name)
			} else if tx.nodes[id].parent != parent {
				return nil, fmt.Errorf("on row %d, column %d: %w: %q", ln, i+1, ErrLabelConflict, name)
			}
			parent = id
		}

		species := canon(row[len(row)-1])
		if species == "" {
			return nil, fmt.Errorf("on row %d: %w", ln, ErrEmptyCell)
		}
		if id, ok := tx.byName[species]; ok {
			if !tx.nodes[id].isSpecies || tx.nodes[id].parent != parent {
				return nil, fmt.Errorf("on row %d: %w: %q", ln, ErrLabelConflict, species)
			}
			continue
		}
		tx.speciesNode(species, parent)
		numRows++
	}
	if numRows == 0 {
		return nil, ErrNoRows
	}

	for _, n := range tx.nodes {
		slices.Sort(n.children)
	}
	return tx, nil
}

func (tx *Taxonomy) internalNode(name string, parent int) int {
	id := len(tx.nodes)
	n := &node{id: id, parent: parent, name: name}
	tx.nodes[id] = n
	if parent >= 0 {
		tx.nodes[parent].children = append(tx.nodes[parent].children, id)
	}
	if name != "" {
		tx.byName[name] = id
	}
	return id
}

func (tx *Taxonomy) speciesNode(name string, parent int) int {
	id := len(tx.nodes)
	n := &node{id: id, parent: parent, name: name, isSpecies: true}
	tx.nodes[id] = n
	tx.nodes[parent].children = append(tx.nodes[parent].children, id)
	tx.byName[name] = id
	return id
}

// Root returns the ID of the taxonomy's root.
func (tx *Taxonomy) Root() int { return tx.root }

// Parent returns the ID of the parent of a node, or -1 for the root.
func (tx *Taxonomy) Parent(id int) int {
	n, ok := tx.nodes[id]
	if !ok {
		return -1
	}
	return n.parent
}

// Children returns the IDs of the children of a node, sorted.
func (tx *Taxonomy) Children(id int) []int {
	n, ok := tx.nodes[id]
	if !ok {
		return nil
	}
	return n.children
}

// IsSpecies returns true if the indicated node is a species (a leaf of
// the taxonomy).
func (tx *Taxonomy) IsSpecies(id int) bool {
	n, ok := tx.nodes[id]
	return ok && n.isSpecies
}

// Name returns the label of a node: the rank name for an internal node,
// the species name for a leaf.
func (tx *Taxonomy) Name(id int) string {
	n, ok := tx.nodes[id]
	if !ok {
		return ""
	}
	return n.name
}

// ID returns the node ID for a label, and whether it was found.
func (tx *Taxonomy) ID(name string) (int, bool) {
	id, ok := tx.byName[canon(name)]
	return id, ok
}

// Species returns the sorted names of every species (leaf) descending
// from a node: the group's full known diversity.
func (tx *Taxonomy) Species(id int) []string {
	n, ok := tx.nodes[id]
	if !ok {
		return nil
	}
	var sp []string
	tx.collectSpecies(n, &sp)
	slices.Sort(sp)
	return sp
}

func (tx *Taxonomy) collectSpecies(n *node, sp *[]string) {
	if n.isSpecies {
		*sp = append(*sp, n.name)
		return
	}
	for _, c := range n.children {
		tx.collectSpecies(tx.nodes[c], sp)
	}
}

// AllSpecies returns the sorted names of every species in the taxonomy.
func (tx *Taxonomy) AllSpecies() []string {
	return tx.Species(tx.root)
}

// PostOrder returns the IDs of every internal (non-species) node other
// than the root, in post-order (deepest groups first), ties broken by
// label.
func (tx *Taxonomy) PostOrder() []int {
	var order []int
	tx.postOrder(tx.root, &order)
	// drop the root itself: it has no taxonomic label of its own.
	out := order[:0]
	for _, id := range order {
		if id == tx.root {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (tx *Taxonomy) postOrder(id int, order *[]int) {
	n := tx.nodes[id]
	if n.isSpecies {
		return
	}
	children := append([]int(nil), n.children...)
	slices.SortFunc(children, func(a, b int) int {
		na, nb := tx.nodes[a].name, tx.nodes[b].name
		if na == nb {
			return 0
		}
		if na < nb {
			return -1
		}
		return 1
	})
	for _, c := range children {
		tx.postOrder(c, order)
	}
	*order = append(*order, id)
}

// canon normalizes a taxon or rank name: collapsed internal whitespace,
// capitalized first letter.
func canon(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	name = strings.ToLower(name)
	r, n := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[n:]
}
