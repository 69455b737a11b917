// Copyright © 2022 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package fastmrca implements a bitset-indexed most-recent-common-ancestor
// and monophyly cache over a backbone tree. Each node of the backbone is
// indexed by the bitset of terminal leaves it subtends; a
// most-recent-common-ancestor query then descends from the root following
// whichever child's bitset is a superset of the query, instead of walking
// ancestor chains per terminal as the plain tree-level tact.Tree.MRCA does.
//
// The cache is read concurrently during rate estimation and updated
// exclusively by the placement engine whenever it mutates the backbone,
// so queries take a read lock and updates the write lock.
package fastmrca

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/bits-and-blooms/bitset"
	"github.com/js-arias/tact"
)

// A Cache answers MRCA and monophyly queries over a backbone tree. The
// zero value is not usable; use New.
type Cache struct {
	mu    sync.RWMutex
	t     *tact.Tree
	index map[string]uint
	bits  map[int]*bitset.BitSet
}

// New builds a Cache over a backbone tree.
func New(t *tact.Tree) *Cache {
	c := &Cache{t: t}
	c.build()
	return c
}

// Rebuild recomputes the cache from the current state of the backbone.
// Callers must exclude concurrent readers while a mutation + Rebuild
// sequence is in progress; Rebuild itself takes the cache's write lock.
// It is a full O(n) re-walk of the backbone; GraftLeaf should be
// preferred after a single leaf graft.
func (c *Cache) Rebuild() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.build()
}

// GraftLeaf updates the cache in place for a single new terminal grafted
// onto the backbone at leafID, without re-walking the rest of the tree:
// it extends the index with the new terminal's name, then climbs
// leafID's ancestor chain, flipping the new bit into every bitset that
// already exists and synthesizing one (as the union of its children's
// bitsets) for any node the climb is seeing for the first time, that
// is, the edge-split internal node GraftLeaf/AddSister introduces along
// with the leaf itself. A new node never takes the ID of a node still in
// the tree (tact.Tree.nextID returns the first unused ID), so, as long as
// no node is deleted after the cache is built, a bits entry already
// present for an ancestor id predates this graft and just needs the new
// bit folded in.
func (c *Cache) GraftLeaf(leafID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := canon(c.t.Taxon(leafID))
	idx := uint(len(c.index))
	c.index[name] = idx

	bs := bitset.New(idx + 1)
	bs.Set(idx)
	c.bits[leafID] = bs

	for id := c.t.Parent(leafID); id >= 0; id = c.t.Parent(id) {
		if existing, ok := c.bits[id]; ok {
			existing.Set(idx)
			continue
		}
		nb := bitset.New(idx + 1)
		for _, ch := range c.t.Children(id) {
			if cb, ok := c.bits[ch]; ok {
				nb.InPlaceUnion(cb)
			}
		}
		c.bits[id] = nb
	}
}

func (c *Cache) build() {
	terms := c.t.Terms()
	index := make(map[string]uint, len(terms))
	for i, nm := range terms {
		index[nm] = uint(i)
	}
	c.index = index
	c.bits = make(map[int]*bitset.BitSet, len(c.t.Nodes()))
	c.fill(c.t.Root())
}

func (c *Cache) fill(id int) *bitset.BitSet {
	children := c.t.Children(id)
	bs := bitset.New(uint(len(c.index)))
	if len(children) == 0 {
		if idx, ok := c.index[c.t.Taxon(id)]; ok {
			bs.Set(idx)
		}
		c.bits[id] = bs
		return bs
	}
	for _, ch := range children {
		bs.InPlaceUnion(c.fill(ch))
	}
	c.bits[id] = bs
	return bs
}

// MRCA returns the ID of the most recent common ancestor of the given
// terminal names. It returns -1 if any name is not a known terminal.
func (c *Cache) MRCA(names ...string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(names) == 0 {
		return -1
	}
	q := bitset.New(uint(len(c.index)))
	for _, nm := range names {
		idx, ok := c.index[canon(nm)]
		if !ok {
			return -1
		}
		q.Set(idx)
	}
	return c.descend(c.t.Root(), q)
}

func (c *Cache) descend(id int, q *bitset.BitSet) int {
	for _, ch := range c.t.Children(id) {
		cb := c.bits[ch]
		if q.DifferenceCardinality(cb) == 0 {
			return c.descend(ch, q)
		}
	}
	return id
}

// Monophyletic returns true if the given set of terminal names forms a
// monophyletic group in the backbone: their most recent common ancestor
// subtends exactly that set of terminals, no more.
func (c *Cache) Monophyletic(names []string) bool {
	id := c.MRCA(names...)
	if id < 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	uniq := make(map[string]bool, len(names))
	for _, nm := range names {
		uniq[canon(nm)] = true
	}
	return c.bits[id].Count() == uint(len(uniq))
}

// Descendants returns the sorted terminal names subtended by a node.
func (c *Cache) Descendants(id int) []string {
	return c.t.LeavesUnder(id)
}

func canon(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	name = strings.ToLower(name)
	r, n := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[n:]
}
