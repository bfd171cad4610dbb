package vm

import "math/bits"

// Collector is the garbage collector's stack-scanning entry point. Every
// word in the range is treated as a potential reference.
type Collector interface {
	MarkConservatively(words []Register)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(words []Register)

// MarkConservatively calls f(words).
func (f CollectorFunc) MarkConservatively(words []Register) {
	f(words)
}

// RootSet is a Collector that records every non-zero word it is handed.
// Zero words are the empty representation and can never be roots.
type RootSet struct {
	Scanned int
	hits    []uint64 // one bit per scanned word
	values  map[Register]int
}

// NewRootSet creates an empty root set.
func NewRootSet() *RootSet {
	return &RootSet{
		values: make(map[Register]int),
	}
}

// MarkConservatively records the candidate roots in words.
func (rs *RootSet) MarkConservatively(words []Register) {
	start := rs.Scanned
	rs.Scanned += len(words)
	for len(rs.hits)*64 < rs.Scanned {
		rs.hits = append(rs.hits, 0)
	}
	for i, w := range words {
		if w == 0 {
			continue
		}
		n := start + i
		rs.hits[n/64] |= 1 << (n % 64)
		rs.values[w]++
	}
}

// Roots returns the number of scanned words that looked like roots.
func (rs *RootSet) Roots() int {
	n := 0
	for _, word := range rs.hits {
		n += bits.OnesCount64(word)
	}
	return n
}

// IsRoot reports whether the i-th scanned word was a candidate root.
func (rs *RootSet) IsRoot(i int) bool {
	if i < 0 || i >= rs.Scanned {
		return false
	}
	return rs.hits[i/64]&(1<<(i%64)) != 0
}

// Contains reports whether v was seen during scanning.
func (rs *RootSet) Contains(v Register) bool {
	return rs.values[v] > 0
}
