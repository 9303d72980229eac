// Package pairs holds record pairs and lazy, restartable candidate sets.
package pairs

import (
	"iter"
)

// Pair identifies one record from each collection. In deduplication mode
// both identifiers come from the same collection and A precedes B in
// collection order.
type Pair struct {
	A string `json:"id_a"`
	B string `json:"id_b"`
}

// String renders the pair as "A|B".
func (p Pair) String() string {
	return p.A + "|" + p.B
}

// Set is a lazy candidate pair set.
type Set struct {
	seq   iter.Seq[Pair]
	dedup bool
}

// New wraps a generator. The generator must yield each pair at most once
// and must be safe to run repeatedly.
func New(seq iter.Seq[Pair], dedup bool) Set {
	return Set{seq: seq, dedup: dedup}
}

// FromSlice builds a set over fixed pairs. The caller guarantees there are
// no duplicates.
func FromSlice(ps []Pair, dedup bool) Set {
	ps = append([]Pair(nil), ps...)
	return New(func(yield func(Pair) bool) {
		for _, p := range ps {
			if !yield(p) {
				return
			}
		}
	}, dedup)
}

// Empty returns a set without pairs.
func Empty(dedup bool) Set {
	return New(func(func(Pair) bool) {}, dedup)
}

// Dedup reports whether the pairs link a collection against itself.
func (s Set) Dedup() bool { return s.dedup }

// All iterates the pairs in candidate order.
func (s Set) All() iter.Seq[Pair] {
	if s.seq == nil {
		return func(func(Pair) bool) {}
	}
	return s.seq
}

// Len counts the pairs by running the generator.
func (s Set) Len() int {
	n := 0
	for range s.All() {
		n++
	}
	return n
}

// Collect materializes the pairs.
func (s Set) Collect() []Pair {
	var out []Pair
	for p := range s.All() {
		out = append(out, p)
	}
	return out
}

// Chunks groups consecutive pairs into slices of at most size pairs. The
// yielded slice is reused between iterations.
func (s Set) Chunks(size int) iter.Seq[[]Pair] {
	if size <= 0 {
		size = 1
	}
	return func(yield func([]Pair) bool) {
		buf := make([]Pair, 0, size)
		for p := range s.All() {
			buf = append(buf, p)
			if len(buf) == size {
				if !yield(buf) {
					return
				}
				buf = buf[:0]
			}
		}
		if len(buf) > 0 {
			yield(buf)
		}
	}
}

// Union concatenates sets, dropping pairs already produced by an earlier
// set. Pair presence is boolean: the first set to yield a pair fixes its
// position. Union must remember every pair it has seen, so its memory is
// proportional to the candidate count.
func Union(dedup bool, sets ...Set) Set {
	return New(func(yield func(Pair) bool) {
		seen := make(map[Pair]struct{})
		for _, s := range sets {
			for p := range s.All() {
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				if !yield(p) {
					return
				}
			}
		}
	}, dedup)
}
