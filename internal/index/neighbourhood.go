package index

import (
	"github.com/nkoub/recordlinkage/internal/adapter"
	"github.com/nkoub/recordlinkage/internal/pairs"
)

// sortedNeighbourhood sorts the distinct keys of both collections into one
// sequence and pairs records whose key ranks differ by less than the
// window. Equal keys share a rank, so a window of 1 reproduces blocking
// and a window at least the number of distinct keys reproduces the full
// cross product of the keyed records.
//
// Pairs are produced rank by rank: for every left record of rank r, the
// right records of ranks r-w+1 through r+w-1 in ascending rank order.
func (ix *Indexer) sortedNeighbourhood(a, b adapter.Collection) pairs.Set {
	w := ix.cfg.Window
	left := a.IDs()
	recsA := ix.keys(a)
	bucketsA := groupByKey(recsA)

	if b == nil {
		ranks := rankBuckets(sortedKeys(bucketsA), bucketsA)
		ix.log.Debugw("sorted neighbourhood", "keys", len(ranks), "window", w)
		return pairs.New(func(yield func(pairs.Pair) bool) {
			for r, members := range ranks {
				for i, x := range members {
					for _, y := range members[i+1:] {
						if !yield(pairs.Pair{A: left[x], B: left[y]}) {
							return
						}
					}
					for s := r + 1; s < min(len(ranks), r+w); s++ {
						for _, y := range ranks[s] {
							lo, hi := x, y
							if lo > hi {
								lo, hi = hi, lo
							}
							if !yield(pairs.Pair{A: left[lo], B: left[hi]}) {
								return
							}
						}
					}
				}
			}
		}, true)
	}

	right := b.IDs()
	recsB := ix.keys(b)
	bucketsB := groupByKey(recsB)
	merged := sortedKeys(bucketsA, bucketsB)
	ranksA := rankBuckets(merged, bucketsA)
	ranksB := rankBuckets(merged, bucketsB)
	ix.log.Debugw("sorted neighbourhood", "keys", len(merged), "window", w)

	return pairs.New(func(yield func(pairs.Pair) bool) {
		for r, members := range ranksA {
			if len(members) == 0 {
				continue
			}
			lo := max(0, r-w+1)
			hi := min(len(ranksB), r+w)
			for _, x := range members {
				for s := lo; s < hi; s++ {
					for _, y := range ranksB[s] {
						if !yield(pairs.Pair{A: left[x], B: right[y]}) {
							return
						}
					}
				}
			}
		}
	}, false)
}

// rankBuckets lays the bucket members out by key rank. Ranks a collection
// does not use hold nil.
func rankBuckets(order []string, bs *buckets) [][]int {
	out := make([][]int, len(order))
	for r, enc := range order {
		out[r] = bs.items[enc]
	}
	return out
}
