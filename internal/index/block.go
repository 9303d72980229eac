package index

import (
	"github.com/nkoub/recordlinkage/internal/adapter"
	"github.com/nkoub/recordlinkage/internal/pairs"
)

// block pairs records whose keys are equal. Buckets are visited in order
// of first appearance in a.
func (ix *Indexer) block(a, b adapter.Collection) pairs.Set {
	left := a.IDs()
	recsA := ix.keys(a)
	bucketsA := groupByKey(recsA)

	if b == nil {
		ix.log.Debugw("blocking", "buckets", len(bucketsA.order))
		return pairs.New(func(yield func(pairs.Pair) bool) {
			for _, enc := range bucketsA.order {
				members := bucketsA.items[enc]
				for i := range members {
					for j := i + 1; j < len(members); j++ {
						if !yield(pairs.Pair{A: left[members[i]], B: left[members[j]]}) {
							return
						}
					}
				}
			}
		}, true)
	}

	right := b.IDs()
	recsB := ix.keys(b)
	bucketsB := groupByKey(recsB)
	ix.log.Debugw("blocking", "left_buckets", len(bucketsA.order), "right_buckets", len(bucketsB.order))

	return pairs.New(func(yield func(pairs.Pair) bool) {
		for _, enc := range bucketsA.order {
			others, ok := bucketsB.items[enc]
			if !ok {
				continue
			}
			for _, i := range bucketsA.items[enc] {
				for _, j := range others {
					if !yield(pairs.Pair{A: left[i], B: right[j]}) {
						return
					}
				}
			}
		}
	}, false)
}
