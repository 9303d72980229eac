package index

import (
	"slices"
	"strconv"
	"strings"

	"github.com/nkoub/recordlinkage/internal/adapter"
)

// keyPart is one component of a composite key. Null parts order before
// every value.
type keyPart struct {
	null  bool
	value string
}

type key []keyPart

func compareKeys(x, y key) int {
	for i := range min(len(x), len(y)) {
		px, py := x[i], y[i]
		switch {
		case px.null && py.null:
			continue
		case px.null:
			return -1
		case py.null:
			return 1
		}
		if c := strings.Compare(px.value, py.value); c != 0 {
			return c
		}
	}
	return len(x) - len(y)
}

// encode renders the key as a map key. Values are length prefixed so no
// separator can collide with data.
func (k key) encode() string {
	var sb strings.Builder
	for _, p := range k {
		if p.null {
			sb.WriteString("~;")
			continue
		}
		sb.WriteString(strconv.Itoa(len(p.value)))
		sb.WriteByte(':')
		sb.WriteString(p.value)
	}
	return sb.String()
}

// keyed is a record position with its key.
type keyed struct {
	pos int
	key key
}

// keys reads the key of every record in collection order. Records with a
// null component are left out under NullExclude.
func (ix *Indexer) keys(c adapter.Collection) []keyed {
	ids := c.IDs()
	out := make([]keyed, 0, len(ids))
	skipped := 0
	for pos, id := range ids {
		k := make(key, len(ix.cfg.On))
		hasNull := false
		for i, attr := range ix.cfg.On {
			v, ok := c.Value(id, attr)
			if !ok {
				k[i] = keyPart{null: true}
				hasNull = true
				continue
			}
			k[i] = keyPart{value: ix.cfg.Normalize.Apply(v)}
		}
		if hasNull && ix.cfg.Nulls != NullGroup {
			skipped++
			continue
		}
		out = append(out, keyed{pos: pos, key: k})
	}
	if skipped > 0 {
		ix.log.Debugw("excluded records with null key",
			"collection", c.Name(),
			"records", skipped,
			"on", ix.cfg.On)
	}
	return out
}

// buckets groups record positions by key, in order of first appearance.
// Positions inside a bucket stay in collection order.
type buckets struct {
	order []string
	keyOf map[string]key
	items map[string][]int
}

func groupByKey(recs []keyed) *buckets {
	bs := &buckets{keyOf: make(map[string]key), items: make(map[string][]int)}
	for _, r := range recs {
		enc := r.key.encode()
		if _, ok := bs.items[enc]; !ok {
			bs.order = append(bs.order, enc)
			bs.keyOf[enc] = r.key
		}
		bs.items[enc] = append(bs.items[enc], r.pos)
	}
	return bs
}

// sortedKeys returns the distinct keys of both bucket sets in ascending
// order.
func sortedKeys(sets ...*buckets) []string {
	seen := make(map[string]key)
	for _, bs := range sets {
		if bs == nil {
			continue
		}
		for enc, k := range bs.keyOf {
			seen[enc] = k
		}
	}
	out := make([]string, 0, len(seen))
	for enc := range seen {
		out = append(out, enc)
	}
	slices.SortFunc(out, func(x, y string) int {
		if c := compareKeys(seen[x], seen[y]); c != 0 {
			return c
		}
		return strings.Compare(x, y)
	})
	return out
}
