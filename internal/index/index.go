// Package index generates candidate record pairs with the Full, Block and
// SortedNeighbourhood strategies. A nil second collection means
// deduplication: no self pairs and no mirrored duplicates.
//
// Candidate sets are lazy; pairs are produced bucket by bucket or window by
// window each time the set is iterated.
package index

import (
	"strings"

	"go.uber.org/zap"

	"github.com/nkoub/recordlinkage/internal/adapter"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/logger"
	"github.com/nkoub/recordlinkage/internal/normalize"
	"github.com/nkoub/recordlinkage/internal/pairs"
)

// Strategy names a candidate generation algorithm.
type Strategy string

const (
	Full                Strategy = "full"
	Block               Strategy = "block"
	SortedNeighbourhood Strategy = "sorted_neighbourhood"
)

// ParseStrategy resolves a strategy name. Spelling variants such as
// "sorted_neighborhood" and "sn" are accepted.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "full", "cross":
		return Full, nil
	case "block", "blocking":
		return Block, nil
	case "sorted_neighbourhood", "sorted_neighborhood", "sortedneighbourhood", "sortedneighborhood", "sn":
		return SortedNeighbourhood, nil
	}
	return "", errors.WithHint(
		errors.Configf("unknown indexing strategy %q", name),
		"use one of: full, block, sorted_neighbourhood")
}

// NullPolicy decides what happens to records whose key has a null value.
type NullPolicy string

const (
	// NullExclude drops records with a null key component. This is the
	// default.
	NullExclude NullPolicy = "exclude"
	// NullGroup treats null as a key value of its own, so all null-keyed
	// records share one bucket.
	NullGroup NullPolicy = "group"
)

// Config describes one indexing pass.
type Config struct {
	Strategy Strategy `mapstructure:"strategy" json:"strategy"`
	// On lists the blocking or sorting attributes. Ignored by Full.
	On []string `mapstructure:"on" json:"on,omitempty"`
	// Window is the sorted neighbourhood window size. A window of 1 pairs
	// only equal keys.
	Window int `mapstructure:"window" json:"window,omitempty"`
	// Nulls defaults to NullExclude.
	Nulls NullPolicy `mapstructure:"nulls" json:"nulls,omitempty"`
	// Normalize is applied to key values before grouping or sorting.
	Normalize normalize.Options `mapstructure:"normalize" json:"normalize,omitempty"`
}

// Validate checks the configuration without looking at any data.
func (c Config) Validate() error {
	strategy, err := ParseStrategy(string(c.Strategy))
	if err != nil {
		return err
	}
	if strategy != Full {
		if len(c.On) == 0 {
			return errors.Configf("%s indexing needs at least one key attribute", strategy)
		}
		for i, attr := range c.On {
			if attr == "" {
				return errors.Configf("%s indexing: empty key attribute at position %d", strategy, i)
			}
		}
	}
	if strategy == SortedNeighbourhood && c.Window <= 0 {
		return errors.WithHint(
			errors.Configf("sorted neighbourhood window must be positive, got %d", c.Window),
			"a window of 1 pairs records with equal keys only")
	}
	switch c.Nulls {
	case "", NullExclude, NullGroup:
	default:
		return errors.Configf("unknown null policy %q, use %q or %q", c.Nulls, NullExclude, NullGroup)
	}
	return nil
}

// Generator produces a candidate pair set. A nil second collection selects
// deduplication mode.
type Generator interface {
	Index(a, b adapter.Collection) (pairs.Set, error)
}

// Indexer runs a single indexing pass. It is immutable and safe for
// concurrent use.
type Indexer struct {
	cfg Config
	log *zap.SugaredLogger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.log = l
		}
	}
}

// New validates cfg and returns an Indexer.
func New(cfg Config, opts ...Option) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Strategy, _ = ParseStrategy(string(cfg.Strategy))
	if cfg.Nulls == "" {
		cfg.Nulls = NullExclude
	}
	cfg.On = append([]string(nil), cfg.On...)
	ix := &Indexer{cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config, opts ...Option) *Indexer {
	ix, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return ix
}

// Config returns the validated configuration.
func (ix *Indexer) Config() Config {
	cfg := ix.cfg
	cfg.On = append([]string(nil), ix.cfg.On...)
	return cfg
}

// Index generates the candidate pairs of a and b, or of a against itself
// when b is nil.
func (ix *Indexer) Index(a, b adapter.Collection) (pairs.Set, error) {
	if a == nil {
		return pairs.Set{}, errors.Configf("index: left collection is nil")
	}
	dedup := b == nil
	if err := ix.checkSchema(a); err != nil {
		return pairs.Set{}, err
	}
	if !dedup {
		if err := ix.checkSchema(b); err != nil {
			return pairs.Set{}, err
		}
	}

	ix.log.Debugw("indexing",
		"strategy", ix.cfg.Strategy,
		"on", ix.cfg.On,
		"window", ix.cfg.Window,
		"left", a.Name(),
		"right", nameOf(b),
		"dedup", dedup)

	switch ix.cfg.Strategy {
	case Block:
		return ix.block(a, b), nil
	case SortedNeighbourhood:
		return ix.sortedNeighbourhood(a, b), nil
	default:
		return full(a, b), nil
	}
}

func (ix *Indexer) checkSchema(c adapter.Collection) error {
	if ix.cfg.Strategy == Full {
		return nil
	}
	if err := adapter.RequireColumns(c, ix.cfg.On...); err != nil {
		return errors.Mark(
			errors.Wrapf(err, "%s indexing key", ix.cfg.Strategy),
			errors.ErrConfiguration)
	}
	return nil
}

func nameOf(c adapter.Collection) string {
	if c == nil {
		return ""
	}
	return c.Name()
}

// full yields the cross product in collection order.
func full(a, b adapter.Collection) pairs.Set {
	left := a.IDs()
	if b == nil {
		return pairs.New(func(yield func(pairs.Pair) bool) {
			for i := range left {
				for j := i + 1; j < len(left); j++ {
					if !yield(pairs.Pair{A: left[i], B: left[j]}) {
						return
					}
				}
			}
		}, true)
	}
	right := b.IDs()
	return pairs.New(func(yield func(pairs.Pair) bool) {
		for _, x := range left {
			for _, y := range right {
				if !yield(pairs.Pair{A: x, B: y}) {
					return
				}
			}
		}
	}, false)
}

// union combines several passes.
type union []Generator

// Union returns a Generator that runs every pass and concatenates their
// candidate sets. A pair found by more than one pass is yielded once, at
// the position where the first pass produced it.
func Union(passes ...Generator) Generator {
	if len(passes) == 1 {
		return passes[0]
	}
	return union(passes)
}

// Index implements Generator.
func (u union) Index(a, b adapter.Collection) (pairs.Set, error) {
	if len(u) == 0 {
		return pairs.Set{}, errors.Configf("index: no passes to union")
	}
	sets := make([]pairs.Set, 0, len(u))
	for i, g := range u {
		s, err := g.Index(a, b)
		if err != nil {
			return pairs.Set{}, errors.Wrapf(err, "pass %d", i+1)
		}
		sets = append(sets, s)
	}
	return pairs.Union(b == nil, sets...), nil
}
