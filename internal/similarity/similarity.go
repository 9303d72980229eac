// Package similarity implements string similarity measures. Scores lie in
// [0, 1], are symmetric, and never NaN.
package similarity

import (
	"sort"
	"strings"
	"sync"

	"github.com/nkoub/recordlinkage/internal/errors"
)

// Scorer computes a similarity in [0, 1].
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(a, b string) float64

// Score implements Scorer.
func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

// Params carries algorithm parameters. A nil or zero field selects the
// algorithm default; the Winkler fields are pointers so 0 can be set.
type Params struct {
	// PrefixWeight is the Winkler prefix scale, default 0.1, max 0.25.
	PrefixWeight *float64 `mapstructure:"prefix_weight" json:"prefix_weight,omitempty"`
	// BoostThreshold is the Jaro score above which the Winkler prefix bonus
	// applies, default 0.7.
	BoostThreshold *float64 `mapstructure:"boost_threshold" json:"boost_threshold,omitempty"`
	// Q is the gram length for q-gram measures, default 2.
	Q int `mapstructure:"q" json:"q,omitempty"`
}

// Float returns a pointer to v for Params fields.
func Float(v float64) *float64 { return &v }

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Factory builds a configured Scorer.
type Factory func(p Params) (Scorer, error)

type entry struct {
	name    string
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]entry{}
)

func init() {
	mustRegister("exact", func(Params) (Scorer, error) { return Exact{}, nil })
	mustRegister("jaro", func(Params) (Scorer, error) { return Jaro{}, nil })
	mustRegister("jarowinkler", func(p Params) (Scorer, error) {
		return NewJaroWinkler(
			valueOr(p.PrefixWeight, DefaultPrefixWeight),
			valueOr(p.BoostThreshold, DefaultBoostThreshold))
	})
	mustRegister("levenshtein", func(Params) (Scorer, error) { return Levenshtein{}, nil })
	mustRegister("damerau_levenshtein", func(Params) (Scorer, error) { return DamerauLevenshtein{}, nil })
	mustRegister("qgram", qgramFactory(Dice))
	mustRegister("cosine", qgramFactory(Cosine))
	mustRegister("jaccard", qgramFactory(Jaccard))
	mustRegister("lcs", func(Params) (Scorer, error) { return LongestCommonSubstring{}, nil })
}

func qgramFactory(m Measure) Factory {
	return func(p Params) (Scorer, error) {
		return NewQGram(p.Q, m)
	}
}

func mustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

// canonical folds case and separators so "Jaro-Winkler", "jaro_winkler"
// and "jarowinkler" name the same algorithm.
func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}

// Register adds an algorithm to the registry.
func Register(name string, f Factory) error {
	key := canonical(name)
	if key == "" || f == nil {
		return errors.Configf("similarity: invalid registration for %q", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[key]; dup {
		return errors.Configf("similarity: algorithm %q already registered", name)
	}
	registry[key] = entry{name: name, factory: f}
	return nil
}

// New returns the named algorithm configured with p.
func New(name string, p Params) (Scorer, error) {
	registryMu.RLock()
	e, ok := registry[canonical(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.WithHintf(
			errors.Configf("similarity: unknown algorithm %q", name),
			"available: %s", strings.Join(Names(), ", "))
	}
	s, err := e.factory(p)
	if err != nil {
		return nil, errors.Wrapf(err, "similarity: configure %s", e.name)
	}
	return s, nil
}

// Names lists the registered algorithm names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for _, e := range registry {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// Exact scores 1 when the strings are identical and 0 otherwise.
type Exact struct{}

// Score implements Scorer.
func (Exact) Score(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
