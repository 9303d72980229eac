package similarity

import (
	"unicode/utf8"

	"github.com/adrg/strutil"

	"github.com/nkoub/recordlinkage/internal/errors"
)

const (
	// DefaultPrefixWeight is Winkler's prefix scale.
	DefaultPrefixWeight = 0.1
	// DefaultBoostThreshold is the Jaro score the prefix bonus requires.
	DefaultBoostThreshold = 0.7
	// maxPrefix caps the shared prefix credited by the Winkler bonus.
	maxPrefix = 4
)

// Jaro is the Jaro similarity over runes.
type Jaro struct{}

// Score implements Scorer.
func (Jaro) Score(a, b string) float64 {
	return jaro([]rune(a), []rune(b))
}

// JaroWinkler boosts Jaro scores of strings sharing a prefix of up to four
// runes.
type JaroWinkler struct {
	PrefixWeight   float64
	BoostThreshold float64
}

// NewJaroWinkler validates the parameters. A prefix weight of 0 scores
// plain Jaro; a boost threshold of 0 boosts every pair sharing a prefix.
func NewJaroWinkler(prefixWeight, boostThreshold float64) (JaroWinkler, error) {
	// p * maxPrefix must stay <= 1 or scores could exceed 1.
	if prefixWeight < 0 || prefixWeight > 1.0/maxPrefix {
		return JaroWinkler{}, errors.Configf("prefix weight must be in [0, 0.25] (got %g)", prefixWeight)
	}
	if boostThreshold < 0 || boostThreshold > 1 {
		return JaroWinkler{}, errors.Configf("boost threshold must be in [0, 1] (got %g)", boostThreshold)
	}
	return JaroWinkler{PrefixWeight: prefixWeight, BoostThreshold: boostThreshold}, nil
}

// Score implements Scorer.
func (jw JaroWinkler) Score(a, b string) float64 {
	j := jaro([]rune(a), []rune(b))
	if j <= jw.BoostThreshold {
		return j
	}

	prefix := min(utf8.RuneCountInString(strutil.CommonPrefix(a, b)), maxPrefix)
	return clamp(j + float64(prefix)*jw.PrefixWeight*(1-j))
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Greedy matching depends on argument order; fix it so the score is
	// symmetric.
	if string(a) > string(b) {
		a, b = b, a
	}

	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i := range a {
		lo := max(0, i-window)
		hi := min(len(b), i+window+1)
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i], bMatched[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return clamp((m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3)
}
