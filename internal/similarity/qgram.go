package similarity

import (
	"math"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/nkoub/recordlinkage/internal/errors"
)

// DefaultQ is the default gram length.
const DefaultQ = 2

// Measure compares two q-gram multisets.
type Measure int

const (
	// Dice is 2|A∩B| / (|A|+|B|) over multisets.
	Dice Measure = iota
	// Cosine is the cosine of the gram count vectors.
	Cosine
	// Jaccard is |A∩B| / |A∪B| over multisets.
	Jaccard
)

func (m Measure) String() string {
	switch m {
	case Dice:
		return "dice"
	case Cosine:
		return "cosine"
	case Jaccard:
		return "jaccard"
	default:
		return "unknown"
	}
}

// QGram tokenizes strings into overlapping rune q-grams and compares the
// multisets. A non-empty string shorter than Q is a single gram.
type QGram struct {
	Q       int
	Measure Measure
}

// NewQGram validates the parameters. A zero q selects DefaultQ.
func NewQGram(q int, m Measure) (QGram, error) {
	if q == 0 {
		q = DefaultQ
	}
	if q < 0 {
		return QGram{}, errors.Configf("q must be positive (got %d)", q)
	}
	if m < Dice || m > Jaccard {
		return QGram{}, errors.Configf("unknown q-gram measure %d", m)
	}
	return QGram{Q: q, Measure: m}, nil
}

// Score implements Scorer.
func (g QGram) Score(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	q := g.Q
	if q <= 0 {
		q = DefaultQ
	}
	short := utf8.RuneCountInString(a) < q || utf8.RuneCountInString(b) < q

	switch {
	case g.Measure == Dice && !short:
		return clamp((&metrics.SorensenDice{CaseSensitive: true, NgramSize: q}).Compare(a, b))
	case g.Measure == Jaccard && !short:
		return clamp((&metrics.Jaccard{CaseSensitive: true, NgramSize: q}).Compare(a, b))
	}

	ga, na := grams(a, q)
	gb, nb := grams(b, q)
	switch g.Measure {
	case Cosine:
		var dot, sa, sb float64
		for gram, ca := range ga {
			sa += float64(ca * ca)
			if cb, ok := gb[gram]; ok {
				dot += float64(ca * cb)
			}
		}
		for _, cb := range gb {
			sb += float64(cb * cb)
		}
		return clamp(dot / math.Sqrt(sa*sb))
	case Jaccard:
		shared := sharedCount(ga, gb)
		return clamp(float64(shared) / float64(na+nb-shared))
	default:
		shared := sharedCount(ga, gb)
		return clamp(2 * float64(shared) / float64(na+nb))
	}
}

// grams counts the q-grams of s. A string shorter than q is one gram.
func grams(s string, q int) (map[string]int, int) {
	return strutil.NgramMap(s, min(q, utf8.RuneCountInString(s)))
}

func sharedCount(a, b map[string]int) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for gram, ca := range a {
		shared += min(ca, b[gram])
	}
	return shared
}

// LongestCommonSubstring scores 2·|lcs| / (len(a)+len(b)) over runes, where
// lcs is the longest contiguous run both strings share.
type LongestCommonSubstring struct{}

// Score implements Scorer.
func (LongestCommonSubstring) Score(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}

	longest := 0
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
				longest = max(longest, curr[j])
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return clamp(2 * float64(longest) / float64(total))
}
