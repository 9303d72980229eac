package similarity

import (
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// unitCost counts substitutions as one edit, so distance never exceeds the
// longer length.
var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Levenshtein scores 1 - distance / max(len(a), len(b)) over runes.
type Levenshtein struct{}

// Score implements Scorer.
func (Levenshtein) Score(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.DistanceForStrings(ra, rb, unitCost)
	return clamp(1 - float64(distance)/float64(maxLen))
}

// DamerauLevenshtein is Levenshtein with adjacent transpositions counted as
// one edit (optimal string alignment distance).
type DamerauLevenshtein struct{}

// Score implements Scorer.
func (DamerauLevenshtein) Score(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}
	return clamp(1 - float64(osaDistance(ra, rb))/float64(maxLen))
}

func osaDistance(a, b []rune) int {
	// Three rolling rows: i-2, i-1, i.
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				curr[j] = min(curr[j], prev2[j-2]+1)
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[len(b)]
}
