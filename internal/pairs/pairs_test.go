package pairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetIsRestartable(t *testing.T) {
	s := FromSlice([]Pair{{"a", "x"}, {"a", "y"}, {"b", "x"}}, false)

	first := s.Collect()
	second := s.Collect()
	assert.Equal(t, first, second)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Dedup())
}

func TestSetEarlyStop(t *testing.T) {
	s := FromSlice([]Pair{{"a", "x"}, {"a", "y"}, {"b", "x"}}, false)

	var got []Pair
	for p := range s.All() {
		got = append(got, p)
		if len(got) == 2 {
			break
		}
	}
	assert.Len(t, got, 2)
}

func TestEmptyAndZeroSet(t *testing.T) {
	assert.Equal(t, 0, Empty(true).Len())
	assert.True(t, Empty(true).Dedup())

	var zero Set
	assert.Equal(t, 0, zero.Len())
	assert.Nil(t, zero.Collect())
}

func TestChunks(t *testing.T) {
	var ps []Pair
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		ps = append(ps, Pair{A: id, B: "z"})
	}
	s := FromSlice(ps, false)

	var sizes []int
	var flat []Pair
	for chunk := range s.Chunks(2) {
		sizes = append(sizes, len(chunk))
		flat = append(flat, chunk...)
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, ps, flat)
}

func TestUnionKeepsFirstOccurrence(t *testing.T) {
	first := FromSlice([]Pair{{"1", "a"}, {"2", "b"}}, false)
	second := FromSlice([]Pair{{"2", "b"}, {"3", "c"}, {"1", "a"}}, false)

	got := Union(false, first, second).Collect()
	require.Len(t, got, 3)
	assert.Equal(t, []Pair{{"1", "a"}, {"2", "b"}, {"3", "c"}}, got)
}

func TestPairString(t *testing.T) {
	assert.Equal(t, "r1|r2", Pair{A: "r1", B: "r2"}.String())
}
