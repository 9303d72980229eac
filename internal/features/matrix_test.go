package features

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/pairs"
)

func sample(t *testing.T) *Matrix {
	t.Helper()
	m, err := FromRows(
		[]string{"name", "dob", "city"},
		[]pairs.Pair{{A: "1", B: "a"}, {A: "1", B: "b"}, {A: "2", B: "b"}},
		[]float64{
			1, 1, 0,
			0.5, Missing, 1,
			0, 0, Missing,
		})
	require.NoError(t, err)
	return m
}

func TestNewRejectsDuplicateLabels(t *testing.T) {
	_, err := New([]string{"name", "name"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = New([]string{""})
	assert.True(t, errors.IsConfiguration(err))
}

func TestFromRowsShape(t *testing.T) {
	_, err := FromRows([]string{"x"}, []pairs.Pair{{A: "1", B: "2"}}, []float64{1, 2})
	assert.Error(t, err)

	_, err = FromRows([]string{"x"}, []pairs.Pair{{A: "1", B: "2"}, {A: "1", B: "2"}}, []float64{1, 2})
	assert.Error(t, err)
}

func TestAddressing(t *testing.T) {
	m := sample(t)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 3, m.Width())
	assert.Equal(t, []string{"name", "dob", "city"}, m.Labels())
	assert.Equal(t, pairs.Pair{A: "1", B: "b"}, m.Pair(1))

	v, ok := m.Value(1, "name")
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	v, ok = m.Value(1, "dob")
	assert.True(t, ok)
	assert.True(t, IsMissing(v))

	_, ok = m.Value(0, "zip")
	assert.False(t, ok)

	i, ok := m.Lookup(pairs.Pair{A: "2", B: "b"})
	require.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = m.Lookup(pairs.Pair{A: "b", B: "2"})
	assert.False(t, ok)

	col, err := m.Column("city")
	require.NoError(t, err)
	assert.Equal(t, 0.0, col[0])
	assert.Equal(t, 1.0, col[1])
	assert.True(t, IsMissing(col[2]))

	_, err = m.Column("zip")
	assert.True(t, errors.IsConfiguration(err))

	row := m.Row(0)
	assert.Equal(t, 1.0, row.Get("dob"))
	assert.True(t, IsMissing(row.Get("zip")))
}

func TestSumSkipsMissing(t *testing.T) {
	assert.Equal(t, []float64{2, 1.5, 0}, sample(t).Sum())
}

func TestFilter(t *testing.T) {
	m := sample(t)

	kept := m.AtLeast(1.5)
	require.Equal(t, 2, kept.Len())
	assert.Equal(t, pairs.Pair{A: "1", B: "a"}, kept.Pair(0))
	assert.Equal(t, pairs.Pair{A: "1", B: "b"}, kept.Pair(1))
	i, ok := kept.Lookup(pairs.Pair{A: "1", B: "b"})
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, m.Labels(), kept.Labels())

	none := m.Filter(func(Row) bool { return false })
	assert.Equal(t, 0, none.Len())
	assert.Equal(t, m.Labels(), none.Labels())

	// The source matrix is untouched.
	assert.Equal(t, 3, m.Len())
}

func TestAllIteratesInOrder(t *testing.T) {
	m := sample(t)
	var got []pairs.Pair
	for i, r := range m.All() {
		assert.Equal(t, m.Pair(i), r.Pair)
		got = append(got, r.Pair)
	}
	assert.Equal(t, m.Pairs(), got)
}

func TestStats(t *testing.T) {
	m := sample(t)

	st, err := m.Stats("dob")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 1, st.Missing)
	assert.InDelta(t, 1.0/3.0, st.MissingRatio, 1e-12)
	assert.Equal(t, 0.5, st.Mean)
	assert.Equal(t, 0.0, st.Min)
	assert.Equal(t, 1.0, st.Max)
	assert.Equal(t, 2, st.Distinct)
	assert.Equal(t, []ValueCount{{Value: 0, Count: 1, Ratio: 0.5}, {Value: 1, Count: 1, Ratio: 0.5}}, st.TopValues)

	_, err = m.Stats("zip")
	assert.Error(t, err)

	summary := m.Summary()
	require.Len(t, summary, 3)
	assert.Equal(t, "city", summary[2].Label)
}

func TestStatsOnEmptyMatrix(t *testing.T) {
	m, err := New([]string{"name"})
	require.NoError(t, err)

	st, err := m.Stats("name")
	require.NoError(t, err)
	assert.Equal(t, ColumnStats{Label: "name"}, st)
}

func TestMarshalJSON(t *testing.T) {
	m := sample(t)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"labels": ["name", "dob", "city"],
		"rows": [
			{"id_a": "1", "id_b": "a", "values": [1, 1, 0]},
			{"id_a": "1", "id_b": "b", "values": [0.5, null, 1]},
			{"id_a": "2", "id_b": "b", "values": [0, 0, null]}
		]
	}`, string(data))

	empty, err := New([]string{"name"})
	require.NoError(t, err)
	data, err = empty.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"labels": ["name"], "rows": []}`, string(data))
}
