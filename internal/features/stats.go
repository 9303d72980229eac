package features

import (
	"math"
	"slices"
	"sort"
)

// ColumnStats summarizes one feature column.
type ColumnStats struct {
	Label        string       `json:"label"`
	Count        int          `json:"count"`
	Missing      int          `json:"missing"`
	MissingRatio float64      `json:"missing_ratio"`
	Mean         float64      `json:"mean"`
	Min          float64      `json:"min"`
	Max          float64      `json:"max"`
	Distinct     int          `json:"distinct"`
	TopValues    []ValueCount `json:"top_values"`
}

// ValueCount is the frequency of one cell value.
type ValueCount struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
	Ratio float64 `json:"ratio"`
}

// DefaultTopValues is the number of values Stats reports.
const DefaultTopValues = 10

// Stats summarizes a column. Mean, Min and Max cover the non-missing
// cells and are 0 when there are none. TopValues lists the most frequent
// values, ties broken by ascending value.
func (m *Matrix) Stats(label string) (ColumnStats, error) {
	vals, err := m.Column(label)
	if err != nil {
		return ColumnStats{}, err
	}
	st := ColumnStats{Label: label, Count: len(vals)}
	counts := make(map[float64]int)
	sum := 0.0
	st.Min, st.Max = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if IsMissing(v) {
			st.Missing++
			continue
		}
		counts[v]++
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	present := st.Count - st.Missing
	if present == 0 {
		st.Min, st.Max = 0, 0
	} else {
		st.Mean = sum / float64(present)
	}
	if st.Count > 0 {
		st.MissingRatio = float64(st.Missing) / float64(st.Count)
	}
	st.Distinct = len(counts)

	keys := make([]float64, 0, len(counts))
	for v := range counts {
		keys = append(keys, v)
	}
	slices.Sort(keys)
	sort.SliceStable(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })
	if len(keys) > DefaultTopValues {
		keys = keys[:DefaultTopValues]
	}
	for _, v := range keys {
		st.TopValues = append(st.TopValues, ValueCount{
			Value: v,
			Count: counts[v],
			Ratio: float64(counts[v]) / float64(present),
		})
	}
	return st, nil
}

// Summary computes Stats for every column in label order.
func (m *Matrix) Summary() []ColumnStats {
	out := make([]ColumnStats, 0, len(m.labels))
	for _, l := range m.labels {
		st, _ := m.Stats(l)
		out = append(out, st)
	}
	return out
}
