// Package features holds the feature matrix: one row per candidate pair,
// one column per comparison label.
package features

import (
	"encoding/json"
	"iter"
	"math"

	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/pairs"
)

// Missing marks a cell whose value is unknown. It is NaN, so test cells
// with IsMissing rather than ==.
var Missing = math.NaN()

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Matrix is a row and column addressable table of comparison scores.
type Matrix struct {
	labels []string
	col    map[string]int
	pairs  []pairs.Pair
	values []float64 // row major
	rowOf  map[pairs.Pair]int
}

// New returns an empty matrix with the given columns. Labels must be
// unique and non-empty.
func New(labels []string) (*Matrix, error) {
	col := make(map[string]int, len(labels))
	for i, l := range labels {
		if l == "" {
			return nil, errors.Configf("feature label at position %d is empty", i)
		}
		if _, dup := col[l]; dup {
			return nil, errors.Configf("feature label %q registered twice", l)
		}
		col[l] = i
	}
	return &Matrix{
		labels: append([]string(nil), labels...),
		col:    col,
		rowOf:  make(map[pairs.Pair]int),
	}, nil
}

// FromRows builds a matrix from pairs and their row-major values. values
// must hold len(ps)*len(labels) cells and ps must not repeat a pair.
func FromRows(labels []string, ps []pairs.Pair, values []float64) (*Matrix, error) {
	m, err := New(labels)
	if err != nil {
		return nil, err
	}
	if len(values) != len(ps)*len(labels) {
		return nil, errors.Newf("feature matrix: %d values for %d rows of %d columns",
			len(values), len(ps), len(labels))
	}
	m.pairs = ps
	m.values = values
	for i, p := range ps {
		if _, dup := m.rowOf[p]; dup {
			return nil, errors.Newf("feature matrix: pair %s appears twice", p)
		}
		m.rowOf[p] = i
	}
	return m, nil
}

// Labels returns the column labels in order.
func (m *Matrix) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.pairs) }

// Width returns the number of columns.
func (m *Matrix) Width() int { return len(m.labels) }

// Pair returns the pair of row i.
func (m *Matrix) Pair(i int) pairs.Pair { return m.pairs[i] }

// Pairs returns the row pairs in order.
func (m *Matrix) Pairs() []pairs.Pair {
	return append([]pairs.Pair(nil), m.pairs...)
}

// Row returns row i.
func (m *Matrix) Row(i int) Row {
	w := len(m.labels)
	return Row{Pair: m.pairs[i], Values: m.values[i*w : (i+1)*w : (i+1)*w], m: m}
}

// Value returns the cell of row i under label. The second result is false
// for an unknown label.
func (m *Matrix) Value(i int, label string) (float64, bool) {
	j, ok := m.col[label]
	if !ok {
		return Missing, false
	}
	return m.values[i*len(m.labels)+j], true
}

// Column copies the cells of one column in row order.
func (m *Matrix) Column(label string) ([]float64, error) {
	j, ok := m.col[label]
	if !ok {
		return nil, errors.WithHintf(
			errors.Configf("unknown feature label %q", label),
			"available labels: %v", m.labels)
	}
	w := len(m.labels)
	out := make([]float64, len(m.pairs))
	for i := range out {
		out[i] = m.values[i*w+j]
	}
	return out, nil
}

// Lookup returns the row index of a pair.
func (m *Matrix) Lookup(p pairs.Pair) (int, bool) {
	i, ok := m.rowOf[p]
	return i, ok
}

// All iterates the rows in order.
func (m *Matrix) All() iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		for i := range m.pairs {
			if !yield(i, m.Row(i)) {
				return
			}
		}
	}
}

// Sum adds up each row, skipping missing cells.
func (m *Matrix) Sum() []float64 {
	out := make([]float64, len(m.pairs))
	for i := range out {
		out[i] = m.Row(i).Sum()
	}
	return out
}

// Filter returns a new matrix with the rows keep accepts, in the same
// order.
func (m *Matrix) Filter(keep func(Row) bool) *Matrix {
	w := len(m.labels)
	out := &Matrix{
		labels: m.labels,
		col:    m.col,
		rowOf:  make(map[pairs.Pair]int),
	}
	for i := range m.pairs {
		r := m.Row(i)
		if !keep(r) {
			continue
		}
		out.rowOf[r.Pair] = len(out.pairs)
		out.pairs = append(out.pairs, r.Pair)
		out.values = append(out.values, m.values[i*w:(i+1)*w]...)
	}
	return out
}

// AtLeast keeps the rows whose sum reaches score.
func (m *Matrix) AtLeast(score float64) *Matrix {
	return m.Filter(func(r Row) bool { return r.Sum() >= score })
}

// Row is one pair's feature vector. Values must not be modified.
type Row struct {
	Pair   pairs.Pair
	Values []float64
	m      *Matrix
}

// Get returns the cell under label, or Missing for an unknown label.
func (r Row) Get(label string) float64 {
	j, ok := r.m.col[label]
	if !ok {
		return Missing
	}
	return r.Values[j]
}

// Sum adds the non-missing cells.
func (r Row) Sum() float64 {
	s := 0.0
	for _, v := range r.Values {
		if !IsMissing(v) {
			s += v
		}
	}
	return s
}

type jsonRow struct {
	A      string     `json:"id_a"`
	B      string     `json:"id_b"`
	Values []*float64 `json:"values"`
}

type jsonMatrix struct {
	Labels []string  `json:"labels"`
	Rows   []jsonRow `json:"rows"`
}

// MarshalJSON writes labels once and each row as an array of values in
// label order; missing cells are null.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	out := jsonMatrix{Labels: m.labels, Rows: make([]jsonRow, len(m.pairs))}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	for i, r := range m.All() {
		vals := make([]*float64, len(r.Values))
		for j, v := range r.Values {
			if !IsMissing(v) {
				vals[j] = &r.Values[j]
			}
		}
		out.Rows[i] = jsonRow{A: r.Pair.A, B: r.Pair.B, Values: vals}
	}
	return json.Marshal(out)
}

// ToJSON renders the matrix as indented JSON.
func (m *Matrix) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
