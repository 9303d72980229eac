package adapter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleCSV = `rec_id,given_name,surname,dob
a1,jon,smith,1990-01-01
a2,mary,,NA
a3,,jones,1975-12-31
`

func TestLoadCSVWithIDColumn(t *testing.T) {
	table, err := LoadCSV(strings.NewReader(peopleCSV), CSVOptions{
		Name:       "people",
		IDColumn:   "rec_id",
		NullValues: []string{"", "NA"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "a3"}, table.IDs())
	assert.Equal(t, []string{"given_name", "surname", "dob"}, table.Columns())

	v, ok := table.Value("a1", "surname")
	assert.True(t, ok)
	assert.Equal(t, "smith", v)

	_, ok = table.Value("a2", "surname")
	assert.False(t, ok)
	_, ok = table.Value("a2", "dob")
	assert.False(t, ok, "NA is configured as null")
}

func TestLoadCSVRowNumberIDs(t *testing.T) {
	table, err := LoadCSV(strings.NewReader(peopleCSV), CSVOptions{
		Columns: []string{"surname"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "1", "2"}, table.IDs())
	assert.Equal(t, []string{"surname"}, table.Columns())
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		opts CSVOptions
	}{
		{"empty", "", CSVOptions{}},
		{"unknown id column", peopleCSV, CSVOptions{IDColumn: "id"}},
		{"unknown column", peopleCSV, CSVOptions{Columns: []string{"email"}}},
		{"duplicate id", "id,x\n1,a\n1,b\n", CSVOptions{IDColumn: "id"}},
		{"null id", "id,x\n,a\n", CSVOptions{IDColumn: "id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.data), tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsData(err))
		})
	}
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census.tsv")
	require.NoError(t, os.WriteFile(path, []byte("id\tname\n1\tann\n"), 0o644))

	table, err := LoadCSVFile(path, CSVOptions{IDColumn: "id", Comma: '\t'})
	require.NoError(t, err)
	assert.Equal(t, "census", table.Name())
	assert.Equal(t, 1, table.Len())

	_, err = LoadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), CSVOptions{})
	assert.Error(t, err)
}
