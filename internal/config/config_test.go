package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkoub/recordlinkage/internal/compare"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/index"
)

const linkTOML = `
[left]
path = "a.csv"
id_column = "id"

[right]
path = "b.csv"
id_column = "id"
null_values = ["", "NA"]

[[index]]
strategy = "block"
on = ["zip"]

[[index]]
strategy = "sorted_neighbourhood"
on = ["surname"]
window = 3
nulls = "group"

[index.normalize]
lowercase = true
fold_accents = true

[[rules]]
left = "name"
kind = "string"
method = "jarowinkler"
threshold = 0.85
label = "name"

[rules.params]
prefix_weight = 0.15
boost_threshold = 0.0

[[rules]]
left = "dob"
kind = "exact"
label = "dob"

[compare]
workers = 2

[output]
path = "out.csv"
min_score = 1.5
`

const dedupeYAML = `
left:
  path: people.csv
index:
  - strategy: full
rules:
  - left: name
    kind: exact
    normalize:
      lowercase: true
log:
  json: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "job.toml", linkTOML))
	require.NoError(t, err)

	assert.False(t, cfg.Dedup())
	assert.Equal(t, "a.csv", cfg.Left.Path)
	require.NotNil(t, cfg.Right)
	assert.Equal(t, []string{"", "NA"}, cfg.Right.NullValues)

	require.Len(t, cfg.Index, 2)
	assert.Equal(t, index.Block, cfg.Index[0].Strategy)
	assert.Equal(t, []string{"zip"}, cfg.Index[0].On)
	assert.Equal(t, 3, cfg.Index[1].Window)
	assert.Equal(t, index.NullGroup, cfg.Index[1].Nulls)
	assert.True(t, cfg.Index[1].Normalize.FoldAccents)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, compare.KindString, cfg.Rules[0].Kind)
	require.NotNil(t, cfg.Rules[0].Threshold)
	assert.Equal(t, 0.85, *cfg.Rules[0].Threshold)
	require.NotNil(t, cfg.Rules[0].Params.PrefixWeight)
	assert.Equal(t, 0.15, *cfg.Rules[0].Params.PrefixWeight)
	require.NotNil(t, cfg.Rules[0].Params.BoostThreshold, "an explicit 0 must survive decoding")
	assert.Equal(t, 0.0, *cfg.Rules[0].Params.BoostThreshold)
	assert.Nil(t, cfg.Rules[1].Threshold)

	assert.Equal(t, 2, cfg.Compare.Workers)
	assert.Equal(t, compare.DefaultChunkSize, cfg.Compare.ChunkSize)
	assert.Equal(t, "out.csv", cfg.Output.Path)
	assert.Equal(t, 1.5, cfg.Output.MinScore)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLDedup(t *testing.T) {
	cfg, err := Load(writeFile(t, "job.yaml", dedupeYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Dedup())
	assert.Equal(t, index.Full, cfg.Index[0].Strategy)
	assert.True(t, cfg.Rules[0].Normalize.Lowercase)
	assert.True(t, cfg.Log.JSON)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LINKAGE_LOG_LEVEL", "debug")
	t.Setenv("LINKAGE_COMPARE_WORKERS", "4")
	t.Setenv("LINKAGE_OUTPUT_FORMAT", "json")

	cfg, err := Load(writeFile(t, "job.toml", linkTOML))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Compare.Workers)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func validJob() Config {
	cfg := Default()
	cfg.Left = Source{Path: "a.csv"}
	cfg.Index = []index.Config{{Strategy: index.Full}}
	cfg.Rules = []compare.Rule{{Left: "name", Kind: compare.KindExact}}
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validJob().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"left without path", func(c *Config) { c.Left.Path = "" }},
		{"unknown source", func(c *Config) { c.Left.Type = "oracle" }},
		{"sql without table", func(c *Config) {
			c.Right = &Source{Type: SourceMySQL, DSN: "user@/db", IDColumn: "id"}
		}},
		{"sql without id", func(c *Config) {
			c.Right = &Source{Type: SourceSQLite, DSN: ":memory:", Table: "people"}
		}},
		{"long delimiter", func(c *Config) { c.Left.Delimiter = ";;" }},
		{"no passes", func(c *Config) { c.Index = nil }},
		{"zero window", func(c *Config) {
			c.Index = []index.Config{{Strategy: index.SortedNeighbourhood, On: []string{"name"}}}
		}},
		{"no rules", func(c *Config) { c.Rules = nil }},
		{"duplicate labels", func(c *Config) {
			c.Rules = append(c.Rules, compare.Rule{Left: "name", Kind: compare.KindString})
		}},
		{"negative workers", func(c *Config) { c.Compare.Workers = -1 }},
		{"zero chunk", func(c *Config) { c.Compare.ChunkSize = 0 }},
		{"output format", func(c *Config) { c.Output.Format = "xlsx" }},
		{"negative min score", func(c *Config) { c.Output.MinScore = -1 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validJob()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}
}
