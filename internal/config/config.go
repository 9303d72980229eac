// Package config loads linkage job files (TOML, YAML or JSON) with
// LINKAGE_* environment overrides.
package config

import (
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/nkoub/recordlinkage/internal/compare"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/export"
	"github.com/nkoub/recordlinkage/internal/index"
	"github.com/nkoub/recordlinkage/internal/logger"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "LINKAGE"

// 数据源类型
const (
	SourceCSV       = "csv"
	SourceMySQL     = "mysql"
	SourceSQLServer = "sqlserver"
	SourceSQLite    = "sqlite3"
)

// Source 数据源
type Source struct {
	Type     string   `mapstructure:"type" json:"type,omitempty"`           // csv/mysql/sqlserver/sqlite3，默认 csv
	Name     string   `mapstructure:"name" json:"name,omitempty"`           // 集合名称
	IDColumn string   `mapstructure:"id_column" json:"id_column,omitempty"` // 记录ID列（SQL 必填）
	Columns  []string `mapstructure:"columns" json:"columns,omitempty"`     // 加载的列

	// CSV
	Path       string   `mapstructure:"path" json:"path,omitempty"`               // 文件路径
	NullValues []string `mapstructure:"null_values" json:"null_values,omitempty"` // 视为空值的内容
	Delimiter  string   `mapstructure:"delimiter" json:"delimiter,omitempty"`     // 分隔符

	// SQL
	DSN    string `mapstructure:"dsn" json:"dsn,omitempty"`       // 连接串
	Schema string `mapstructure:"schema" json:"schema,omitempty"` // Schema（可选）
	Table  string `mapstructure:"table" json:"table,omitempty"`   // 表名
	Where  string `mapstructure:"where" json:"where,omitempty"`   // 过滤条件
}

// IsSQL reports whether the source is a database table.
func (s Source) IsSQL() bool {
	return s.Type != "" && s.Type != SourceCSV
}

// Validate checks that the source can be opened.
func (s Source) Validate() error {
	switch s.Type {
	case "", SourceCSV:
		if s.Path == "" {
			return errors.Configf("csv source needs a path")
		}
		if s.Delimiter != "" && utf8.RuneCountInString(s.Delimiter) != 1 {
			return errors.Configf("csv delimiter must be a single character (got %q)", s.Delimiter)
		}
	case SourceMySQL, SourceSQLServer, SourceSQLite:
		if s.DSN == "" {
			return errors.Configf("%s source needs a dsn", s.Type)
		}
		if s.Table == "" {
			return errors.Configf("%s source needs a table", s.Type)
		}
		if s.IDColumn == "" {
			return errors.Configf("%s source needs an id_column", s.Type)
		}
	default:
		return errors.WithHint(
			errors.Configf("unknown source type %q", s.Type),
			"use one of: csv, mysql, sqlserver, sqlite3")
	}
	return nil
}

// Compare tunes the comparison engine.
type Compare struct {
	// Workers scoring in parallel, 0 selects GOMAXPROCS.
	Workers   int `mapstructure:"workers" json:"workers,omitempty"`
	ChunkSize int `mapstructure:"chunk_size" json:"chunk_size,omitempty"`
}

// Output says where the feature matrix goes.
type Output struct {
	// Path of the export. Empty writes nothing.
	Path string `mapstructure:"path" json:"path,omitempty"`
	// Format is csv, json or markdown; empty infers it from Path.
	Format string `mapstructure:"format" json:"format,omitempty"`
	// MinScore drops rows whose feature sum is below it.
	MinScore float64 `mapstructure:"min_score" json:"min_score,omitempty"`
}

// Log configures the logger.
type Log struct {
	JSON  bool   `mapstructure:"json" json:"json,omitempty"`
	Level string `mapstructure:"level" json:"level,omitempty"`
}

// Config is a linkage job.
type Config struct {
	Left Source `mapstructure:"left" json:"left"`
	// Right is nil for deduplication of Left.
	Right   *Source        `mapstructure:"right" json:"right,omitempty"`
	Index   []index.Config `mapstructure:"index" json:"index"`
	Rules   []compare.Rule `mapstructure:"rules" json:"rules"`
	Compare Compare        `mapstructure:"compare" json:"compare"`
	Output  Output         `mapstructure:"output" json:"output"`
	Log     Log            `mapstructure:"log" json:"log"`
}

// Default returns a job without sources, passes or rules.
func Default() Config {
	return Config{
		Compare: Compare{ChunkSize: compare.DefaultChunkSize},
		Log:     Log{Level: "info"},
	}
}

// SetDefaults registers the defaults on a viper instance so environment
// overrides apply to them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("compare.workers", d.Compare.Workers)
	v.SetDefault("compare.chunk_size", d.Compare.ChunkSize)
	v.SetDefault("output.path", d.Output.Path)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.min_score", d.Output.MinScore)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.level", d.Log.Level)
}

// Dedup reports whether the job links Left against itself.
func (c Config) Dedup() bool {
	return c.Right == nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Left.Validate(); err != nil {
		return errors.Wrap(err, "left")
	}
	if c.Right != nil {
		if err := c.Right.Validate(); err != nil {
			return errors.Wrap(err, "right")
		}
	}
	if len(c.Index) == 0 {
		return errors.WithHint(
			errors.Configf("no indexing pass configured"),
			`add an [[index]] section, e.g. strategy = "full"`)
	}
	for i, ic := range c.Index {
		if err := ic.Validate(); err != nil {
			return errors.Wrapf(err, "index pass %d", i+1)
		}
	}
	if len(c.Rules) == 0 {
		return errors.Configf("no comparison rules configured")
	}
	cmp := compare.New()
	for i, r := range c.Rules {
		if err := cmp.Add(r); err != nil {
			return errors.Wrapf(err, "rule %d", i+1)
		}
	}
	if c.Compare.Workers < 0 {
		return errors.Configf("compare.workers cannot be negative (got %d)", c.Compare.Workers)
	}
	if c.Compare.ChunkSize <= 0 {
		return errors.Configf("compare.chunk_size must be positive (got %d)", c.Compare.ChunkSize)
	}
	if c.Output.Format != "" {
		if _, err := export.ParseFormat(c.Output.Format); err != nil {
			return errors.Wrap(err, "output")
		}
	}
	if c.Output.MinScore < 0 {
		return errors.Configf("output.min_score cannot be negative (got %v)", c.Output.MinScore)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log")
	}
	return nil
}

// Load reads a job file, applies environment overrides and validates the
// result. The file type follows the extension.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return LoadWithViper(v)
}

// LoadWithViper decodes and validates the configuration held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unmarshal config"), errors.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}
