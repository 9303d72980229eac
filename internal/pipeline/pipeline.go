// Package pipeline runs a linkage job end to end: load the sources, index
// them, compare the candidates and export the feature matrix.
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nkoub/recordlinkage/internal/adapter"
	"github.com/nkoub/recordlinkage/internal/compare"
	"github.com/nkoub/recordlinkage/internal/config"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/export"
	"github.com/nkoub/recordlinkage/internal/features"
	"github.com/nkoub/recordlinkage/internal/index"
	"github.com/nkoub/recordlinkage/internal/logger"
)

// Stage names a step of a job.
type Stage string

const (
	StageLoad    Stage = "loading"
	StageIndex   Stage = "indexing"
	StageCompare Stage = "comparing"
	StageExport  Stage = "exporting"
	StageDone    Stage = "completed"
)

// ProgressFunc receives the stage, a completion percentage and a human
// readable message. It may be called from several goroutines.
type ProgressFunc func(stage Stage, percent int, message string)

// Result is the outcome of a job.
type Result struct {
	Matrix *features.Matrix
	// Left and Right are the loaded collections; Right is nil when
	// deduplicating.
	Left  adapter.Collection
	Right adapter.Collection
	// Candidates counts the pairs produced by indexing, before any
	// min score filter.
	Candidates int
	// Output is the export path, empty when nothing was written.
	Output  string
	Elapsed time.Duration
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger passed down to every component.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *runner) {
		if l != nil {
			r.log = l
		}
	}
}

type runner struct {
	log      *zap.SugaredLogger
	progress ProgressFunc
}

func (r *runner) report(stage Stage, percent int, format string, args ...interface{}) {
	if r.progress != nil {
		r.progress(stage, percent, fmt.Sprintf(format, args...))
	}
}

// Run executes cfg. A nil progress is allowed. The configuration is
// validated first; any failure aborts the job without a result.
func Run(ctx context.Context, cfg *config.Config, progress ProgressFunc, opts ...Option) (*Result, error) {
	r := &runner{log: logger.Nop(), progress: progress}
	for _, opt := range opts {
		opt(r)
	}
	if cfg == nil {
		return nil, errors.Configf("pipeline: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := &Result{}

	r.report(StageLoad, 5, "loading %s", sourceLabel(cfg.Left))
	left, err := LoadSource(ctx, cfg.Left)
	if err != nil {
		return nil, errors.Wrap(err, "load left")
	}
	res.Left = left
	if !cfg.Dedup() {
		r.report(StageLoad, 10, "loading %s", sourceLabel(*cfg.Right))
		right, err := LoadSource(ctx, *cfg.Right)
		if err != nil {
			return nil, errors.Wrap(err, "load right")
		}
		res.Right = right
	}
	r.log.Infow("loaded sources",
		"left", left.Name(),
		"left_records", left.Len(),
		"right", nameOf(res.Right),
		"right_records", lenOf(res.Right))

	r.report(StageIndex, 20, "indexing with %d pass(es)", len(cfg.Index))
	passes := make([]index.Generator, 0, len(cfg.Index))
	for _, ic := range cfg.Index {
		ix, err := index.New(ic, index.WithLogger(r.log))
		if err != nil {
			return nil, err
		}
		passes = append(passes, ix)
	}
	candidates, err := index.Union(passes...).Index(left, res.Right)
	if err != nil {
		return nil, err
	}
	res.Candidates = candidates.Len()
	r.log.Infow("indexed", "candidates", res.Candidates, "passes", len(passes))

	r.report(StageCompare, 30, "comparing %d candidate pairs", res.Candidates)
	total := res.Candidates
	cmp := compare.New(
		compare.WithWorkers(cfg.Compare.Workers),
		compare.WithChunkSize(cfg.Compare.ChunkSize),
		compare.WithLogger(r.log),
		compare.WithProgress(func(scored int) {
			if total > 0 {
				r.report(StageCompare, 30+60*scored/total, "compared %d/%d pairs", scored, total)
			}
		}))
	for _, rule := range cfg.Rules {
		if err := cmp.Add(rule); err != nil {
			return nil, err
		}
	}
	m, err := cmp.ComputeContext(ctx, candidates, left, res.Right)
	if err != nil {
		return nil, err
	}
	if cfg.Output.MinScore > 0 {
		m = m.AtLeast(cfg.Output.MinScore)
		r.log.Infow("filtered by score", "min_score", cfg.Output.MinScore, "rows", m.Len())
	}
	res.Matrix = m

	if cfg.Output.Path != "" {
		r.report(StageExport, 95, "writing %s", cfg.Output.Path)
		if err := export.WriteFile(cfg.Output.Path, export.Format(cfg.Output.Format), m); err != nil {
			return nil, err
		}
		res.Output = cfg.Output.Path
	}

	res.Elapsed = time.Since(start)
	r.report(StageDone, 100, "%d rows, %d features", m.Len(), m.Width())
	r.log.Infow("job completed", "rows", m.Len(), "features", m.Width(), "elapsed", res.Elapsed)
	return res, nil
}

// LoadSource reads a configured source into memory.
func LoadSource(ctx context.Context, src config.Source) (*adapter.Table, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if !src.IsSQL() {
		opts := adapter.CSVOptions{
			Name:       src.Name,
			IDColumn:   src.IDColumn,
			Columns:    src.Columns,
			NullValues: src.NullValues,
		}
		if src.Delimiter != "" {
			opts.Comma, _ = utf8.DecodeRuneInString(src.Delimiter)
		}
		return adapter.LoadCSVFile(src.Path, opts)
	}

	db, err := adapter.OpenSQL(src.Type, src.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.LoadTable(ctx, adapter.TableQuery{
		Name:     src.Name,
		Schema:   src.Schema,
		Table:    src.Table,
		IDColumn: src.IDColumn,
		Columns:  src.Columns,
		Where:    src.Where,
	})
}

func sourceLabel(src config.Source) string {
	if src.IsSQL() {
		return src.Type + " table " + src.Table
	}
	return src.Path
}

func nameOf(c adapter.Collection) string {
	if c == nil {
		return ""
	}
	return c.Name()
}

func lenOf(c adapter.Collection) int {
	if c == nil {
		return 0
	}
	return c.Len()
}
