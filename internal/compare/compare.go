// Package compare scores candidate pairs into a feature matrix.
package compare

import (
	"context"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nkoub/recordlinkage/internal/adapter"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/features"
	"github.com/nkoub/recordlinkage/internal/logger"
	"github.com/nkoub/recordlinkage/internal/pairs"
)

// DefaultChunkSize is the number of pairs scored per task.
const DefaultChunkSize = 1024

// ProgressFunc receives the running count of scored pairs. It is called
// from worker goroutines and must be safe for concurrent use.
type ProgressFunc func(scored int)

// Comparator evaluates rules over candidate pairs. Rules are added before
// the first Compute; Add must not run concurrently with Compute.
type Comparator struct {
	rules    []compiled
	labels   map[string]struct{}
	workers  int
	chunk    int
	progress ProgressFunc
	log      *zap.SugaredLogger
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithWorkers sets the number of goroutines scoring chunks. Values below 1
// select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Comparator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithChunkSize sets the number of pairs per scoring task.
func WithChunkSize(n int) Option {
	return func(c *Comparator) {
		if n > 0 {
			c.chunk = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Comparator) { c.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Comparator) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a Comparator without rules.
func New(opts ...Option) *Comparator {
	c := &Comparator{
		labels:  make(map[string]struct{}),
		workers: runtime.GOMAXPROCS(0),
		chunk:   DefaultChunkSize,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add validates a rule and appends it. A label that is already registered
// is a configuration error.
func (c *Comparator) Add(r Rule) error {
	cr, err := compile(r)
	if err != nil {
		return err
	}
	label := cr.rule.Label
	if _, dup := c.labels[label]; dup {
		return errors.Configf("feature label %q registered twice", label)
	}
	c.labels[label] = struct{}{}
	c.rules = append(c.rules, cr)
	return nil
}

// Labels returns the feature labels in registration order.
func (c *Comparator) Labels() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.rule.Label
	}
	return out
}

// Rules returns the registered rules with defaults filled in.
func (c *Comparator) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.rule
	}
	return out
}

// Compute scores the candidates. A nil b compares a against itself.
func (c *Comparator) Compute(candidates pairs.Set, a, b adapter.Collection) (*features.Matrix, error) {
	return c.ComputeContext(context.Background(), candidates, a, b)
}

type chunkResult struct {
	pairs  []pairs.Pair
	values []float64
}

// ComputeContext is Compute with cancellation. Rows keep candidate order
// whatever the number of workers. On error no matrix is returned.
func (c *Comparator) ComputeContext(ctx context.Context, candidates pairs.Set, a, b adapter.Collection) (*features.Matrix, error) {
	if a == nil {
		return nil, errors.Configf("compare: left collection is nil")
	}
	if b == nil {
		b = a
	}
	if err := c.checkSchema(a, b); err != nil {
		return nil, err
	}

	start := time.Now()
	var scored atomic.Int64
	var results []*chunkResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for chunk := range candidates.Chunks(c.chunk) {
		if gctx.Err() != nil {
			break
		}
		res := &chunkResult{pairs: slices.Clone(chunk)}
		results = append(results, res)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res.values = c.score(res.pairs, a, b)
			n := scored.Add(int64(len(res.pairs)))
			if c.progress != nil {
				c.progress(int(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "compare")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "compare")
	}

	var ps []pairs.Pair
	var values []float64
	for _, res := range results {
		ps = append(ps, res.pairs...)
		values = append(values, res.values...)
	}
	m, err := features.FromRows(c.Labels(), ps, values)
	if err != nil {
		return nil, err
	}
	c.log.Infow("compared candidate pairs",
		"rules", len(c.rules),
		"rows", m.Len(),
		"workers", c.workers,
		"elapsed", time.Since(start))
	return m, nil
}

// score evaluates every rule on a chunk, row major.
func (c *Comparator) score(ps []pairs.Pair, a, b adapter.Collection) []float64 {
	out := make([]float64, 0, len(ps)*len(c.rules))
	for _, p := range ps {
		for _, r := range c.rules {
			va, okA := a.Value(p.A, r.rule.Left)
			vb, okB := b.Value(p.B, r.rule.Right)
			out = append(out, r.score(va, okA, vb, okB))
		}
	}
	return out
}

func (c *Comparator) checkSchema(a, b adapter.Collection) error {
	for _, r := range c.rules {
		if err := adapter.RequireColumns(a, r.rule.Left); err != nil {
			return errors.Wrapf(err, "rule %q", r.rule.Label)
		}
		if err := adapter.RequireColumns(b, r.rule.Right); err != nil {
			return errors.Wrapf(err, "rule %q", r.rule.Label)
		}
	}
	return nil
}
