package compare

import (
	"strings"

	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/features"
	"github.com/nkoub/recordlinkage/internal/normalize"
	"github.com/nkoub/recordlinkage/internal/similarity"
)

// Kind selects how a rule compares two attribute values.
type Kind string

const (
	// KindExact scores 1 when the normalized values are equal, else 0.
	KindExact Kind = "exact"
	// KindString scores with a similarity algorithm.
	KindString Kind = "string"
	// KindNumeric scores the distance between two numbers.
	KindNumeric Kind = "numeric"
	// KindDate compares calendar dates.
	KindDate Kind = "date"
)

// ParseKind resolves a rule kind name.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exact":
		return KindExact, nil
	case "string", "similarity":
		return KindString, nil
	case "numeric", "number":
		return KindNumeric, nil
	case "date":
		return KindDate, nil
	}
	return "", errors.WithHint(
		errors.Configf("unknown comparison kind %q", name),
		"use one of: exact, string, numeric, date")
}

// Rule configures one feature column.
type Rule struct {
	// Left is the attribute read from the first collection.
	Left string `mapstructure:"left" json:"left"`
	// Right is the attribute read from the second collection. Defaults to
	// Left.
	Right string `mapstructure:"right" json:"right,omitempty"`
	Kind  Kind   `mapstructure:"kind" json:"kind"`
	// Method names the similarity algorithm of a string rule (default
	// levenshtein) or the decay function of a numeric rule (default step).
	Method string            `mapstructure:"method" json:"method,omitempty"`
	Params similarity.Params `mapstructure:"params" json:"params,omitempty"`
	// Threshold turns scores into a 0/1 indicator of score >= Threshold.
	Threshold *float64 `mapstructure:"threshold" json:"threshold,omitempty"`
	// Normalize cleans both values before exact and string comparison.
	Normalize normalize.Options `mapstructure:"normalize" json:"normalize,omitempty"`
	// Missing is written when either value is null or unparsable. Defaults
	// to features.Missing.
	Missing *float64 `mapstructure:"missing" json:"missing,omitempty"`
	// MatchNulls makes an exact rule score two null values as equal.
	MatchNulls bool `mapstructure:"match_nulls" json:"match_nulls,omitempty"`
	// Offset and Scale shape numeric decay.
	Offset float64 `mapstructure:"offset" json:"offset,omitempty"`
	Scale  float64 `mapstructure:"scale" json:"scale,omitempty"`
	// Layout is the time.Parse layout of date values, default 2006-01-02.
	Layout string `mapstructure:"layout" json:"layout,omitempty"`
	// SwapMonthDay is the score of two dates that differ only by swapped
	// month and day, default 0.5.
	SwapMonthDay *float64 `mapstructure:"swap_month_day" json:"swap_month_day,omitempty"`
	// Label names the output column. Defaults to Left.
	Label string `mapstructure:"label" json:"label"`
}

// Float returns a pointer to v, for the optional Rule fields.
func Float(v float64) *float64 { return &v }

// valueScorer scores a pair of attribute values. ok is false for null.
type valueScorer func(a string, okA bool, b string, okB bool) float64

// compiled is a validated rule ready to score.
type compiled struct {
	rule  Rule
	score valueScorer
}

// compile fills defaults, validates and builds the scorer.
func compile(r Rule) (compiled, error) {
	if r.Left == "" {
		return compiled{}, errors.Configf("rule %q: left attribute is empty", r.Label)
	}
	if r.Right == "" {
		r.Right = r.Left
	}
	if r.Label == "" {
		r.Label = r.Left
	}
	kind, err := ParseKind(string(r.Kind))
	if err != nil {
		return compiled{}, errors.Wrapf(err, "rule %q", r.Label)
	}
	r.Kind = kind
	if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 1) {
		return compiled{}, errors.Configf("rule %q: threshold %v outside [0, 1]", r.Label, *r.Threshold)
	}
	missing := features.Missing
	if r.Missing != nil {
		missing = *r.Missing
	}

	var score func(a, b string) (float64, bool)
	switch kind {
	case KindExact:
		if r.Method != "" {
			return compiled{}, errors.Configf("rule %q: exact rules take no method, got %q", r.Label, r.Method)
		}
		return compiled{rule: r, score: exactScorer(r, missing)}, nil
	case KindString:
		if r.Method == "" {
			r.Method = "levenshtein"
		}
		s, err := similarity.New(r.Method, r.Params)
		if err != nil {
			return compiled{}, errors.Wrapf(err, "rule %q", r.Label)
		}
		norm := r.Normalize
		score = func(a, b string) (float64, bool) {
			return s.Score(norm.Apply(a), norm.Apply(b)), true
		}
	case KindNumeric:
		if r.Method == "" {
			r.Method = string(Step)
		}
		f, err := newDecay(DecayMethod(r.Method), r.Offset, r.Scale)
		if err != nil {
			return compiled{}, errors.Wrapf(err, "rule %q", r.Label)
		}
		score = f.score
	case KindDate:
		if r.Layout == "" {
			r.Layout = DefaultDateLayout
		}
		if r.SwapMonthDay == nil {
			r.SwapMonthDay = Float(DefaultSwapMonthDay)
		}
		if *r.SwapMonthDay < 0 || *r.SwapMonthDay > 1 {
			return compiled{}, errors.Configf("rule %q: swap_month_day %v outside [0, 1]", r.Label, *r.SwapMonthDay)
		}
		score = dateScorer(r.Layout, *r.SwapMonthDay)
	}

	threshold := r.Threshold
	return compiled{rule: r, score: func(a string, okA bool, b string, okB bool) float64 {
		if !okA || !okB {
			return missing
		}
		v, ok := score(a, b)
		if !ok {
			return missing
		}
		if threshold != nil {
			return indicator(v >= *threshold)
		}
		return v
	}}, nil
}

func exactScorer(r Rule, missing float64) valueScorer {
	norm := r.Normalize
	threshold := r.Threshold
	return func(a string, okA bool, b string, okB bool) float64 {
		var v float64
		switch {
		case !okA && !okB && r.MatchNulls:
			v = 1
		case !okA || !okB:
			return missing
		default:
			v = indicator(norm.Apply(a) == norm.Apply(b))
		}
		if threshold != nil {
			return indicator(v >= *threshold)
		}
		return v
	}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
