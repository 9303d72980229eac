// Package normalize cleans attribute values before they are compared or
// used as blocking keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options selects the cleaning steps. The zero value leaves strings as is.
type Options struct {
	Lowercase        bool `mapstructure:"lowercase" json:"lowercase,omitempty"`
	TrimSpace        bool `mapstructure:"trim_space" json:"trim_space,omitempty"`
	FoldAccents      bool `mapstructure:"fold_accents" json:"fold_accents,omitempty"`
	StripPunctuation bool `mapstructure:"strip_punctuation" json:"strip_punctuation,omitempty"`
	CollapseSpace    bool `mapstructure:"collapse_space" json:"collapse_space,omitempty"`
}

// Clean enables every step.
var Clean = Options{
	Lowercase:        true,
	TrimSpace:        true,
	FoldAccents:      true,
	StripPunctuation: true,
	CollapseSpace:    true,
}

// IsZero reports whether no step is enabled.
func (o Options) IsZero() bool {
	return o == Options{}
}

// Apply runs the enabled steps in a fixed order: accents, case,
// punctuation, whitespace.
func (o Options) Apply(s string) string {
	if o.IsZero() {
		return s
	}
	if o.FoldAccents {
		s = foldAccents(s)
	}
	if o.Lowercase {
		s = strings.ToLower(s)
	}
	if o.StripPunctuation {
		s = strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return -1
			}
			return r
		}, s)
	}
	if o.CollapseSpace {
		s = strings.Join(strings.Fields(s), " ")
	} else if o.TrimSpace {
		s = strings.TrimSpace(s)
	}
	return s
}

func foldAccents(s string) string {
	// transform.Chain is stateful, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
