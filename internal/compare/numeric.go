package compare

import (
	"math"
	"strconv"
	"strings"

	"github.com/nkoub/recordlinkage/internal/errors"
)

// DecayMethod shapes how a numeric score falls with distance.
type DecayMethod string

// Every method scores 1 up to Offset. The smooth methods score 0.5 at
// Offset+Scale.
const (
	// Step scores 1 within Offset and 0 beyond.
	Step DecayMethod = "step"
	// Linear falls to 0 at Offset+2*Scale.
	Linear DecayMethod = "linear"
	// Squared falls to 0 at Offset+sqrt(2)*Scale.
	Squared DecayMethod = "squared"
	// Exp halves every Scale.
	Exp DecayMethod = "exp"
	// Gauss is a bell curve with half width Scale.
	Gauss DecayMethod = "gauss"
)

type decay struct {
	method DecayMethod
	offset float64
	scale  float64
}

func newDecay(m DecayMethod, offset, scale float64) (decay, error) {
	m = DecayMethod(strings.ToLower(string(m)))
	switch m {
	case Step:
	case Linear, Squared, Exp, Gauss:
		if scale <= 0 {
			return decay{}, errors.Configf("numeric method %q needs a positive scale, got %v", m, scale)
		}
	default:
		return decay{}, errors.WithHint(
			errors.Configf("unknown numeric method %q", m),
			"use one of: step, linear, squared, exp, gauss")
	}
	if offset < 0 {
		return decay{}, errors.Configf("numeric offset must not be negative, got %v", offset)
	}
	return decay{method: m, offset: offset, scale: scale}, nil
}

// score parses both values as numbers. The second result is false when
// either does not parse.
func (d decay) score(a, b string) (float64, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, false
	}
	return d.at(math.Abs(x - y)), true
}

// at maps a distance to a score.
func (d decay) at(dist float64) float64 {
	if dist <= d.offset {
		return 1
	}
	if d.method == Step {
		return 0
	}
	z := (dist - d.offset) / d.scale
	switch d.method {
	case Linear:
		return math.Max(0, 1-z/2)
	case Squared:
		return math.Max(0, 1-z*z/2)
	case Exp:
		return math.Pow(2, -z)
	default:
		return math.Pow(2, -z*z)
	}
}
