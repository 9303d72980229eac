package compare

import (
	"strings"
	"time"
)

const (
	DefaultDateLayout   = "2006-01-02"
	DefaultSwapMonthDay = 0.5
)

func dateScorer(layout string, swapped float64) func(a, b string) (float64, bool) {
	return func(a, b string) (float64, bool) {
		x, err := time.Parse(layout, strings.TrimSpace(a))
		if err != nil {
			return 0, false
		}
		y, err := time.Parse(layout, strings.TrimSpace(b))
		if err != nil {
			return 0, false
		}
		xy, xm, xd := x.Date()
		yy, ym, yd := y.Date()
		switch {
		case xy == yy && xm == ym && xd == yd:
			return 1, true
		case xy == yy && int(xm) == yd && xd == int(ym):
			return swapped, true
		}
		return 0, true
	}
}
