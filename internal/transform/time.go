// Package transform converts between time scales and reference frames used
// around the propagator.
package transform

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/julian"
)

// JulianDay converts a time.Time to a fractional Julian Day (UTC).
// go-satellite resolves whole seconds; the sub-second part is added here.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return jd + float64(t.Nanosecond())/1e9/86400.0
}

// Time converts a Julian Day to a UTC time.Time. Non-finite input yields
// the zero time.
func Time(jd float64) time.Time {
	if math.IsNaN(jd) || math.IsInf(jd, 0) {
		return time.Time{}
	}
	return julian.JDToTime(jd).UTC()
}
