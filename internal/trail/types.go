// Package trail keeps a bounded, time-windowed position history per body.
//
// Every accepted sample is subject to two evictions: a hard cap on the number
// of points (oldest first) and a retention window relative to the time of
// the update. Queries apply a separate display window and always return
// copies, so callers never observe or mutate stored history.
package trail

import "math"

const (
	DefaultMaxPoints = 2000
	MinMaxPoints     = 2
	MaxMaxPoints     = 100000

	DefaultMinDistance = 1e-4 // AU
	MaxMinDistance     = 1.0  // AU

	// NoMinDistance disables the sampling threshold in a Config, where a
	// zero MinDistance means "use the default".
	NoMinDistance = -1.0

	DefaultTimeSpan = 90.0   // days
	MinTimeSpan     = 1.0    // days
	MaxTimeSpan     = 3650.0 // days

	// Display window bounds for queries without an explicit span.
	MinDisplayWindow = 30.0  // days
	MaxDisplayWindow = 365.0 // days
)

// Config holds the tunable sampling and retention parameters.
// Zero values are replaced by defaults; out-of-range values are clamped.
// To start with a zero sampling threshold set MinDistance to NoMinDistance
// (any negative value clamps to 0); SetMinDistance(0) does the same later.
type Config struct {
	MaxPoints   int     `json:"max_points"`      // stored points per trail
	MinDistance float64 `json:"min_distance_au"` // sampling threshold (AU)
	TimeSpan    float64 `json:"time_span_days"`  // retention window (days)
}

// DefaultConfig returns the default trail configuration.
func DefaultConfig() Config {
	return Config{
		MaxPoints:   DefaultMaxPoints,
		MinDistance: DefaultMinDistance,
		TimeSpan:    DefaultTimeSpan,
	}
}

// normalized fills zero fields with defaults and clamps the rest.
func (c Config) normalized() Config {
	if c.MaxPoints == 0 {
		c.MaxPoints = DefaultMaxPoints
	}
	if c.MinDistance == 0 {
		c.MinDistance = DefaultMinDistance
	}
	if c.TimeSpan == 0 {
		c.TimeSpan = DefaultTimeSpan
	}
	c.MaxPoints = ClampMaxPoints(c.MaxPoints)
	c.MinDistance = ClampMinDistance(c.MinDistance)
	c.TimeSpan = ClampTimeSpan(c.TimeSpan)
	return c
}

// ClampTimeSpan bounds a retention window to [MinTimeSpan, MaxTimeSpan].
// NaN maps to the default.
func ClampTimeSpan(days float64) float64 {
	if math.IsNaN(days) {
		return DefaultTimeSpan
	}
	return clamp(days, MinTimeSpan, MaxTimeSpan)
}

// ClampMaxPoints bounds the per-trail cap to [MinMaxPoints, MaxMaxPoints].
func ClampMaxPoints(n int) int {
	if n < MinMaxPoints {
		return MinMaxPoints
	}
	if n > MaxMaxPoints {
		return MaxMaxPoints
	}
	return n
}

// ClampMinDistance bounds the sampling threshold to [0, MaxMinDistance].
// NaN maps to the default.
func ClampMinDistance(au float64) float64 {
	if math.IsNaN(au) {
		return DefaultMinDistance
	}
	return clamp(au, 0, MaxMinDistance)
}

// DisplayWindow returns the default query window for a body with the given
// orbital period: a third of the orbit, bounded to [30, 365] days.
func DisplayWindow(periodDays float64) float64 {
	if math.IsNaN(periodDays) {
		return MinDisplayWindow
	}
	return clamp(periodDays/3, MinDisplayWindow, MaxDisplayWindow)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Point is one historical sample.
type Point struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	JulianDay float64 `json:"jd"`
}

// PlanetTrail is the stored history for one body.
// Points are ordered oldest first by JulianDay.
type PlanetTrail struct {
	Name          string  `json:"name"`
	Color         string  `json:"color"`
	OrbitalPeriod float64 `json:"orbital_period_days"`
	Points        []Point `json:"points"`
}
