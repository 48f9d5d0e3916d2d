// Package sim owns the simulation state: the clock, the propagated body set
// and the per-tick propagate-then-record loop that feeds the trail manager.
package sim

import (
	"math"
	"runtime"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
)

// Speed limits in simulated days per tick.
const (
	DefaultDaysPerTick = 1.0
	MaxDaysPerTick     = 3650.0

	DefaultTickInterval = time.Second
	MinTickInterval     = 10 * time.Millisecond
)

// Config holds simulation configuration loaded from environment variables.
type Config struct {
	Workers      int           // propagation pool size (default: runtime.NumCPU())
	TickInterval time.Duration // wall time between ticks (default: 1s)
	DaysPerTick  float64       // simulated days per tick, negative runs backwards (default: 1)
	StartJD      float64       // initial clock (default: now)
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.TickInterval < MinTickInterval {
		c.TickInterval = MinTickInterval
	}
	if c.DaysPerTick == 0 {
		c.DaysPerTick = DefaultDaysPerTick
	}
	c.DaysPerTick = ClampSpeed(c.DaysPerTick)
	if c.StartJD == 0 || math.IsNaN(c.StartJD) || math.IsInf(c.StartJD, 0) {
		c.StartJD = julianNow()
	}
	return c
}

// ClampSpeed limits days per tick to [-3650, 3650]. NaN yields the default.
func ClampSpeed(days float64) float64 {
	if math.IsNaN(days) {
		return DefaultDaysPerTick
	}
	return math.Max(-MaxDaysPerTick, math.Min(MaxDaysPerTick, days))
}

// BodyState is one body's position in a frame.
type BodyState struct {
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	IsSun      bool    `json:"is_sun,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// Frame holds the positions of all bodies at a single simulated instant.
type Frame struct {
	JulianDay float64     `json:"jd"`
	Time      time.Time   `json:"time"`
	Bodies    []BodyState `json:"bodies"`
}

// Find returns the state of the named body.
func (f *Frame) Find(name string) (BodyState, bool) {
	for _, b := range f.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return BodyState{}, false
}

func stateOf(b *orbit.Body, sol orbit.Solution) BodyState {
	return BodyState{
		Name:       b.Name,
		Color:      b.Color,
		IsSun:      b.IsSun,
		X:          b.X,
		Y:          b.Y,
		Z:          b.Z,
		Degenerate: sol.Degenerate,
	}
}
