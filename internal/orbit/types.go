// Package orbit implements two-body Keplerian propagation of heliocentric
// orbital elements.
//
// Positions are returned in astronomical units in the heliocentric ecliptic
// J2000 frame. X and Y lie in the ecliptic plane, Z is the out-of-plane
// component. All functions in this package are pure and safe for concurrent
// use; only Body.Update mutates state, and only the receiver.
package orbit

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/geometry/md3"
)

// ErrNoElements is returned by Validate for a nil element set.
var ErrNoElements = errors.New("orbit: no orbital elements")

// Elements holds epoch-referenced Keplerian elements for one body.
// Angles are in degrees, matching published element tables.
type Elements struct {
	A     float64 `json:"a"`     // semi-major axis (AU)
	E     float64 `json:"e"`     // eccentricity
	I     float64 `json:"i"`     // inclination to the ecliptic (deg)
	Node  float64 `json:"node"`  // longitude of ascending node (deg)
	Peri  float64 `json:"peri"`  // argument of periapsis (deg)
	M0    float64 `json:"m0"`    // mean anomaly at Epoch (deg)
	Epoch float64 `json:"epoch"` // Julian Day of the element set
}

// Validate reports whether the element set describes a bound ellipse that
// Propagate can handle without clamping.
func (el *Elements) Validate() error {
	if el == nil {
		return ErrNoElements
	}
	for name, v := range map[string]float64{
		"a": el.A, "e": el.E, "i": el.I, "node": el.Node,
		"peri": el.Peri, "m0": el.M0, "epoch": el.Epoch,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("orbit: element %s is not finite", name)
		}
	}
	if el.A <= 0 {
		return fmt.Errorf("orbit: semi-major axis %g must be positive", el.A)
	}
	if el.E < 0 || el.E >= 1 {
		return fmt.Errorf("orbit: eccentricity %g outside [0, 1)", el.E)
	}
	return nil
}

// PeriodDays returns the orbital period in days, or 0 when the elements
// cannot be propagated.
func (el *Elements) PeriodDays() float64 {
	if el == nil {
		return 0
	}
	return PeriodDays(el.A)
}

// Body is a catalog entry plus its most recently propagated position.
// The propagator writes X, Y, Z; trail managers and renderers read them.
type Body struct {
	Name     string
	Color    string
	IsSun    bool
	Elements *Elements

	X, Y, Z float64
}

// Position returns the current position as a vector.
func (b *Body) Position() md3.Vec {
	return md3.Vec{X: b.X, Y: b.Y, Z: b.Z}
}

// Propagate solves the body's position at jd without storing it.
// The Sun stays at the origin.
func (b *Body) Propagate(jd float64) Solution {
	if b.IsSun {
		return Solution{Converged: true}
	}
	return Solve(b.Elements, jd)
}

// Apply stores the position from sol on the body.
func (b *Body) Apply(sol Solution) {
	b.X, b.Y, b.Z = sol.Position.X, sol.Position.Y, sol.Position.Z
}

// Update propagates the body to jd and stores the result in place.
func (b *Body) Update(jd float64) Solution {
	sol := b.Propagate(jd)
	b.Apply(sol)
	return sol
}
