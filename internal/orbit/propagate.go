package orbit

import (
	"math"

	"github.com/soypat/geometry/md3"
)

// Solution is the full result of one propagation step.
type Solution struct {
	Position         md3.Vec // heliocentric ecliptic (AU)
	MeanAnomaly      float64 // rad, [0, 2π)
	EccentricAnomaly float64 // rad
	TrueAnomaly      float64 // rad
	Radius           float64 // AU
	Iterations       int
	Converged        bool
	Degenerate       bool // elements unusable, Position is the origin
}

// Propagate returns the position of a body with elements el at Julian Day jd.
// Missing or degenerate elements yield the origin.
func Propagate(el *Elements, jd float64) md3.Vec {
	return Solve(el, jd).Position
}

// Solve runs the two-body pipeline: mean anomaly at jd, Kepler's equation,
// true anomaly and radius, then rotation from the orbital plane into the
// ecliptic frame by periapsis argument, inclination and node.
func Solve(el *Elements, jd float64) Solution {
	if el == nil || !(el.A > 0) || !finite(el.A, el.E, el.I, el.Node, el.Peri, el.M0, el.Epoch, jd) {
		return Solution{Converged: true, Degenerate: true}
	}

	e := el.E
	if e < 0 {
		e = 0
	}
	if e >= 1 {
		e = MaxEccentricity
	}

	m := NormalizeAngle(deg(el.M0) + MeanMotion(el.A)*(jd-el.Epoch))
	ecc, iters, ok := SolveKepler(m, e)

	// Orbital plane, x toward periapsis.
	cosE, sinE := math.Cos(ecc), math.Sin(ecc)
	px := el.A * (cosE - e)
	py := el.A * math.Sqrt(1-e*e) * sinE

	pos := toEcliptic(px, py, deg(el.Peri), deg(el.I), deg(el.Node))
	if !finite(pos.X, pos.Y, pos.Z) {
		return Solution{Converged: ok, Iterations: iters, Degenerate: true}
	}

	return Solution{
		Position:         pos,
		MeanAnomaly:      m,
		EccentricAnomaly: ecc,
		TrueAnomaly:      NormalizeAngle(math.Atan2(py, px)),
		Radius:           el.A * (1 - e*cosE),
		Iterations:       iters,
		Converged:        ok,
	}
}

// toEcliptic applies Rz(node)·Rx(i)·Rz(peri) to an orbital-plane vector.
func toEcliptic(x, y, peri, inc, node float64) md3.Vec {
	cw, sw := math.Cos(peri), math.Sin(peri)
	ci, si := math.Cos(inc), math.Sin(inc)
	cn, sn := math.Cos(node), math.Sin(node)

	return md3.Vec{
		X: (cw*cn-sw*sn*ci)*x + (-sw*cn-cw*sn*ci)*y,
		Y: (cw*sn+sw*cn*ci)*x + (-sw*sn+cw*cn*ci)*y,
		Z: (sw*si)*x + (cw*si)*y,
	}
}

func deg(d float64) float64 { return d * math.Pi / 180 }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
