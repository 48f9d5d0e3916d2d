package orbit

import (
	"math"

	"github.com/soniakeys/meeus/v3/base"
)

const (
	// GaussianK is the Gaussian gravitational constant in radians per day.
	// With GM of the Sun normalized to 1, one time unit is 1/GaussianK days.
	GaussianK = base.K

	// J2000 is the Julian Day of the J2000.0 epoch.
	J2000 = base.J2000

	// KeplerTolerance is the Newton-Raphson convergence bound in radians.
	KeplerTolerance = 1e-9

	// KeplerMaxIterations caps the solver for high eccentricities.
	KeplerMaxIterations = 30

	// MaxEccentricity is the value Propagate clamps open orbits to.
	MaxEccentricity = 0.99

	twoPi = 2 * math.Pi
)

// Period returns the orbital period for semi-major axis a (AU) in the
// normalized unit system where GM = 1: T = 2π·sqrt(a³).
// Returns 0 for a non-positive or non-finite axis.
func Period(a float64) float64 {
	if !(a > 0) || math.IsInf(a, 0) {
		return 0
	}
	return twoPi * math.Sqrt(a*a*a)
}

// PeriodDays converts Period to days. For a = 1 AU this is one sidereal
// year, about 365.2569 days.
func PeriodDays(a float64) float64 {
	return Period(a) / GaussianK
}

// MeanMotion returns the mean motion in radians per day, or 0 when the
// period is undefined.
func MeanMotion(a float64) float64 {
	t := PeriodDays(a)
	if t == 0 {
		return 0
	}
	return twoPi / t
}

// NormalizeAngle wraps an angle in radians to [0, 2π).
func NormalizeAngle(x float64) float64 {
	x = math.Mod(x, twoPi)
	if x < 0 {
		x += twoPi
	}
	if x >= twoPi {
		x = 0
	}
	return x
}

// SolveKepler solves M = E − e·sin(E) for the eccentric anomaly E using
// Newton-Raphson. It stops at KeplerTolerance or after KeplerMaxIterations,
// returning the last iterate in the latter case with converged == false.
func SolveKepler(m, e float64) (ecc float64, iterations int, converged bool) {
	m = NormalizeAngle(m)
	if e == 0 {
		return m, 0, true
	}

	ecc = m
	if e >= 0.8 {
		ecc = math.Pi
	}

	for iterations = 1; iterations <= KeplerMaxIterations; iterations++ {
		f := ecc - e*math.Sin(ecc) - m
		delta := f / (1 - e*math.Cos(ecc))
		ecc -= delta
		if math.Abs(delta) < KeplerTolerance {
			return ecc, iterations, true
		}
	}
	return ecc, KeplerMaxIterations, false
}
