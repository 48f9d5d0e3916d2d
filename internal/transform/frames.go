package transform

import (
	"math"

	"github.com/soypat/geometry/md3"
)

// ObliquityJ2000 is the mean obliquity of the ecliptic at J2000.0 in degrees
// (IAU 2006).
const ObliquityJ2000 = 23.4392911

// MaxHeliocentricAU bounds positions accepted by ValidatePosition.
const MaxHeliocentricAU = 200.0

var (
	cosEps = math.Cos(ObliquityJ2000 * math.Pi / 180)
	sinEps = math.Sin(ObliquityJ2000 * math.Pi / 180)
)

// EclipticToEquatorial rotates a J2000 ecliptic vector about the X axis
// (vernal equinox) into the J2000 mean equatorial frame.
func EclipticToEquatorial(v md3.Vec) md3.Vec {
	return md3.Vec{
		X: v.X,
		Y: v.Y*cosEps - v.Z*sinEps,
		Z: v.Y*sinEps + v.Z*cosEps,
	}
}

// EquatorialToEcliptic is the inverse of EclipticToEquatorial.
func EquatorialToEcliptic(v md3.Vec) md3.Vec {
	return md3.Vec{
		X: v.X,
		Y: v.Y*cosEps + v.Z*sinEps,
		Z: -v.Y*sinEps + v.Z*cosEps,
	}
}

// Spherical returns longitude in [0, 360) and latitude in [-90, 90], both in
// degrees, plus the radius of v. In the ecliptic frame these are ecliptic
// longitude and latitude; in the equatorial frame, right ascension and
// declination. The origin maps to all zeros.
func Spherical(v md3.Vec) (lonDeg, latDeg, r float64) {
	r = md3.Norm(v)
	if r == 0 {
		return 0, 0, 0
	}
	lonDeg = math.Atan2(v.Y, v.X) * 180 / math.Pi
	if lonDeg < 0 {
		lonDeg += 360
	}
	latDeg = math.Asin(v.Z/r) * 180 / math.Pi
	return lonDeg, latDeg, r
}

// ValidatePosition checks that a heliocentric position is finite and within
// MaxHeliocentricAU of the Sun.
func ValidatePosition(v md3.Vec) bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return md3.Norm(v) <= MaxHeliocentricAU
}
