package transform

import (
	"math"
	"testing"
	"time"

	"github.com/soypat/geometry/md3"
)

func TestJulianDay(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15, fractional seconds included.
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
		{
			name:     "non-UTC zone",
			time:     time.Date(2000, 1, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600)),
			expected: 2451545.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDay(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDay(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

func TestTimeRoundTrip(t *testing.T) {
	want := time.Date(2003, 8, 27, 9, 51, 0, 0, time.UTC)
	got := Time(JulianDay(want))
	if d := got.Sub(want); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("Time(JulianDay(%v)) = %v, off by %v", want, got, d)
	}

	if got := Time(2451545.0); !got.Equal(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Time(J2000) = %v", got)
	}
	if got := Time(math.NaN()); !got.IsZero() {
		t.Errorf("Time(NaN) = %v, want zero time", got)
	}
}

func TestEclipticToEquatorial(t *testing.T) {
	eps := ObliquityJ2000 * math.Pi / 180

	// The ecliptic pole tilts away from the celestial pole by the obliquity.
	pole := EclipticToEquatorial(md3.Vec{Z: 1})
	if math.Abs(pole.Y+math.Sin(eps)) > 1e-12 || math.Abs(pole.Z-math.Cos(eps)) > 1e-12 {
		t.Errorf("ecliptic pole = %+v", pole)
	}

	// The equinox direction is shared by both frames.
	if x := EclipticToEquatorial(md3.Vec{X: 1}); x != (md3.Vec{X: 1}) {
		t.Errorf("equinox = %+v, want unchanged", x)
	}

	v := md3.Vec{X: 1.39067, Y: -0.01339, Z: -0.03446}
	back := EquatorialToEcliptic(EclipticToEquatorial(v))
	if md3.Norm(md3.Sub(back, v)) > 1e-12 {
		t.Errorf("round trip = %+v, want %+v", back, v)
	}
	if math.Abs(md3.Norm(EclipticToEquatorial(v))-md3.Norm(v)) > 1e-12 {
		t.Error("rotation changed vector length")
	}
}

func TestSpherical(t *testing.T) {
	tests := []struct {
		name             string
		v                md3.Vec
		lon, lat, radius float64
	}{
		{"origin", md3.Vec{}, 0, 0, 0},
		{"+X", md3.Vec{X: 2}, 0, 0, 2},
		{"+Y", md3.Vec{Y: 1}, 90, 0, 1},
		{"-Y", md3.Vec{Y: -1}, 270, 0, 1},
		{"pole", md3.Vec{Z: 3}, 0, 90, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lon, lat, r := Spherical(tt.v)
			if math.Abs(lon-tt.lon) > 1e-9 || math.Abs(lat-tt.lat) > 1e-9 || math.Abs(r-tt.radius) > 1e-12 {
				t.Errorf("Spherical(%+v) = (%v, %v, %v), want (%v, %v, %v)", tt.v, lon, lat, r, tt.lon, tt.lat, tt.radius)
			}
		})
	}
}

func TestValidatePosition(t *testing.T) {
	tests := []struct {
		name  string
		pos   md3.Vec
		valid bool
	}{
		{"Sun", md3.Vec{}, true},
		{"Earth", md3.Vec{X: -0.177, Y: 0.967}, true},
		{"Pluto aphelion", md3.Vec{X: 49.3}, true},
		{"too far", md3.Vec{X: 150, Y: 150}, false},
		{"NaN", md3.Vec{X: math.NaN()}, false},
		{"Inf", md3.Vec{Z: math.Inf(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidatePosition(tt.pos); got != tt.valid {
				t.Errorf("ValidatePosition(%+v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
