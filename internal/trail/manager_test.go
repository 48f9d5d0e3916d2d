package trail

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testManager() *Manager {
	return NewManager(DefaultConfig(), testLogger())
}

func body(name string, x, y float64) *orbit.Body {
	return &orbit.Body{Name: name, Color: "#C1440E", X: x, Y: y}
}

// TestMarsScenario walks the two-sample example: both samples are stored,
// and a 5-day window at jd=10 only returns the second.
func TestMarsScenario(t *testing.T) {
	m := testManager()
	mars := body("Mars", 1.5, 0)
	m.UpdatePosition(mars, 0)

	mars.X, mars.Y = 1.52, 0.1
	m.UpdatePosition(mars, 10)

	all, ok := m.TrailWithin("Mars", 10, 1000)
	if !ok {
		t.Fatal("expected trail for Mars")
	}
	if len(all.Points) != 2 {
		t.Fatalf("stored points = %d, want 2", len(all.Points))
	}

	got, ok := m.TrailWithin("Mars", 10, 5)
	if !ok {
		t.Fatal("expected trail for Mars")
	}
	if len(got.Points) != 1 {
		t.Fatalf("windowed points = %d, want 1", len(got.Points))
	}
	if got.Points[0].JulianDay != 10 {
		t.Errorf("windowed point jd = %v, want 10", got.Points[0].JulianDay)
	}
	if got.Color != "#C1440E" {
		t.Errorf("color = %q, want copied from body", got.Color)
	}
}

func TestSunIsNotTracked(t *testing.T) {
	m := testManager()
	m.UpdatePosition(&orbit.Body{Name: "Sun", IsSun: true}, 0)
	m.UpdatePosition(nil, 0)
	if m.Len() != 0 {
		t.Errorf("trails = %d, want 0", m.Len())
	}
	if _, ok := m.Trail("Sun", 0); ok {
		t.Error("Sun should have no trail")
	}
}

func TestSampleDeduplication(t *testing.T) {
	m := testManager()
	b := body("Neptune", 30, 0)
	m.UpdatePosition(b, 0)
	m.UpdatePosition(b, 1)

	// Below the threshold as well.
	b.X += DefaultMinDistance / 2
	m.UpdatePosition(b, 2)

	tr, _ := m.TrailWithin("Neptune", 2, 100)
	if len(tr.Points) != 1 {
		t.Fatalf("points = %d, want 1", len(tr.Points))
	}
	if tr.Points[0].JulianDay != 0 {
		t.Errorf("kept jd = %v, want the first sample", tr.Points[0].JulianDay)
	}

	b.X += DefaultMinDistance * 2
	m.UpdatePosition(b, 3)
	tr, _ = m.TrailWithin("Neptune", 3, 100)
	if len(tr.Points) != 2 {
		t.Errorf("points = %d, want 2 after moving past threshold", len(tr.Points))
	}
}

// TestCapInvariant drives random walks and checks the cap after every call.
func TestCapInvariant(t *testing.T) {
	m := NewManager(Config{MaxPoints: 50, TimeSpan: MaxTimeSpan}, testLogger())
	rng := rand.New(rand.NewSource(1))
	b := body("Comet", 0, 0)

	for i := 0; i < 1000; i++ {
		b.X += rng.Float64() * 0.01
		b.Y += rng.Float64() * 0.01
		m.UpdatePosition(b, float64(i)*0.1)

		tr, _ := m.TrailWithin("Comet", float64(i)*0.1, MaxTimeSpan)
		if len(tr.Points) > 50 {
			t.Fatalf("update %d: points = %d, exceeds cap 50", i, len(tr.Points))
		}
	}

	tr, _ := m.TrailWithin("Comet", 99.9, MaxTimeSpan)
	if len(tr.Points) != 50 {
		t.Fatalf("points = %d, want 50", len(tr.Points))
	}
	// Oldest evicted first: the newest sample survives.
	if last := tr.Points[len(tr.Points)-1].JulianDay; math.Abs(last-99.9) > 1e-9 {
		t.Errorf("newest jd = %v, want 99.9", last)
	}
}

func TestTimeWindowEviction(t *testing.T) {
	m := testManager()
	m.SetTrailTimeSpan(10)
	b := body("Mercury", 0.4, 0)
	for jd := 0.0; jd <= 30; jd++ {
		b.Y = jd * 0.01
		m.UpdatePosition(b, jd)
	}

	tr, _ := m.TrailWithin("Mercury", 30, MaxTimeSpan)
	for _, p := range tr.Points {
		if p.JulianDay < 20 {
			t.Errorf("point at jd %v survived a 10-day window ending at 30", p.JulianDay)
		}
	}
	if len(tr.Points) != 11 {
		t.Errorf("points = %d, want 11 (jd 20..30)", len(tr.Points))
	}
}

// TestWindowInvariant checks every returned point lies inside the window.
func TestWindowInvariant(t *testing.T) {
	m := NewManager(Config{TimeSpan: MaxTimeSpan}, testLogger())
	b := body("Venus", 0.7, 0)
	for i := 0; i < 500; i++ {
		angle := float64(i) * 0.05
		b.X, b.Y = 0.7*math.Cos(angle), 0.7*math.Sin(angle)
		m.UpdatePosition(b, float64(i))
	}

	for _, tc := range []struct{ t, span float64 }{
		{499, 1}, {499, 7.5}, {499, 90}, {250, 20}, {100, 0.5}, {600, 200},
	} {
		tr, ok := m.TrailWithin("Venus", tc.t, tc.span)
		if !ok {
			t.Fatal("expected trail")
		}
		for _, p := range tr.Points {
			if p.JulianDay < tc.t-tc.span {
				t.Errorf("t=%v span=%v: point jd %v outside window", tc.t, tc.span, p.JulianDay)
			}
		}
	}
}

func TestDefaultDisplayWindow(t *testing.T) {
	tests := []struct {
		name   string
		a      float64
		window float64
	}{
		{"short period floors at 30 days", 0.387, MinDisplayWindow},
		{"mars uses a third of its period", 1.524, orbit.PeriodDays(1.524) / 3},
		{"long period caps at one year", 5.2, MaxDisplayWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Config{TimeSpan: MaxTimeSpan}, testLogger())
			b := &orbit.Body{Name: "X", Elements: &orbit.Elements{A: tt.a, Epoch: orbit.J2000}}
			for jd := 0.0; jd <= 1000; jd++ {
				b.X = jd
				m.UpdatePosition(b, jd)
			}

			tr, _ := m.Trail("X", 1000)
			if got, want := tr.Points[0].JulianDay, math.Ceil(1000-tt.window); got != want {
				t.Errorf("oldest point jd = %v, want %v (window %.2f)", got, want, tt.window)
			}
			if want := orbit.PeriodDays(tt.a); tr.OrbitalPeriod != want {
				t.Errorf("orbital period = %v, want %v", tr.OrbitalPeriod, want)
			}
		})
	}
}

func TestDisplayWindow(t *testing.T) {
	tests := []struct{ period, want float64 }{
		{0, 30},
		{87.97, 30},
		{686.98, 686.98 / 3},
		{4332.59, 365},
		{math.NaN(), 30},
	}
	for _, tt := range tests {
		if got := DisplayWindow(tt.period); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DisplayWindow(%v) = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestQueryDoesNotMutate(t *testing.T) {
	m := testManager()
	b := body("Earth", 1, 0)
	for jd := 0.0; jd < 20; jd++ {
		b.Y = jd * 0.1
		m.UpdatePosition(b, jd)
	}

	short, _ := m.TrailWithin("Earth", 19, 2)
	if len(short.Points) != 3 {
		t.Fatalf("short window points = %d, want 3", len(short.Points))
	}
	short.Points[0].X = 999

	full, _ := m.TrailWithin("Earth", 19, 100)
	if len(full.Points) != 20 {
		t.Errorf("stored points = %d after query, want 20", len(full.Points))
	}
	for _, p := range full.Points {
		if p.X == 999 {
			t.Error("modifying a query result changed stored history")
		}
	}
}

func TestMissingTrail(t *testing.T) {
	m := testManager()
	if _, ok := m.Trail("Pluto", 0); ok {
		t.Error("expected ok == false for untracked body")
	}
	if got := m.AllTrails(0); len(got) != 0 {
		t.Errorf("AllTrails = %d entries, want 0", len(got))
	}
}

func TestAllTrails(t *testing.T) {
	m := testManager()
	for i, name := range []string{"Venus", "Earth", "Mars"} {
		m.UpdatePosition(body(name, float64(i+1), 0), 0)
	}
	m.UpdatePosition(&orbit.Body{Name: "Sun", IsSun: true}, 0)

	all := m.AllTrails(0)
	if len(all) != 3 {
		t.Fatalf("AllTrails = %d entries, want 3", len(all))
	}
	want := []string{"Earth", "Mars", "Venus"}
	for i, tr := range all {
		if tr.Name != want[i] {
			t.Errorf("AllTrails[%d] = %q, want %q", i, tr.Name, want[i])
		}
	}
}

func TestClear(t *testing.T) {
	m := testManager()
	m.UpdatePosition(body("Earth", 1, 0), 0)
	m.UpdatePosition(body("Mars", 1.5, 0), 0)

	// Unknown names are a no-op.
	m.ClearTrail("Vulcan")
	if m.Len() != 2 {
		t.Fatalf("trails = %d, want 2", m.Len())
	}

	m.ClearTrail("Earth")
	m.ClearTrail("Earth")
	if _, ok := m.Trail("Earth", 0); ok {
		t.Error("Earth trail should be gone")
	}
	if m.Len() != 1 {
		t.Errorf("trails = %d, want 1", m.Len())
	}

	// A cleared body starts over.
	m.UpdatePosition(body("Earth", 2, 0), 5)
	tr, ok := m.TrailWithin("Earth", 5, 100)
	if !ok || len(tr.Points) != 1 || tr.Points[0].X != 2 {
		t.Errorf("recreated trail = %+v, want single fresh point", tr)
	}

	m.ClearAll()
	m.ClearAll()
	if m.Len() != 0 {
		t.Errorf("trails = %d after ClearAll, want 0", m.Len())
	}
}

func TestSetTrailTimeSpanClamps(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-5, 1},
		{99999, 3650},
		{0, 1},
		{45, 45},
		{math.Inf(1), 3650},
		{math.NaN(), DefaultTimeSpan},
	}

	m := testManager()
	if got := m.TrailTimeSpan(); got != DefaultTimeSpan {
		t.Errorf("default time span = %v, want %v", got, DefaultTimeSpan)
	}
	for _, tt := range tests {
		m.SetTrailTimeSpan(tt.in)
		if got := m.TrailTimeSpan(); got != tt.want {
			t.Errorf("SetTrailTimeSpan(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{"zero uses defaults", Config{}, DefaultConfig()},
		{"clamps high", Config{MaxPoints: 1 << 30, MinDistance: 5, TimeSpan: 1e6}, Config{MaxPoints: MaxMaxPoints, MinDistance: MaxMinDistance, TimeSpan: MaxTimeSpan}},
		{"clamps low", Config{MaxPoints: 1, MinDistance: -1, TimeSpan: -1}, Config{MaxPoints: MinMaxPoints, MinDistance: 0, TimeSpan: MinTimeSpan}},
		{"no min distance", Config{MinDistance: NoMinDistance}, Config{MaxPoints: DefaultMaxPoints, MinDistance: 0, TimeSpan: DefaultTimeSpan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewManager(tt.in, testLogger()).Config(); got != tt.want {
				t.Errorf("Config() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestZeroMinDistanceAtConstruction checks that a manager built with
// NoMinDistance keeps moves a default manager would drop, the same as one
// switched over with SetMinDistance(0).
func TestZeroMinDistanceAtConstruction(t *testing.T) {
	built := NewManager(Config{MinDistance: NoMinDistance}, testLogger())
	switched := testManager()
	switched.SetMinDistance(0)
	def := testManager()

	for _, tt := range []struct {
		name string
		m    *Manager
		want int
	}{
		{"built", built, 3},
		{"switched", switched, 3},
		{"default", def, 1},
	} {
		b := body("Uranus", 19, 0)
		for jd := 0.0; jd < 3; jd++ {
			b.X = 19 + jd*DefaultMinDistance/10
			tt.m.UpdatePosition(b, jd)
		}
		tr, _ := tt.m.TrailWithin("Uranus", 2, 100)
		if len(tr.Points) != tt.want {
			t.Errorf("%s: points = %d, want %d", tt.name, len(tr.Points), tt.want)
		}
	}
}

func TestSetMaxPointsTrims(t *testing.T) {
	m := testManager()
	b := body("Jupiter", 5, 0)
	for jd := 0.0; jd < 40; jd++ {
		b.Y = jd
		m.UpdatePosition(b, jd)
	}

	m.SetMaxPoints(10)
	tr, _ := m.TrailWithin("Jupiter", 39, 1000)
	if len(tr.Points) != 10 {
		t.Fatalf("points = %d, want 10", len(tr.Points))
	}
	if tr.Points[0].JulianDay != 30 {
		t.Errorf("oldest jd = %v, want 30", tr.Points[0].JulianDay)
	}

	m.SetMinDistance(-3)
	if got := m.Config().MinDistance; got != 0 {
		t.Errorf("MinDistance = %v, want 0", got)
	}
}

// TestRewind verifies that stepping backwards keeps the trail ordered.
func TestRewind(t *testing.T) {
	m := testManager()
	b := body("Saturn", 9.5, 0)
	for jd := 0.0; jd <= 20; jd++ {
		b.Y = jd
		m.UpdatePosition(b, jd)
	}

	b.Y = -1
	m.UpdatePosition(b, 5.5)

	tr, _ := m.TrailWithin("Saturn", 5.5, 100)
	if len(tr.Points) != 7 {
		t.Fatalf("points = %d, want 7 (jd 0..5 plus 5.5)", len(tr.Points))
	}
	for i := 1; i < len(tr.Points); i++ {
		if tr.Points[i].JulianDay < tr.Points[i-1].JulianDay {
			t.Fatalf("points out of order at %d: %v < %v", i, tr.Points[i].JulianDay, tr.Points[i-1].JulianDay)
		}
	}

	// The dropped future stays gone once time moves forward again.
	b.Y = 30
	m.UpdatePosition(b, 30)
	tr, _ = m.TrailWithin("Saturn", 30, 100)
	if len(tr.Points) != 8 {
		t.Fatalf("points after moving forward = %d, want 8", len(tr.Points))
	}
	for _, p := range tr.Points {
		if p.JulianDay > 5.5 && p.JulianDay < 30 {
			t.Errorf("rewound sample at jd %v came back", p.JulianDay)
		}
	}
}

// TestConcurrentBodies updates distinct bodies in parallel while querying.
func TestConcurrentBodies(t *testing.T) {
	m := testManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := body(fmt.Sprintf("body-%d", i), float64(i), 0)
			for jd := 0.0; jd < 200; jd++ {
				b.Y = jd * 0.01
				m.UpdatePosition(b, jd)
				m.AllTrails(jd)
			}
		}(i)
	}
	wg.Wait()

	if m.Len() != 8 {
		t.Errorf("trails = %d, want 8", m.Len())
	}
	for _, tr := range m.AllTrailsWithin(199, 1000) {
		if len(tr.Points) != 91 {
			t.Errorf("%s: points = %d, want 91 (90-day retention)", tr.Name, len(tr.Points))
		}
	}
}
