package trail

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
	"github.com/soypat/geometry/md3"
)

// entry is one stored trail. Its mutex serializes updates and queries of
// the same body; different bodies proceed independently.
type entry struct {
	mu    sync.Mutex
	trail PlanetTrail
}

// Manager owns the trail store. Safe for concurrent use; updates for
// different bodies may run in parallel.
type Manager struct {
	mu     sync.RWMutex
	trails map[string]*entry

	cfgMu  sync.RWMutex
	config Config

	logger *slog.Logger
}

// NewManager creates an empty trail store.
func NewManager(config Config, logger *slog.Logger) *Manager {
	config = config.normalized()
	logger.Info("trail manager initialized",
		"max_points", config.MaxPoints,
		"min_distance_au", config.MinDistance,
		"time_span_days", config.TimeSpan,
	)
	metrics.SetTrailTimeSpan(config.TimeSpan)
	metrics.SetTrailsTracked(0)

	return &Manager{
		trails: make(map[string]*entry),
		config: config,
		logger: logger,
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.config
}

// SetTrailTimeSpan sets the retention window, clamped to [1, 3650] days.
func (m *Manager) SetTrailTimeSpan(days float64) {
	days = ClampTimeSpan(days)
	m.cfgMu.Lock()
	m.config.TimeSpan = days
	m.cfgMu.Unlock()
	metrics.SetTrailTimeSpan(days)
}

// TrailTimeSpan returns the retention window in days.
func (m *Manager) TrailTimeSpan() float64 {
	return m.Config().TimeSpan
}

// SetMinDistance sets the sampling threshold, clamped to [0, 1] AU.
func (m *Manager) SetMinDistance(au float64) {
	au = ClampMinDistance(au)
	m.cfgMu.Lock()
	m.config.MinDistance = au
	m.cfgMu.Unlock()
}

// SetMaxPoints sets the per-trail cap, clamped to [2, 100000], and trims
// stored trails that exceed the new cap.
func (m *Manager) SetMaxPoints(n int) {
	n = ClampMaxPoints(n)
	m.cfgMu.Lock()
	m.config.MaxPoints = n
	m.cfgMu.Unlock()

	for _, e := range m.entries() {
		e.mu.Lock()
		metrics.AddTrailEvictions("cap", e.evictOverCap(n))
		e.mu.Unlock()
	}
}

// UpdatePosition offers the body's current position as a trail sample at
// Julian Day jd. The Sun is never tracked.
//
// A jd earlier than the newest stored sample rewinds the trail: every stored
// sample later than jd is deleted for good, so a later TrailWithin query no
// longer returns them even after time moves forward again.
func (m *Manager) UpdatePosition(b *orbit.Body, jd float64) {
	if b == nil || b.IsSun || math.IsNaN(jd) {
		return
	}
	cfg := m.Config()
	e := m.getOrCreate(b)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Time moved backwards: samples from the abandoned future go first.
	if n := e.rewind(jd); n > 0 {
		metrics.AddTrailEvictions("rewind", n)
	}

	p := Point{X: b.X, Y: b.Y, Z: b.Z, JulianDay: jd}
	pts := e.trail.Points
	if len(pts) > 0 && distance(pts[len(pts)-1], p) <= cfg.MinDistance {
		metrics.AddTrailPoints("rejected", 1)
		return
	}
	e.trail.Points = append(pts, p)
	metrics.AddTrailPoints("accepted", 1)

	metrics.AddTrailEvictions("cap", e.evictOverCap(cfg.MaxPoints))
	metrics.AddTrailEvictions("window", e.evictBefore(jd-cfg.TimeSpan))
}

// Trail returns the trail for name filtered to the body's default display
// window ending at jd. ok is false when no trail exists.
func (m *Manager) Trail(name string, jd float64) (PlanetTrail, bool) {
	return m.TrailWithin(name, jd, 0)
}

// TrailWithin is Trail with an explicit window in days. A span that is not
// a positive finite number falls back to the default display window.
func (m *Manager) TrailWithin(name string, jd, span float64) (PlanetTrail, bool) {
	m.mu.RLock()
	e, ok := m.trails[name]
	m.mu.RUnlock()
	if !ok {
		return PlanetTrail{}, false
	}
	return e.snapshot(jd, span), true
}

// AllTrails returns every stored trail filtered to its default display
// window, ordered by name.
func (m *Manager) AllTrails(jd float64) []PlanetTrail {
	return m.AllTrailsWithin(jd, 0)
}

// AllTrailsWithin is AllTrails with an explicit window in days.
func (m *Manager) AllTrailsWithin(jd, span float64) []PlanetTrail {
	entries := m.entries()
	out := make([]PlanetTrail, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot(jd, span))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of stored trails.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trails)
}

// ClearTrail removes one trail. Unknown names are ignored.
func (m *Manager) ClearTrail(name string) {
	m.mu.Lock()
	_, ok := m.trails[name]
	delete(m.trails, name)
	n := len(m.trails)
	m.mu.Unlock()

	if ok {
		metrics.SetTrailsTracked(n)
		m.logger.Debug("trail cleared", "body", name)
	}
}

// ClearAll removes every trail.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	n := len(m.trails)
	m.trails = make(map[string]*entry)
	m.mu.Unlock()

	metrics.SetTrailsTracked(0)
	m.logger.Info("all trails cleared", "removed", n)
}

func (m *Manager) getOrCreate(b *orbit.Body) *entry {
	m.mu.RLock()
	e, ok := m.trails[b.Name]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.trails[b.Name]; ok {
		return e
	}
	e = &entry{trail: PlanetTrail{
		Name:          b.Name,
		Color:         b.Color,
		OrbitalPeriod: b.Elements.PeriodDays(),
	}}
	m.trails[b.Name] = e
	metrics.SetTrailsTracked(len(m.trails))
	m.logger.Debug("trail created", "body", b.Name, "orbital_period_days", e.trail.OrbitalPeriod)
	return e
}

func (m *Manager) entries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*entry, 0, len(m.trails))
	for _, e := range m.trails {
		out = append(out, e)
	}
	return out
}

// snapshot copies the trail with points at or after jd − window.
func (e *entry) snapshot(jd, span float64) PlanetTrail {
	e.mu.Lock()
	defer e.mu.Unlock()

	window := span
	if !(span > 0) || math.IsInf(span, 0) {
		window = DisplayWindow(e.trail.OrbitalPeriod)
	}
	cutoff := jd - window

	pts := e.trail.Points
	i := sort.Search(len(pts), func(i int) bool { return pts[i].JulianDay >= cutoff })

	out := e.trail
	out.Points = make([]Point, len(pts)-i)
	copy(out.Points, pts[i:])
	return out
}

// rewind drops samples newer than jd. Caller holds e.mu.
func (e *entry) rewind(jd float64) int {
	pts := e.trail.Points
	i := sort.Search(len(pts), func(i int) bool { return pts[i].JulianDay > jd })
	dropped := len(pts) - i
	e.trail.Points = pts[:i]
	return dropped
}

// evictOverCap drops the oldest samples beyond limit. Caller holds e.mu.
func (e *entry) evictOverCap(limit int) int {
	excess := len(e.trail.Points) - limit
	if excess <= 0 {
		return 0
	}
	e.dropFront(excess)
	return excess
}

// evictBefore drops samples older than cutoff. Caller holds e.mu.
func (e *entry) evictBefore(cutoff float64) int {
	pts := e.trail.Points
	i := sort.Search(len(pts), func(i int) bool { return pts[i].JulianDay >= cutoff })
	if i > 0 {
		e.dropFront(i)
	}
	return i
}

func (e *entry) dropFront(n int) {
	pts := e.trail.Points
	m := copy(pts, pts[n:])
	e.trail.Points = pts[:m]
}

func distance(a, b Point) float64 {
	return md3.Norm(md3.Sub(md3.Vec{X: a.X, Y: a.Y, Z: a.Z}, md3.Vec{X: b.X, Y: b.Y, Z: b.Z}))
}
