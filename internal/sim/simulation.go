package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
	"github.com/ChenXin-2009/solmap-sub004/internal/transform"
)

// ErrNoCatalog is returned when no catalog dataset has been loaded yet.
var ErrNoCatalog = errors.New("sim: no catalog loaded")

// Simulation advances a clock and keeps the body set and trails in step
// with it. Step, Reset and catalog cutovers are serialized; Latest is
// lock-free.
type Simulation struct {
	mu          sync.Mutex
	jd          float64
	daysPerTick float64
	bodies      []*orbit.Body
	dataset     *catalog.Dataset

	latest atomic.Pointer[Frame]

	store  *catalog.Store
	trails *trail.Manager
	pool   *WorkerPool
	config Config
	logger *slog.Logger
}

// New creates a simulation. If the store already holds a dataset the body
// set is built immediately; otherwise Start waits for one.
func New(store *catalog.Store, trails *trail.Manager, config Config, logger *slog.Logger) *Simulation {
	config = config.normalized()
	logger.Info("simulation initialized",
		"workers", config.Workers,
		"tick_interval_ms", config.TickInterval.Milliseconds(),
		"days_per_tick", config.DaysPerTick,
		"start_jd", config.StartJD,
	)
	metrics.SetSimWorkers(config.Workers)

	s := &Simulation{
		jd:          config.StartJD,
		daysPerTick: config.DaysPerTick,
		store:       store,
		trails:      trails,
		pool:        NewWorkerPool(config.Workers, logger),
		config:      config,
		logger:      logger,
	}
	if ds := store.Get(); ds != nil {
		s.loadDataset(ds)
	}
	return s
}

// Clock returns the current simulated Julian Day.
func (s *Simulation) Clock() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jd
}

// Speed returns the simulated days advanced per tick.
func (s *Simulation) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daysPerTick
}

// SetSpeed sets days per tick, clamped to [-3650, 3650], and returns the
// effective value.
func (s *Simulation) SetSpeed(days float64) float64 {
	days = ClampSpeed(days)
	s.mu.Lock()
	s.daysPerTick = days
	s.mu.Unlock()
	s.logger.Info("simulation speed changed", "days_per_tick", days)
	return days
}

// Latest returns the most recent frame, or nil before the first step.
func (s *Simulation) Latest() *Frame {
	return s.latest.Load()
}

// Step propagates every body to jd, records the results into the trail
// manager and makes the resulting frame the latest.
func (s *Simulation) Step(ctx context.Context, jd float64) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(ctx, jd, false)
}

// Advance steps the clock forward by the configured days per tick.
func (s *Simulation) Advance(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(ctx, s.jd+s.daysPerTick, false)
}

// Reset clears every trail, moves the clock to jd and propagates there.
// If ctx is cancelled before propagation finishes nothing changes.
func (s *Simulation) Reset(ctx context.Context, jd float64) (*Frame, error) {
	if !finite(jd) {
		return nil, fmt.Errorf("sim: invalid julian day %v", jd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.jd
	frame, err := s.stepLocked(ctx, jd, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info("simulation reset", "from_jd", from, "to_jd", jd)
	return frame, nil
}

// PositionsAt propagates a fresh copy of the current catalog to jd without
// touching the clock or the trails.
func (s *Simulation) PositionsAt(ctx context.Context, jd float64) (*Frame, error) {
	if !finite(jd) {
		return nil, fmt.Errorf("sim: invalid julian day %v", jd)
	}
	ds := s.store.Get()
	if ds == nil {
		return nil, ErrNoCatalog
	}

	bodies := ds.NewBodies()
	sols, done := s.pool.PropagateBatch(ctx, bodies, jd)
	if done < len(bodies) {
		return nil, fmt.Errorf("propagating to %v: %w", jd, ctx.Err())
	}
	return newFrame(jd, bodies, sols), nil
}

// stepLocked does the work of Step. With reset set the trails are emptied
// before the new samples are recorded. State is only touched once every body
// has been propagated. Caller holds s.mu.
func (s *Simulation) stepLocked(ctx context.Context, jd float64, reset bool) (*Frame, error) {
	if !finite(jd) {
		return nil, fmt.Errorf("sim: invalid julian day %v", jd)
	}
	if s.dataset == nil {
		return nil, ErrNoCatalog
	}

	start := time.Now()
	sols, done := s.pool.PropagateBatch(ctx, s.bodies, jd)
	if done < len(s.bodies) {
		return nil, fmt.Errorf("step to %v interrupted: %w", jd, ctx.Err())
	}

	if reset {
		s.trails.ClearAll()
	}
	for i, b := range s.bodies {
		if !sols[i].Degenerate {
			s.trails.UpdatePosition(b, jd)
		}
	}

	s.jd = jd
	frame := newFrame(jd, s.bodies, sols)
	s.latest.Store(frame)

	duration := time.Since(start)
	metrics.RecordTick(duration, jd)
	s.logger.Debug("simulation step",
		"julian_day", jd,
		"bodies", len(s.bodies),
		"duration_ms", duration.Milliseconds(),
	)
	return frame, nil
}

// loadDataset replaces the body set. Caller holds s.mu or owns s exclusively.
func (s *Simulation) loadDataset(ds *catalog.Dataset) {
	s.dataset = ds
	s.bodies = ds.NewBodies()
}

func newFrame(jd float64, bodies []*orbit.Body, sols []orbit.Solution) *Frame {
	f := &Frame{
		JulianDay: jd,
		Time:      transform.Time(jd),
		Bodies:    make([]BodyState, len(bodies)),
	}
	for i, b := range bodies {
		f.Bodies[i] = stateOf(b, sols[i])
	}
	return f
}

func julianNow() float64 {
	return transform.JulianDay(time.Now())
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
