package sim

import (
	"context"
	"time"
)

// Start runs the simulation loop. It waits for a catalog, propagates the
// start instant, then on every tick either cuts over to a newly loaded
// catalog or advances the clock.
//
// Blocks until ctx is cancelled.
func (s *Simulation) Start(ctx context.Context) {
	if !s.waitForCatalog(ctx) {
		return
	}

	s.warmup(ctx)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation stopped", "julian_day", s.Clock())
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// waitForCatalog blocks until a dataset is available in the store,
// checking every second. Returns false if ctx is cancelled.
func (s *Simulation) waitForCatalog(ctx context.Context) bool {
	if s.store.Get() != nil {
		return true
	}

	s.logger.Info("simulation waiting for catalog...")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.store.Get() != nil {
				s.logger.Info("catalog available, starting simulation")
				return true
			}
		}
	}
}

// warmup builds the body set if needed and propagates the current clock.
func (s *Simulation) warmup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset == nil {
		s.loadDataset(s.store.Get())
	}
	if _, err := s.stepLocked(ctx, s.jd, false); err != nil {
		s.logger.Warn("warmup step failed", "error", err)
		return
	}
	s.logger.Info("simulation warmup complete",
		"julian_day", s.jd,
		"bodies", len(s.bodies),
	)
}

// tick runs one iteration of the loop.
func (s *Simulation) tick(ctx context.Context) {
	if s.catalogChanged() {
		s.performCutover(ctx)
		return
	}

	if _, err := s.Advance(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("simulation tick failed", "error", err)
	}
}
