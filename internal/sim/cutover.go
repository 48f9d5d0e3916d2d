package sim

import (
	"context"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
)

// catalogChanged checks if a new dataset has been installed since the body
// set was last built.
func (s *Simulation) catalogChanged() bool {
	ds := s.store.Get()
	if ds == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ds != s.dataset
}

// performCutover rebuilds the body set from the current dataset. Trails of
// the old catalog are dropped since the new elements may place the same
// body on a different orbit. The clock is kept and re-propagated.
func (s *Simulation) performCutover(ctx context.Context) {
	ds := s.store.Get()
	if ds == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := "none"
	if s.dataset != nil {
		old = s.dataset.Source
	}
	s.logger.Info("catalog cutover starting",
		"old_source", old,
		"new_source", ds.Source,
		"new_loaded_at", ds.LoadedAt.UTC().Format(time.RFC3339),
	)

	start := time.Now()
	s.loadDataset(ds)
	s.trails.ClearAll()
	metrics.IncCatalogCutovers()

	if _, err := s.stepLocked(ctx, s.jd, false); err != nil {
		s.logger.Warn("cutover step failed", "error", err)
		return
	}

	s.logger.Info("catalog cutover complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"bodies", len(s.bodies),
	)
}
