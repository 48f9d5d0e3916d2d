package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	index int
	body  *orbit.Body
}

// propagateResult is the output of a single body propagation.
type propagateResult struct {
	index int
	sol   orbit.Solution
}

// WorkerPool propagates bodies in parallel. Workers only compute solutions;
// bodies are written by the caller's goroutine once the whole batch is in.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch updates every body to jd. The returned solutions are
// indexed like bodies; done counts bodies that were solved before ctx was
// cancelled. Positions are stored only when every body was solved, so an
// interrupted batch leaves the bodies untouched.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, bodies []*orbit.Body, jd float64) (sols []orbit.Solution, done int) {
	if len(bodies) == 0 || ctx.Err() != nil {
		return nil, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				sol := job.body.Propagate(jd)
				select {
				case results <- propagateResult{index: job.index, sol: sol}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, b := range bodies {
			select {
			case jobs <- propagateJob{index: i, body: b}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	sols = make([]orbit.Solution, len(bodies))
	var ok, degenerate, notConverged int
	for result := range results {
		done++
		sols[result.index] = result.sol
		b := bodies[result.index]
		switch {
		case result.sol.Degenerate:
			degenerate++
			wp.logger.Warn("body has unusable orbital elements, placed at origin",
				"body", b.Name,
				"julian_day", jd,
			)
		case !result.sol.Converged:
			notConverged++
			wp.logger.Debug("kepler solver did not converge",
				"body", b.Name,
				"julian_day", jd,
				"iterations", result.sol.Iterations,
			)
		default:
			ok++
		}
	}

	metrics.AddBodiesPropagated("ok", ok)
	metrics.AddBodiesPropagated("degenerate", degenerate)
	metrics.AddBodiesPropagated("not_converged", notConverged)

	if done < len(bodies) {
		return sols, done
	}
	for i, b := range bodies {
		b.Apply(sols[i])
	}
	return sols, done
}
