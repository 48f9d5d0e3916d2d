// Package approach searches for close approaches between catalog bodies.
package approach

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
	"github.com/ChenXin-2009/solmap-sub004/internal/transform"
	"github.com/soypat/geometry/md3"
)

// Event is one local minimum of the distance between two bodies.
type Event struct {
	JulianDay  float64   `json:"jd"`
	Time       time.Time `json:"time"`
	DistanceAU float64   `json:"distance_au"`
}

// BodyApproaches holds the approaches of one body to the target.
type BodyApproaches struct {
	Body   string  `json:"body"`
	Events []Event `json:"events"`
	Error  string  `json:"error,omitempty"`
}

// Request holds the parameters for an approach search.
type Request struct {
	Target      catalog.Entry
	Others      []catalog.Entry
	StartJD     float64
	HorizonDays float64
	StepDays    float64 // coarse scan step (default: 1)
	MaxEvents   int     // per body (default: 10)
}

const (
	defaultStepDays  = 1.0
	defaultMaxEvents = 10

	// refineTolerance is the golden-section bracket width in days (~0.1 s).
	refineTolerance = 1e-6
	refineMaxIter   = 100
)

// ErrSampleBudget is returned by Validate when a request would need more
// coarse samples than allowed.
var ErrSampleBudget = errors.New("approach: request exceeds sample budget")

func (r Request) normalized() Request {
	if r.StepDays == 0 {
		r.StepDays = defaultStepDays
	}
	if r.MaxEvents <= 0 {
		r.MaxEvents = defaultMaxEvents
	}
	return r
}

// Samples returns the number of distance evaluations the coarse scan needs.
// It is computed in float64 so huge horizons cannot wrap around.
func (r Request) Samples() float64 {
	r = r.normalized()
	if !(r.StepDays > 0) || !(r.HorizonDays > 0) {
		return 0
	}
	return (math.Floor(r.HorizonDays/r.StepDays) + 1) * float64(len(r.Others))
}

// Validate checks the request and its cost against maxSamples.
func (r Request) Validate(maxSamples int) error {
	r = r.normalized()
	for _, v := range []float64{r.StartJD, r.HorizonDays, r.StepDays} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("approach: non-finite parameter")
		}
	}
	if r.HorizonDays <= 0 {
		return fmt.Errorf("approach: horizon must be positive, got %g days", r.HorizonDays)
	}
	if r.StepDays <= 0 {
		return fmt.Errorf("approach: step must be positive, got %g days", r.StepDays)
	}
	n := r.Samples()
	if maxSamples > 0 && n > float64(maxSamples) {
		return fmt.Errorf("%w: %.0f samples, limit %d", ErrSampleBudget, n, maxSamples)
	}
	if math.IsInf(n, 0) || n > math.MaxInt32 {
		return fmt.Errorf("%w: %.3g samples", ErrSampleBudget, n)
	}
	return nil
}

// Predict finds close approaches of every other body to the target.
// Each body is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []BodyApproaches {
	req = req.normalized()
	start := time.Now()
	defer func() { metrics.ObserveApproachSearch(time.Since(start)) }()

	results := make([]BodyApproaches, len(req.Others))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, other := range req.Others {
		wg.Add(1)
		go func(idx int, e catalog.Entry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = BodyApproaches{Body: e.Name, Error: "cancelled"}
				return
			}

			events, err := predictBody(ctx, req, e)
			if err != nil {
				results[idx] = BodyApproaches{Body: e.Name, Events: events, Error: err.Error()}
				return
			}
			results[idx] = BodyApproaches{Body: e.Name, Events: events}
		}(i, other)
	}

	wg.Wait()
	return results
}

// predictBody scans the horizon for local distance minima and refines each.
func predictBody(ctx context.Context, req Request, other catalog.Entry) ([]Event, error) {
	if other.Name == req.Target.Name {
		return nil, fmt.Errorf("body is the target")
	}
	if !usable(req.Target) {
		return nil, fmt.Errorf("target %s has no usable elements", req.Target.Name)
	}
	if !usable(other) {
		return nil, fmt.Errorf("no usable elements")
	}

	dist := func(jd float64) float64 {
		return md3.Norm(md3.Sub(positionOf(req.Target, jd), positionOf(other, jd)))
	}

	steps := math.Floor(req.HorizonDays / req.StepDays)
	if !(steps >= 0 && steps <= math.MaxInt32) {
		return nil, fmt.Errorf("%w: %.3g steps", ErrSampleBudget, steps)
	}
	n := int(steps)

	events := []Event{}
	prev, cur := math.Inf(1), math.Inf(1)
	for i := 0; i <= n && len(events) < req.MaxEvents; i++ {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		next := dist(req.StartJD + float64(i)*req.StepDays)
		// A sample strictly below its predecessor and not above its
		// successor brackets a minimum; the horizon edges never qualify.
		if i >= 2 && prev > cur && cur <= next {
			mid := req.StartJD + float64(i-1)*req.StepDays
			jd, d := refine(dist, mid-req.StepDays, mid+req.StepDays)
			events = append(events, Event{
				JulianDay:  jd,
				Time:       transform.Time(jd),
				DistanceAU: d,
			})
		}
		prev, cur = cur, next
	}
	return events, nil
}

// refine runs a golden-section search for the minimum of f on [lo, hi].
func refine(f func(float64) float64, lo, hi float64) (float64, float64) {
	g := (math.Sqrt(5) - 1) / 2
	c := hi - g*(hi-lo)
	d := lo + g*(hi-lo)
	fc, fd := f(c), f(d)

	for i := 0; i < refineMaxIter && hi-lo > refineTolerance; i++ {
		if fc < fd {
			hi, d, fd = d, c, fc
			c = hi - g*(hi-lo)
			fc = f(c)
		} else {
			lo, c, fc = c, d, fd
			d = lo + g*(hi-lo)
			fd = f(d)
		}
	}

	jd := (lo + hi) / 2
	return jd, f(jd)
}

func usable(e catalog.Entry) bool {
	return e.IsSun || e.Elements.Validate() == nil
}

func positionOf(e catalog.Entry, jd float64) md3.Vec {
	if e.IsSun {
		return md3.Vec{}
	}
	return orbit.Propagate(e.Elements, jd)
}
