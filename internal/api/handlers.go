package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/approach"
	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/httputil"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/transform"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
	"github.com/soypat/geometry/md3"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) ready() error {
	if h.deps.Store.Get() == nil {
		return errors.New("no catalog loaded")
	}
	if h.deps.Sim.Latest() == nil {
		return errors.New("no simulation frame yet")
	}
	return nil
}

// bodyResponse is one body with derived coordinates.
type bodyResponse struct {
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	IsSun      bool    `json:"is_sun,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	LonDeg     float64 `json:"lon_deg"`
	LatDeg     float64 `json:"lat_deg"`
	DistanceAU float64 `json:"distance_au"`
	PeriodDays float64 `json:"period_days,omitempty"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

type frameResponse struct {
	JulianDay float64        `json:"jd"`
	Time      time.Time      `json:"time"`
	Frame     string         `json:"frame"`
	Bodies    []bodyResponse `json:"bodies"`
}

// buildFrameResponse converts a frame into the requested reference frame.
// Periods come from the current catalog.
func (h *handlers) buildFrameResponse(f *sim.Frame, equatorial bool) frameResponse {
	resp := frameResponse{
		JulianDay: f.JulianDay,
		Time:      f.Time,
		Frame:     "ecliptic_j2000",
		Bodies:    make([]bodyResponse, len(f.Bodies)),
	}
	if equatorial {
		resp.Frame = "equatorial_j2000"
	}
	ds := h.deps.Store.Get()

	for i, b := range f.Bodies {
		v := md3.Vec{X: b.X, Y: b.Y, Z: b.Z}
		if equatorial {
			v = transform.EclipticToEquatorial(v)
		}
		lon, lat, r := transform.Spherical(v)
		br := bodyResponse{
			Name:       b.Name,
			Color:      b.Color,
			IsSun:      b.IsSun,
			X:          v.X,
			Y:          v.Y,
			Z:          v.Z,
			LonDeg:     lon,
			LatDeg:     lat,
			DistanceAU: r,
			Degenerate: b.Degenerate,
		}
		if ds != nil {
			if e, ok := ds.Find(b.Name); ok {
				br.PeriodDays = e.Elements.PeriodDays()
			}
		}
		resp.Bodies[i] = br
	}
	return resp
}

// parseFrame reads ?frame=ecliptic|equatorial.
func parseFrame(r *http.Request) (bool, error) {
	switch v := r.URL.Query().Get("frame"); v {
	case "", "ecliptic":
		return false, nil
	case "equatorial":
		return true, nil
	default:
		return false, fmt.Errorf("invalid frame parameter %q, must be ecliptic or equatorial", v)
	}
}

// bodies returns the latest simulated positions.
// GET /api/v1/bodies?frame=equatorial
func (h *handlers) bodies(w http.ResponseWriter, r *http.Request) {
	equatorial, err := parseFrame(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := h.deps.Sim.Latest()
	if f == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no simulation frame yet")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.buildFrameResponse(f, equatorial))
}

// propagate computes positions at an arbitrary instant without touching
// the simulation.
// GET /api/v1/propagate?jd=2451545 or ?time=2000-01-01T12:00:00Z
func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	equatorial, err := parseFrame(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	jd, ok, err := parseInstant(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "jd or time parameter required")
		return
	}

	f, err := h.deps.Sim.PositionsAt(r.Context(), jd)
	if errors.Is(err, sim.ErrNoCatalog) {
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("propagation request failed", "julian_day", jd, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "propagation failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.buildFrameResponse(f, equatorial))
}

// parseInstant reads ?jd= or ?time= (RFC 3339). ok is false when neither
// is present.
func parseInstant(r *http.Request) (jd float64, ok bool, err error) {
	q := r.URL.Query()
	if v := q.Get("jd"); v != "" {
		jd, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(jd) || math.IsInf(jd, 0) {
			return 0, false, fmt.Errorf("invalid jd parameter %q", v)
		}
		return jd, true, nil
	}
	if v := q.Get("time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0, false, fmt.Errorf("invalid time parameter, must be RFC 3339")
		}
		return transform.JulianDay(t), true, nil
	}
	return 0, false, nil
}

// parseSpan reads ?span=<days>; 0 selects each body's default window.
func parseSpan(r *http.Request) (float64, error) {
	v := r.URL.Query().Get("span")
	if v == "" {
		return 0, nil
	}
	span, err := strconv.ParseFloat(v, 64)
	if err != nil || !(span > 0) || span > trail.MaxTimeSpan {
		return 0, fmt.Errorf("invalid span parameter, must be in (0, %g] days", float64(trail.MaxTimeSpan))
	}
	return span, nil
}

// trailQuery resolves the window end (?jd= or ?time=, default: the
// simulation clock) and span.
func (h *handlers) trailQuery(r *http.Request) (jd, span float64, err error) {
	jd, ok, err := parseInstant(r)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		jd = h.deps.Sim.Clock()
	}
	span, err = parseSpan(r)
	return jd, span, err
}

// allTrails returns every stored trail.
// GET /api/v1/trails?span=90
func (h *handlers) allTrails(w http.ResponseWriter, r *http.Request) {
	jd, span, err := h.trailQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"jd":     jd,
		"trails": h.deps.Trails.AllTrailsWithin(jd, span),
	})
}

// getTrail returns one body's trail.
// GET /api/v1/trails/{name}?span=90
func (h *handlers) getTrail(w http.ResponseWriter, r *http.Request) {
	jd, span, err := h.trailQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.PathValue("name")
	t, ok := h.deps.Trails.TrailWithin(name, jd, span)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("no trail for %q", name))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// DELETE /api/v1/trails
func (h *handlers) clearAllTrails(w http.ResponseWriter, r *http.Request) {
	h.deps.Trails.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/trails/{name}
func (h *handlers) clearTrail(w http.ResponseWriter, r *http.Request) {
	h.deps.Trails.ClearTrail(r.PathValue("name"))
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/trails/config
func (h *handlers) trailConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.Trails.Config())
}

// trailConfigUpdate carries the fields a PUT may change; absent fields
// are left alone.
type trailConfigUpdate struct {
	MaxPoints   *int     `json:"max_points"`
	MinDistance *float64 `json:"min_distance_au"`
	TimeSpan    *float64 `json:"time_span_days"`
}

// updateTrailConfig applies a partial update. Out-of-range values are
// clamped; the effective configuration is returned.
// PUT /api/v1/trails/config
func (h *handlers) updateTrailConfig(w http.ResponseWriter, r *http.Request) {
	var req trailConfigUpdate
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.MaxPoints != nil {
		h.deps.Trails.SetMaxPoints(*req.MaxPoints)
	}
	if req.MinDistance != nil {
		h.deps.Trails.SetMinDistance(*req.MinDistance)
	}
	if req.TimeSpan != nil {
		h.deps.Trails.SetTrailTimeSpan(*req.TimeSpan)
	}

	cfg := h.deps.Trails.Config()
	h.logger.Info("trail config updated",
		"max_points", cfg.MaxPoints,
		"min_distance_au", cfg.MinDistance,
		"time_span_days", cfg.TimeSpan,
	)
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

type simStateResponse struct {
	JulianDay       float64   `json:"jd"`
	Time            time.Time `json:"time"`
	DaysPerTick     float64   `json:"days_per_tick"`
	CatalogSource   string    `json:"catalog_source,omitempty"`
	CatalogLoadedAt time.Time `json:"catalog_loaded_at"`
	Bodies          int       `json:"bodies"`
	Trails          int       `json:"trails"`
}

// GET /api/v1/sim
func (h *handlers) simState(w http.ResponseWriter, r *http.Request) {
	jd := h.deps.Sim.Clock()
	resp := simStateResponse{
		JulianDay:   jd,
		Time:        transform.Time(jd),
		DaysPerTick: h.deps.Sim.Speed(),
		Trails:      h.deps.Trails.Len(),
	}
	if ds := h.deps.Store.Get(); ds != nil {
		resp.CatalogSource = ds.Source
		resp.CatalogLoadedAt = ds.LoadedAt.UTC()
		resp.Bodies = len(ds.Bodies)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	JulianDay *float64   `json:"jd"`
	Time      *time.Time `json:"time"`
}

// reset clears all trails and moves the clock. An empty body resets to now.
// POST /api/v1/sim/reset {"jd": 2451545} or {"time": "2000-01-01T12:00:00Z"}
func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jd := transform.JulianDay(time.Now())
	switch {
	case req.JulianDay != nil:
		jd = *req.JulianDay
	case req.Time != nil:
		jd = transform.JulianDay(*req.Time)
	}

	f, err := h.deps.Sim.Reset(r.Context(), jd)
	if errors.Is(err, sim.ErrNoCatalog) {
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.buildFrameResponse(f, false))
}

type speedRequest struct {
	DaysPerTick *float64 `json:"days_per_tick"`
}

// PUT /api/v1/sim/speed {"days_per_tick": 5}
func (h *handlers) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DaysPerTick == nil {
		httputil.WriteError(w, http.StatusBadRequest, "days_per_tick is required")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]float64{
		"days_per_tick": h.deps.Sim.SetSpeed(*req.DaysPerTick),
	})
}

// approaches searches for close approaches to a target body.
// GET /api/v1/approaches?target=Earth&bodies=Mars,Venus&start=2452000&horizon=1000&step=1&max=10
func (h *handlers) approaches(w http.ResponseWriter, r *http.Request) {
	ds := h.deps.Store.Get()
	if ds == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	q := r.URL.Query()

	target, ok := ds.Find(q.Get("target"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "target parameter must name a catalog body")
		return
	}

	req := approach.Request{
		Target:      target,
		StartJD:     h.deps.Sim.Clock(),
		HorizonDays: 365,
	}
	if names := q.Get("bodies"); names != "" {
		for _, name := range strings.Split(names, ",") {
			e, ok := ds.Find(strings.TrimSpace(name))
			if !ok {
				httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown body %q", name))
				return
			}
			req.Others = append(req.Others, e)
		}
	} else {
		for _, e := range ds.Bodies {
			if e.Name != target.Name {
				req.Others = append(req.Others, e)
			}
		}
	}

	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"start", &req.StartJD},
		{"horizon", &req.HorizonDays},
		{"step", &req.StepDays},
	} {
		if v := q.Get(p.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s parameter", p.key))
				return
			}
			*p.dst = f
		}
	}
	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid max parameter, must be 1-1000")
			return
		}
		req.MaxEvents = n
	}

	if err := req.Validate(h.deps.MaxApproachSamples); err != nil {
		resp := map[string]any{"error": err.Error()}
		if errors.Is(err, approach.ErrSampleBudget) {
			if n := req.Samples(); !math.IsInf(n, 0) {
				resp["samples"] = n
			}
			resp["max_samples"] = h.deps.MaxApproachSamples
		}
		httputil.WriteJSON(w, http.StatusBadRequest, resp)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"target":  target.Name,
		"start":   req.StartJD,
		"horizon": req.HorizonDays,
		"results": approach.Predict(r.Context(), req),
	})
}

// fetchCatalog refreshes the catalog from the configured remote source.
// The simulation cuts over on its next tick.
// POST /api/v1/catalog/fetch
func (h *handlers) fetchCatalog(w http.ResponseWriter, r *http.Request) {
	if h.deps.Loader == nil || !h.deps.Loader.CanFetch() {
		httputil.WriteError(w, http.StatusServiceUnavailable, "catalog fetch not configured")
		return
	}
	ds, err := h.deps.Loader.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("catalog fetch failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, catalogResponse(ds))
}

func catalogResponse(ds *catalog.Dataset) map[string]any {
	return map[string]any{
		"source":    ds.Source,
		"loaded_at": ds.LoadedAt.UTC(),
		"bodies":    ds.Bodies,
	}
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
