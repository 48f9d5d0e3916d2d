package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/auth"
	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/orbit"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/stream"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type testEnv struct {
	handler http.Handler
	sim     *sim.Simulation
	trails  *trail.Manager
}

func newTestEnv(t *testing.T, authCfg auth.Config, step bool) *testEnv {
	t.Helper()
	logger := testLogger()

	store := catalog.NewStore()
	store.Set(&catalog.Dataset{Source: "builtin", LoadedAt: time.Now(), Bodies: catalog.Default()})
	trails := trail.NewManager(trail.DefaultConfig(), logger)
	s := sim.New(store, trails, sim.Config{Workers: 2, StartJD: orbit.J2000}, logger)
	if step {
		if _, err := s.Step(context.Background(), orbit.J2000); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	streams := stream.NewHandler(s, trails, store, stream.Config{PollInterval: 50 * time.Millisecond}, logger)
	srv := NewServer(":0", Deps{
		Sim:                s,
		Trails:             trails,
		Store:              store,
		Loader:             catalog.NewLoader(store, nil, nil, "", logger),
		Stream:             streams,
		MaxApproachSamples: 10000,
	}, logger, authCfg)

	return &testEnv{handler: srv.HTTPServer().Handler, sim: s, trails: trails}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, false)
	if w := env.do(t, "GET", "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before first step = %d, want 503", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/bodies", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("bodies before first step = %d, want 503", w.Code)
	}

	env.sim.Step(context.Background(), orbit.J2000)
	if w := env.do(t, "GET", "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz after step = %d, want 200", w.Code)
	}
}

func TestBodies(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)

	w := env.do(t, "GET", "/api/v1/bodies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp frameResponse
	decode(t, w, &resp)

	if resp.Frame != "ecliptic_j2000" || resp.JulianDay != orbit.J2000 {
		t.Errorf("frame = %s at %v", resp.Frame, resp.JulianDay)
	}
	if len(resp.Bodies) != len(catalog.Default()) {
		t.Fatalf("bodies = %d, want %d", len(resp.Bodies), len(catalog.Default()))
	}
	earth := resp.Bodies[3]
	if earth.Name != "Earth" || earth.PeriodDays < 365.25 || earth.PeriodDays > 365.27 {
		t.Errorf("earth = %+v", earth)
	}
	if earth.DistanceAU < 0.98 || earth.DistanceAU > 0.99 {
		t.Errorf("earth distance = %v, want ~0.983 near perihelion", earth.DistanceAU)
	}

	w = env.do(t, "GET", "/api/v1/bodies?frame=equatorial", "")
	var eq frameResponse
	decode(t, w, &eq)
	if eq.Frame != "equatorial_j2000" {
		t.Errorf("frame = %s, want equatorial_j2000", eq.Frame)
	}
	// Rotation keeps distances.
	if d := eq.Bodies[3].DistanceAU - earth.DistanceAU; d > 1e-12 || d < -1e-12 {
		t.Errorf("equatorial distance differs by %v", d)
	}

	if w := env.do(t, "GET", "/api/v1/bodies?frame=galactic", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown frame status = %d, want 400", w.Code)
	}
}

func TestPropagate(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantJD     float64
	}{
		{"julian day", "?jd=2452878.9", http.StatusOK, 2452878.9},
		{"rfc3339 time", "?time=2000-01-01T12:00:00Z", http.StatusOK, orbit.J2000},
		{"missing instant", "", http.StatusBadRequest, 0},
		{"bad jd", "?jd=soon", http.StatusBadRequest, 0},
		{"infinite jd", "?jd=Inf", http.StatusBadRequest, 0},
		{"bad time", "?time=yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/api/v1/propagate"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp frameResponse
			decode(t, w, &resp)
			if resp.JulianDay != tt.wantJD {
				t.Errorf("jd = %v, want %v", resp.JulianDay, tt.wantJD)
			}
		})
	}

	if env.sim.Clock() != orbit.J2000 {
		t.Error("propagate moved the simulation clock")
	}
}

func TestTrailRoutes(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)
	env.sim.Step(context.Background(), orbit.J2000+1)

	w := env.do(t, "GET", "/api/v1/trails/Mars", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var mars trail.PlanetTrail
	decode(t, w, &mars)
	if mars.Name != "Mars" || len(mars.Points) != 2 {
		t.Errorf("mars trail = %s with %d points, want 2", mars.Name, len(mars.Points))
	}

	// A short window keeps only the newest sample.
	w = env.do(t, "GET", "/api/v1/trails/Mars?jd=2451546&span=0.5", "")
	decode(t, w, &mars)
	if len(mars.Points) != 1 {
		t.Errorf("windowed points = %d, want 1", len(mars.Points))
	}

	if w := env.do(t, "GET", "/api/v1/trails/Vulcan", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown trail status = %d, want 404", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/trails/Sun", ""); w.Code != http.StatusNotFound {
		t.Errorf("Sun trail status = %d, want 404", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/trails?span=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative span status = %d, want 400", w.Code)
	}

	if w := env.do(t, "DELETE", "/api/v1/trails/Mars", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, "DELETE", "/api/v1/trails/Mars", ""); w.Code != http.StatusNoContent {
		t.Errorf("repeat delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/trails/Mars", ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted trail status = %d, want 404", w.Code)
	}

	var all struct {
		Trails []trail.PlanetTrail `json:"trails"`
	}
	decode(t, env.do(t, "GET", "/api/v1/trails", ""), &all)
	if len(all.Trails) != len(catalog.Default())-2 {
		t.Errorf("trails = %d, want %d", len(all.Trails), len(catalog.Default())-2)
	}

	env.do(t, "DELETE", "/api/v1/trails", "")
	decode(t, env.do(t, "GET", "/api/v1/trails", ""), &all)
	if len(all.Trails) != 0 {
		t.Errorf("trails after clear = %d, want 0", len(all.Trails))
	}
}

func TestTrailConfig(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)

	var cfg trail.Config
	decode(t, env.do(t, "GET", "/api/v1/trails/config", ""), &cfg)
	if cfg != trail.DefaultConfig() {
		t.Errorf("config = %+v, want defaults", cfg)
	}

	w := env.do(t, "PUT", "/api/v1/trails/config", `{"time_span_days": -5, "max_points": 99999999}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	decode(t, w, &cfg)
	if cfg.TimeSpan != trail.MinTimeSpan || cfg.MaxPoints != trail.MaxMaxPoints {
		t.Errorf("clamped config = %+v", cfg)
	}
	if cfg.MinDistance != trail.DefaultMinDistance {
		t.Errorf("untouched min distance changed to %v", cfg.MinDistance)
	}

	for _, body := range []string{`{"time_span_days": "long"}`, `{"colour": "red"}`, `{`} {
		if w := env.do(t, "PUT", "/api/v1/trails/config", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestSimControl(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)

	w := env.do(t, "PUT", "/api/v1/sim/speed", `{"days_per_tick": 99999}`)
	var speed map[string]float64
	decode(t, w, &speed)
	if speed["days_per_tick"] != sim.MaxDaysPerTick {
		t.Errorf("speed = %v, want %v", speed["days_per_tick"], sim.MaxDaysPerTick)
	}
	if w := env.do(t, "PUT", "/api/v1/sim/speed", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing speed status = %d, want 400", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/sim/reset", `{"time": "2003-08-27T00:00:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", w.Code)
	}
	if got := env.sim.Clock(); got != 2452878.5 {
		t.Errorf("clock after reset = %v, want 2452878.5", got)
	}
	if mars, _ := env.trails.Trail("Mars", 2452878.5); len(mars.Points) != 1 {
		t.Errorf("trail after reset has %d points, want 1", len(mars.Points))
	}

	var state simStateResponse
	decode(t, env.do(t, "GET", "/api/v1/sim", ""), &state)
	if state.JulianDay != 2452878.5 || state.CatalogSource != "builtin" || state.Bodies != len(catalog.Default()) {
		t.Errorf("sim state = %+v", state)
	}
}

// TestApproachesSampleBudget verifies that searches exceeding the sample
// budget are rejected with 400 instead of consuming unbounded CPU.
func TestApproachesSampleBudget(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"within budget", "?target=Earth&bodies=Mars&start=2452000&horizon=1000&step=5", http.StatusOK},
		{"defaults over all bodies", "?target=Earth&step=5", http.StatusOK},
		{"over budget", "?target=Earth&bodies=Mars&horizon=100000&step=1", http.StatusBadRequest},
		{"over budget across bodies", "?target=Earth&horizon=3650&step=1", http.StatusBadRequest},
		{"over budget with 2^62 day horizon", "?target=Earth&horizon=4611686018427387904&step=1", http.StatusBadRequest},
		{"over budget with 1e19 day horizon", "?target=Earth&bodies=Mars,Venus,Jupiter,Saturn&horizon=1e19&step=1", http.StatusBadRequest},
		{"over budget with overflowing ratio", "?target=Earth&bodies=Mars&horizon=1e300&step=1e-300", http.StatusBadRequest},
		{"unknown target", "?target=Vulcan", http.StatusBadRequest},
		{"unknown body", "?target=Earth&bodies=Vulcan", http.StatusBadRequest},
		{"bad step", "?target=Earth&step=fast", http.StatusBadRequest},
		{"bad max", "?target=Earth&max=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/api/v1/approaches"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp map[string]any
			decode(t, w, &resp)
			if tt.wantStatus == http.StatusBadRequest && resp["error"] == nil {
				t.Error("expected error field in response")
			}
			if strings.HasPrefix(tt.name, "over budget") && resp["max_samples"] == nil {
				t.Error("expected max_samples field in response")
			}
		})
	}
}

func TestCatalogFetchNotConfigured(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)
	if w := env.do(t, "POST", "/api/v1/catalog/fetch", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAuthProtectsMutations(t *testing.T) {
	env := newTestEnv(t, auth.Config{Enabled: true, Token: "s3cret"}, true)

	if w := env.do(t, "GET", "/api/v1/trails/Mars", ""); w.Code != http.StatusOK {
		t.Errorf("public read status = %d, want 200", w.Code)
	}
	if w := env.do(t, "DELETE", "/api/v1/trails", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated delete status = %d, want 401", w.Code)
	}
	if env.trails.Len() == 0 {
		t.Error("unauthenticated delete cleared trails")
	}
}

// TestWebSocketThroughMiddleware verifies the middleware chain preserves
// http.Hijacker so upgrades work on the full server.
func TestWebSocketThroughMiddleware(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws/frames?trails=false"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err != nil || !strings.Contains(string(data), `"metadata"`) {
		t.Errorf("first message = %s, err = %v; want metadata", data, err)
	}
}

func TestSSEThroughMiddleware(t *testing.T) {
	env := newTestEnv(t, auth.Config{}, true)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL+"/api/v1/stream/frames", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"type":"frame"`) {
		t.Errorf("no frame message in stream: %q", body)
	}
}
