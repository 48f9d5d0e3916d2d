// Package api serves the simulation over HTTP: body positions, trails,
// simulation control and close-approach queries as JSON, plus the frame
// streams from package stream.
package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/auth"
	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/health"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/stream"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
)

// DefaultMaxApproachSamples bounds the coarse scan of one approach query.
const DefaultMaxApproachSamples = 500000

// Deps are the components the API serves.
type Deps struct {
	Sim    *sim.Simulation
	Trails *trail.Manager
	Store  *catalog.Store
	Loader *catalog.Loader // optional; enables POST /api/v1/catalog/fetch
	Stream *stream.Handler // optional; enables the stream routes

	MaxApproachSamples int // default: DefaultMaxApproachSamples
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, deps Deps, logger *slog.Logger, authCfg auth.Config) *Server {
	if deps.MaxApproachSamples <= 0 {
		deps.MaxApproachSamples = DefaultMaxApproachSamples
	}
	h := &handlers{deps: deps, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(h.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/bodies", h.bodies)
	mux.HandleFunc("GET /api/v1/propagate", h.propagate)

	mux.HandleFunc("GET /api/v1/trails", h.allTrails)
	mux.HandleFunc("DELETE /api/v1/trails", h.clearAllTrails)
	mux.HandleFunc("GET /api/v1/trails/config", h.trailConfig)
	mux.HandleFunc("PUT /api/v1/trails/config", h.updateTrailConfig)
	mux.HandleFunc("GET /api/v1/trails/{name}", h.getTrail)
	mux.HandleFunc("DELETE /api/v1/trails/{name}", h.clearTrail)

	mux.HandleFunc("GET /api/v1/sim", h.simState)
	mux.HandleFunc("POST /api/v1/sim/reset", h.reset)
	mux.HandleFunc("PUT /api/v1/sim/speed", h.setSpeed)

	mux.HandleFunc("GET /api/v1/approaches", h.approaches)
	mux.HandleFunc("POST /api/v1/catalog/fetch", h.fetchCatalog)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", deps.Stream.HandleFrames)
		mux.HandleFunc("GET /api/v1/ws/frames", deps.Stream.HandleWebSocket)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
