package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solmap_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	simTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solmap_sim_ticks_total",
		Help: "Total number of simulation ticks.",
	})

	simTickDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solmap_sim_tick_duration_seconds",
		Help:    "Time spent propagating all bodies and recording trails in one tick.",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	simJulianDay = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_sim_julian_day",
		Help: "Current simulation clock as a Julian Day.",
	})

	simWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_sim_workers",
		Help: "Number of propagation workers.",
	})

	bodiesPropagatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_bodies_propagated_total",
			Help: "Body propagations by outcome (ok, degenerate, not_converged).",
		},
		[]string{"outcome"},
	)

	trailPointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_trail_points_total",
			Help: "Trail samples offered, by outcome (accepted, rejected).",
		},
		[]string{"outcome"},
	)

	trailEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_trail_evictions_total",
			Help: "Trail points evicted, by reason (cap, window, rewind).",
		},
		[]string{"reason"},
	)

	trailsTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_trails_tracked",
		Help: "Number of bodies with a stored trail.",
	})

	trailTimeSpanDays = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_trail_time_span_days",
		Help: "Configured trail retention window in days.",
	})

	catalogBodies = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_catalog_bodies",
		Help: "Number of bodies in the active catalog.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_catalog_age_seconds",
		Help: "Seconds since the active catalog was loaded.",
	})

	catalogFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_catalog_fetch_total",
			Help: "Remote catalog fetches by result.",
		},
		[]string{"result"},
	)

	catalogCutoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solmap_catalog_cutovers_total",
		Help: "Number of times the simulation switched to a new catalog.",
	})

	approachDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solmap_approach_search_duration_seconds",
		Help:    "Duration of closest-approach searches.",
		Buckets: prometheus.DefBuckets,
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solmap_streams_active",
		Help: "Currently open frame streams.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_stream_connections_total",
			Help: "Stream connection events.",
		},
		[]string{"transport", "event"},
	)

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solmap_stream_messages_total",
		Help: "Messages sent on frame streams.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solmap_stream_bytes_total",
		Help: "Bytes sent on frame streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solmap_stream_errors_total",
			Help: "Stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		simTicksTotal,
		simTickDurationSeconds,
		simJulianDay,
		simWorkers,
		bodiesPropagatedTotal,
		trailPointsTotal,
		trailEvictionsTotal,
		trailsTracked,
		trailTimeSpanDays,
		catalogBodies,
		catalogAgeSeconds,
		catalogFetchTotal,
		catalogCutoversTotal,
		approachDurationSeconds,
		streamsActive,
		streamConnectionsTotal,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/bodies":        true,
	"/api/v1/propagate":     true,
	"/api/v1/trails":        true,
	"/api/v1/trails/config": true,
	"/api/v1/sim/reset":     true,
	"/api/v1/sim/speed":     true,
	"/api/v1/approaches":    true,
	"/api/v1/catalog":       true,
	"/api/v1/catalog/fetch": true,
	"/api/v1/stream/frames": true,
	"/api/v1/ws/frames":     true,
}

// normalizeRoute maps a request path to a bounded label set so that body
// names in the URL do not create one time series each.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if name, ok := strings.CutPrefix(path, "/api/v1/trails/"); ok && name != "" && !strings.Contains(name, "/") {
		return "/api/v1/trails/{name}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers behind the middleware flush.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

// RecordTick records one simulation tick.
func RecordTick(duration time.Duration, jd float64) {
	simTicksTotal.Inc()
	simTickDurationSeconds.Observe(duration.Seconds())
	simJulianDay.Set(jd)
}

// SetSimWorkers publishes the propagation pool size.
func SetSimWorkers(n int) {
	simWorkers.Set(float64(n))
}

// AddBodiesPropagated counts propagations by outcome.
func AddBodiesPropagated(outcome string, n int) {
	if n > 0 {
		bodiesPropagatedTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// AddTrailPoints counts offered trail samples by outcome.
func AddTrailPoints(outcome string, n int) {
	if n > 0 {
		trailPointsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// AddTrailEvictions counts evicted trail points by reason.
func AddTrailEvictions(reason string, n int) {
	if n > 0 {
		trailEvictionsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// SetTrailsTracked publishes the number of stored trails.
func SetTrailsTracked(n int) {
	trailsTracked.Set(float64(n))
}

// SetTrailTimeSpan publishes the trail retention window.
func SetTrailTimeSpan(days float64) {
	trailTimeSpanDays.Set(days)
}

// SetCatalogBodies publishes the active catalog size.
func SetCatalogBodies(n int) {
	catalogBodies.Set(float64(n))
}

// SetCatalogAge publishes the active catalog age.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// IncCatalogFetch counts a remote catalog fetch by result.
func IncCatalogFetch(result string) {
	catalogFetchTotal.WithLabelValues(result).Inc()
}

// IncCatalogCutovers counts a catalog switch.
func IncCatalogCutovers() {
	catalogCutoversTotal.Inc()
}

// ObserveApproachSearch records a closest-approach search duration.
func ObserveApproachSearch(d time.Duration) {
	approachDurationSeconds.Observe(d.Seconds())
}

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() {
	streamsActive.Inc()
}

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() {
	streamsActive.Dec()
}

// IncStreamConnections counts a connect or disconnect on a transport.
func IncStreamConnections(transport, event string) {
	streamConnectionsTotal.WithLabelValues(transport, event).Inc()
}

// IncStreamMessages counts one stream message.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// AddStreamBytes counts bytes written to streams.
func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}
