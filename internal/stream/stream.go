// Package stream pushes simulation frames to renderers over Server-Sent
// Events (GET /api/v1/stream/frames) and WebSocket (GET /api/v1/ws/frames).
//
// Both transports carry the same JSON messages. The first message on every
// connection is metadata:
//
//	{"type":"metadata","catalog_source":"builtin","catalog_loaded_at":"...","catalog_age_seconds":12,"bodies":10}
//
// followed by one frame message per simulation step:
//
//	{"type":"frame","jd":2451545,"t":"2000-01-01T12:00:00Z","frame":"ecliptic_j2000","bodies":[{"name":"Earth","p":[x,y,z],"tr":[[x,y,z],...]}]}
//
// Positions are heliocentric ecliptic J2000 in AU. Trails ("tr", oldest
// first) are included unless the client passes trails=false. Keep-alives
// are SSE comments or WebSocket pings.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/httputil"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrentTotal int           // Max concurrent streams overall (default: 1000).
	BandwidthLimit     int           // Bytes per second per stream, 0 disables shaping (default: 1048576).
	KeepaliveInterval  time.Duration // Keep-alive interval (default: 30s).
	PollInterval       time.Duration // How often a stream checks for a new frame (default: 250ms).
	TrustProxy         bool          // Honor X-Forwarded-For when identifying clients.
}

// DefaultConfig returns the streaming defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrentTotal: 1000,
		BandwidthLimit:     1048576,
		KeepaliveInterval:  30 * time.Second,
		PollInterval:       250 * time.Millisecond,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = d.MaxConcurrentPerIP
	}
	if c.MaxConcurrentTotal <= 0 {
		c.MaxConcurrentTotal = d.MaxConcurrentTotal
	}
	if c.BandwidthLimit < 0 {
		c.BandwidthLimit = 0
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// FrameSource provides the most recent simulation frame.
type FrameSource interface {
	Latest() *sim.Frame
}

// TrailSource provides windowed trail snapshots.
type TrailSource interface {
	AllTrailsWithin(jd, span float64) []trail.PlanetTrail
}

// Handler manages streaming connections.
type Handler struct {
	frames  FrameSource
	trails  TrailSource
	store   *catalog.Store
	config  Config
	limiter *connLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(frames FrameSource, trails TrailSource, store *catalog.Store, config Config, logger *slog.Logger) *Handler {
	config = config.normalized()
	return &Handler{
		frames:  frames,
		trails:  trails,
		store:   store,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP, config.MaxConcurrentTotal),
		logger:  logger,
	}
}

// streamOptions are the per-connection query parameters.
type streamOptions struct {
	interval time.Duration
	trails   bool
	span     float64 // days, 0 selects each body's default window
}

// parseOptions reads ?interval=<ms>&trails=<bool>&span=<days>.
func (h *Handler) parseOptions(r *http.Request) (streamOptions, error) {
	opts := streamOptions{interval: h.config.PollInterval, trails: true}
	q := r.URL.Query()

	if v := q.Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 50 || n > 10000 {
			return opts, fmt.Errorf("invalid interval parameter, must be 50-10000 ms")
		}
		opts.interval = time.Duration(n) * time.Millisecond
	}
	if v := q.Get("trails"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid trails parameter, must be a boolean")
		}
		opts.trails = b
	}
	if v := q.Get("span"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0) || f > trail.MaxTimeSpan {
			return opts, fmt.Errorf("invalid span parameter, must be in (0, %g] days", float64(trail.MaxTimeSpan))
		}
		opts.span = f
	}
	return opts, nil
}

// sender is one connection's transport.
type sender interface {
	send(ctx context.Context, data []byte) error
	keepalive() error
}

// pump writes metadata, then a frame message whenever the simulation
// publishes a new frame, until ctx is done or a write fails.
func (h *Handler) pump(ctx context.Context, c sender, opts streamOptions, ip string) {
	if ds := h.store.Get(); ds != nil {
		data, err := json.Marshal(buildMetadataMessage(ds))
		if err == nil {
			err = c.send(ctx, data)
		}
		if err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	var last *sim.Frame
	sendLatest := func() error {
		f := h.frames.Latest()
		if f == nil || f == last {
			return nil
		}
		last = f

		var trails []trail.PlanetTrail
		if opts.trails {
			trails = h.trails.AllTrailsWithin(f.JulianDay, opts.span)
		}
		data, err := json.Marshal(buildFrameMessage(f, trails))
		if err != nil {
			metrics.IncStreamErrors("marshal_error")
			h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
			return nil
		}
		if err := c.send(ctx, data); err != nil {
			return err
		}
		keepaliveTicker.Reset(h.config.KeepaliveInterval)
		return nil
	}

	if err := sendLatest(); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := sendLatest(); err != nil {
				if ctx.Err() == nil {
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				}
				return
			}

		case <-keepaliveTicker.C:
			if err := c.keepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// admit applies the per-IP limit and connection accounting. The returned
// release func must be called when the stream ends.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (string, func(), bool) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if err := h.limiter.acquire(ip); err != nil {
		reason := "ip_limit"
		if errors.Is(err, errTotalLimit) {
			reason = "total_limit"
		}
		metrics.IncStreamErrors(reason)
		perIP, total := h.limiter.active(ip)
		h.logger.Warn("stream rejected",
			"remote_ip", ip,
			"transport", transport,
			"reason", reason,
			"ip_streams", perIP,
			"total_streams", total,
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, err.Error())
		return ip, nil, false
	}

	metrics.IncStreamConnections(transport, "connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"transport", transport,
		"user_agent", r.Header.Get("User-Agent"),
	)

	release := func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections(transport, "disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"transport", transport,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}
	return ip, release, true
}
