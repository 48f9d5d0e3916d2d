package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/httputil"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"golang.org/x/time/rate"
)

const sseWriteWait = 30 * time.Second

var sseKeepalive = []byte(":\n\n")

// HandleFrames serves the frame stream as Server-Sent Events.
// GET /api/v1/stream/frames?interval=250&trails=true&span=90
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	opts, err := h.parseOptions(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "sse")
	if !ok {
		return
	}
	defer release()

	c, err := startSSE(w, h.logger, h.config.BandwidthLimit)
	if err != nil {
		metrics.IncStreamErrors("no_flusher")
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Jittered reconnect delay (3-7s) so clients of a restarted server
	// do not all return at once.
	if err := c.write(r.Context(), fmt.Appendf(nil, "retry: %d\n\n", 3000+rand.Intn(4000))); err != nil {
		return
	}

	h.pump(r.Context(), c, opts, ip)
}

// sseClient frames stream messages as SSE events on one response.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	shaper  *rate.Limiter
	logger  *slog.Logger
	buf     []byte
}

// startSSE writes the event-stream headers and lifts the server's write
// timeout; each write sets its own deadline instead.
func startSSE(w http.ResponseWriter, logger *slog.Logger, bandwidth int) (*sseClient, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("could not clear write deadline", "error", err)
	}

	return &sseClient{
		w:       w,
		flusher: flusher,
		rc:      rc,
		shaper:  newShaper(bandwidth),
		logger:  logger,
	}, nil
}

// send writes data as a single "data:" event.
func (c *sseClient) send(ctx context.Context, data []byte) error {
	c.buf = append(c.buf[:0], "data: "...)
	c.buf = append(c.buf, data...)
	c.buf = append(c.buf, "\n\n"...)
	if err := c.write(ctx, c.buf); err != nil {
		return err
	}
	metrics.IncStreamMessages()
	return nil
}

// keepalive writes an SSE comment, which clients ignore.
func (c *sseClient) keepalive() error {
	return c.write(context.Background(), sseKeepalive)
}

func (c *sseClient) write(ctx context.Context, p []byte) error {
	if err := throttle(ctx, c.shaper, len(p)); err != nil {
		return fmt.Errorf("bandwidth wait: %w", err)
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(sseWriteWait)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := c.w.Write(p)
	metrics.AddStreamBytes(int64(n))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	return nil
}
