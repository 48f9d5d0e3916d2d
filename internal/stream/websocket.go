package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/httputil"
	"github.com/ChenXin-2009/solmap-sub004/internal/metrics"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512 // inbound; clients only send control frames
)

// upgrader accepts cross-origin renderers; access control is the auth
// middleware's job.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket serves the frame stream over a WebSocket.
// GET /api/v1/ws/frames?interval=250&trails=true&span=90
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts, err := h.parseOptions(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "websocket")
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A client that stops answering pings for two keep-alive periods is gone.
	pongWait := 2*h.config.KeepaliveInterval + wsWriteWait
	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The read loop processes control frames and notices disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket read error", "remote_ip", ip, "error", err)
				}
				return
			}
		}
	}()

	c := &wsClient{conn: conn, shaper: newShaper(h.config.BandwidthLimit)}
	h.pump(ctx, c, opts, ip)

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}

// wsClient writes stream messages as WebSocket text frames. Only the pump
// goroutine writes data frames.
type wsClient struct {
	conn   *websocket.Conn
	shaper *rate.Limiter
}

func (c *wsClient) send(ctx context.Context, data []byte) error {
	if err := throttle(ctx, c.shaper, len(data)); err != nil {
		return fmt.Errorf("bandwidth wait: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(len(data)))
	return nil
}

func (c *wsClient) keepalive() error {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
