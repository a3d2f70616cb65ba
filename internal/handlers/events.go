package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// EventHandler streams hub events to console clients.
type EventHandler struct {
	hub     *services.EventHub
	monitor *services.ConnectionMonitor
	logger  *zap.Logger
}

// NewEventHandler creates a new EventHandler instance.
func NewEventHandler(hub *services.EventHub, monitor *services.ConnectionMonitor, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{hub: hub, monitor: monitor, logger: logger.Named("events")}
}

// current describes the connection state at subscribe time so a new client
// does not wait for the next transition.
func (h *EventHandler) current() []services.Event {
	if h.monitor == nil {
		return nil
	}
	connected, secondary := h.monitor.Connected(), h.monitor.SecondaryConnected()
	now := time.Now()
	return []services.Event{
		{Type: services.EventConnection, Connected: &connected, Time: now},
		{Type: services.EventKeyboardConnection, Connected: &secondary, Time: now},
	}
}

// WebSocket pushes events as JSON text frames.
// GET /api/events
func (h *EventHandler) WebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}
	defer func() { _ = ws.Close() }()

	id, ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)
	h.logger.Debug("subscriber connected", zap.String("subscriber", id))

	// Clients only listen; reading is how close frames are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, e := range h.current() {
		if err := writeEvent(ws, e); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(ws, e); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(ws *websocket.Conn, e services.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(e)
}

// Stream pushes events as server-sent events for clients without websockets.
// GET /api/events/stream
func (h *EventHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	id, ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	for _, e := range h.current() {
		c.SSEvent(e.Type, e)
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(e.Type, e)
			return true
		}
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts non-browser clients (no Origin) and pages served from
// the same host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
