package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultHeartbeatInterval = 25 * time.Second
	writeTimeout             = 5 * time.Second
)

// Handler is the streaming endpoint. One request is one subscriber for as
// long as the request lives.
type Handler struct {
	hub       *Hub
	clock     clockwork.Clock
	heartbeat time.Duration
}

func NewHandler(hub *Hub, clock clockwork.Clock, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Handler{
		hub:       hub,
		clock:     clock,
		heartbeat: heartbeat,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	if err := rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		}
		return
	}

	sub := NewSubscriber(&responseConn{w: w, rc: rc})
	h.hub.Register(sub)
	defer h.hub.Deregister(sub)

	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-ticker.Chan():
			if !h.hub.KeepAlive(sub) {
				return
			}
		}
	}
}

// responseConn writes frames to an http.ResponseWriter. The writer must not
// be used after ServeHTTP returns, which Subscriber.close guarantees.
type responseConn struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (c *responseConn) Write(frame []byte) error {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Debug("Failed to set stream write deadline", "error", err)
	}
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.rc.Flush()
}

// Close is a no-op: the response ends when ServeHTTP returns.
func (c *responseConn) Close() error {
	return nil
}
