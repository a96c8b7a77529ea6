package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
	"github.com/vncsmyrnk/pollstream/internal/logging"
	"github.com/vncsmyrnk/pollstream/internal/metrics"
)

// Hub is the process-wide registry of open subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	closed      bool

	// broadcastMu serialises broadcasts so every subscriber sees events in
	// the same order.
	broadcastMu sync.Mutex
}

var _ ports.EventPublisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

// Register sends the connected frame and adds the subscriber to the active
// set. The frame goes out before the subscriber becomes visible to Broadcast,
// so it is always the first thing a client reads. If that write fails, or the
// hub is already closed, the subscriber is closed and never registered.
func (h *Hub) Register(sub *Subscriber) {
	if err := sub.write(connectedFrame); err != nil {
		logging.WithSubscriber(sub.ID().String()).Debug("Subscriber failed before registration", "error", err)
		sub.close()
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return
	}
	h.subscribers[sub.ID()] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.HubConnectedSubscribers.Set(float64(count))
	logging.WithSubscriber(sub.ID().String()).Debug("Subscriber registered", "total_subscribers", count)
}

// Deregister removes the subscriber and closes it. Calling it again, or on a
// subscriber that was never registered, only closes the subscriber.
func (h *Hub) Deregister(sub *Subscriber) {
	h.mu.Lock()
	existing, ok := h.subscribers[sub.ID()]
	if ok && existing == sub {
		delete(h.subscribers, sub.ID())
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	sub.close()

	if ok {
		metrics.HubConnectedSubscribers.Set(float64(count))
		slog.Debug("Subscriber deregistered", "subscriber_id", sub.ID().String(), "remaining_subscribers", count)
	}
}

// Broadcast writes one event to every subscriber registered at the time of the
// call. Failed writes deregister the subscriber and are not reported.
func (h *Hub) Broadcast(kind domain.EventKind, payload any) {
	frame, err := EncodeEvent(kind, payload)
	if err != nil {
		slog.Error("Failed to encode broadcast event", "kind", kind, "error", err)
		return
	}

	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	start := time.Now()
	subs := h.snapshot()
	for _, sub := range subs {
		if err := sub.write(frame); err != nil {
			h.dropFailed(sub, err)
		}
	}

	metrics.HubBroadcastsTotal.WithLabelValues(string(kind)).Inc()
	metrics.HubBroadcastDuration.Observe(time.Since(start).Seconds())
}

// KeepAlive writes a comment frame. It reports false when the subscriber is
// gone, in which case it has already been deregistered.
func (h *Hub) KeepAlive(sub *Subscriber) bool {
	if err := sub.write(keepAliveFrame); err != nil {
		h.dropFailed(sub, err)
		return false
	}
	metrics.HubKeepAlivesTotal.Inc()
	return true
}

// Publish adapts the hub to ports.EventPublisher.
func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	h.Broadcast(event.Kind, event.Poll)
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close deregisters every subscriber. Subscribers registered afterwards are
// closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs = append(subs, sub)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	slog.Info("Hub shutting down", "subscribers", len(subs))
	for _, sub := range subs {
		sub.close()
	}
	metrics.HubConnectedSubscribers.Set(0)
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

func (h *Hub) dropFailed(sub *Subscriber, err error) {
	if !errors.Is(err, errSubscriberClosed) {
		metrics.HubWriteFailuresTotal.Inc()
		logging.WithSubscriber(sub.ID().String()).Debug("Dropping subscriber after failed write", "error", err)
	}
	h.Deregister(sub)
}
