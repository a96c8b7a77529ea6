// Package redis relays poll events between server instances over Redis
// Pub/Sub, so a subscriber connected to any instance sees mutations made on
// every instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
	"github.com/vncsmyrnk/pollstream/internal/metrics"
)

const DefaultChannel = "pollstream:events"

// NewClient creates a go-redis client from a URL (e.g. "redis://localhost:6379").
func NewClient(redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// message is the wire form of a relayed event. Origin identifies the
// publishing instance so it can ignore its own echo.
type message struct {
	Origin uuid.UUID    `json:"origin"`
	Event  domain.Event `json:"event"`
}

// Relay delivers every event to the local publisher and publishes it to a
// Redis channel. While Run is active, events other instances published on
// that channel are handed to the local publisher too.
type Relay struct {
	rdb     *goredis.Client
	channel string
	local   ports.EventPublisher
	origin  uuid.UUID

	ready     chan struct{}
	readyOnce sync.Once
}

var _ ports.EventPublisher = (*Relay)(nil)

func NewRelay(rdb *goredis.Client, channel string, local ports.EventPublisher) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		origin:  uuid.New(),
		ready:   make(chan struct{}),
	}
}

// Publish delivers the event to this instance's subscribers, then sends it to
// the other instances. Local delivery never depends on Redis or on Run.
func (r *Relay) Publish(ctx context.Context, event domain.Event) error {
	localErr := r.local.Publish(ctx, event)

	data, err := json.Marshal(message{Origin: r.origin, Event: event})
	if err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("out", "error").Inc()
		return errors.Join(localErr, fmt.Errorf("failed to marshal event: %w", err))
	}

	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("out", "error").Inc()
		return errors.Join(localErr, fmt.Errorf("failed to publish event to redis: %w", err))
	}

	metrics.RelayMessagesTotal.WithLabelValues("out", "ok").Inc()
	return localErr
}

// Run subscribes to the channel and forwards messages until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	slog.Info("Relay subscribed", "channel", r.channel, "origin", r.origin.String())

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("in", "invalid").Inc()
		slog.Warn("Failed to unmarshal relayed event", "error", err)
		return
	}
	if msg.Origin == r.origin {
		metrics.RelayMessagesTotal.WithLabelValues("in", "own").Inc()
		return
	}

	event := msg.Event
	if !event.Kind.Valid() || event.Kind == domain.EventConnected || event.Poll == nil {
		metrics.RelayMessagesTotal.WithLabelValues("in", "invalid").Inc()
		slog.Warn("Dropping relayed event", "kind", event.Kind)
		return
	}

	if err := r.local.Publish(ctx, event); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("in", "error").Inc()
		slog.Warn("Failed to deliver relayed event", "kind", event.Kind, "error", err)
		return
	}
	metrics.RelayMessagesTotal.WithLabelValues("in", "ok").Inc()
}
