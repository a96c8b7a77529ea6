package redis

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
)

var (
	testRedisURL   string
	redisContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redisContainer, err = redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()
	if err := redisContainer.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client, err := NewClient(testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func samplePoll(t *testing.T) *domain.Poll {
	t.Helper()
	poll, err := domain.NewPoll("Relayed?", []string{"yes", "no"}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return poll
}

func startRelay(t *testing.T, relay *Relay) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-relay.ready:
	case err := <-done:
		t.Fatalf("relay stopped before subscribing: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relay subscription")
	}
}

func encode(t *testing.T, origin uuid.UUID, event domain.Event) string {
	t.Helper()
	data, err := json.Marshal(message{Origin: origin, Event: event})
	require.NoError(t, err)
	return string(data)
}

func TestRelay_DeliversToEveryInstanceOnce(t *testing.T) {
	channel := "test:" + t.Name()
	localA := &recordingPublisher{}
	localB := &recordingPublisher{}
	relayA := NewRelay(setupTestClient(t), channel, localA)
	relayB := NewRelay(setupTestClient(t), channel, localB)
	startRelay(t, relayA)
	startRelay(t, relayB)

	poll := samplePoll(t)
	require.NoError(t, relayA.Publish(context.Background(), domain.Event{Kind: domain.EventPollCreated, Poll: poll}))

	require.Len(t, localA.Events(), 1)
	require.Eventually(t, func() bool { return len(localB.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, local := range []*recordingPublisher{localA, localB} {
		ev := local.Events()[0]
		assert.Equal(t, domain.EventPollCreated, ev.Kind)
		assert.Equal(t, poll.ID, ev.Poll.ID)
		assert.Equal(t, poll.Options, ev.Poll.Options)
	}

	assert.Never(t, func() bool { return len(localA.Events()) > 1 }, 200*time.Millisecond, 10*time.Millisecond,
		"the publishing instance must ignore its own echo")
}

func TestRelay_DeliversLocallyWithoutSubscription(t *testing.T) {
	local := &recordingPublisher{}
	relay := NewRelay(setupTestClient(t), "test:"+t.Name(), local)

	poll := samplePoll(t)
	require.NoError(t, relay.Publish(context.Background(), domain.Event{Kind: domain.EventPollCreated, Poll: poll}))

	require.Len(t, local.Events(), 1)
	assert.Equal(t, domain.EventPollCreated, local.Events()[0].Kind)
	assert.Equal(t, poll.ID, local.Events()[0].Poll.ID)
}

func TestRelay_DropsInvalidMessages(t *testing.T) {
	channel := "test:" + t.Name()
	client := setupTestClient(t)
	local := &recordingPublisher{}
	relay := NewRelay(client, channel, local)
	startRelay(t, relay)

	ctx := context.Background()
	other := uuid.New()
	require.NoError(t, client.Publish(ctx, channel, "not json").Err())
	require.NoError(t, client.Publish(ctx, channel, encode(t, other, domain.Event{Kind: domain.EventConnected})).Err())
	require.NoError(t, client.Publish(ctx, channel, `{"origin":"`+other.String()+`","event":{"kind":"somethingElse","poll":{}}}`).Err())
	require.NoError(t, client.Publish(ctx, channel, encode(t, other, domain.Event{Kind: domain.EventPollLiked, Poll: samplePoll(t)})).Err())

	require.Eventually(t, func() bool { return len(local.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.EventPollLiked, local.Events()[0].Kind)
}

func TestRelay_DeliverSkipsOwnOrigin(t *testing.T) {
	client, err := NewClient("redis://127.0.0.1:1")
	require.NoError(t, err)
	defer client.Close()

	local := &recordingPublisher{}
	relay := NewRelay(client, "", local)
	ctx := context.Background()
	event := domain.Event{Kind: domain.EventPollUpdated, Poll: samplePoll(t)}

	relay.deliver(ctx, encode(t, relay.origin, event))
	assert.Empty(t, local.Events())

	relay.deliver(ctx, encode(t, uuid.New(), event))
	require.Len(t, local.Events(), 1)
	assert.Equal(t, domain.EventPollUpdated, local.Events()[0].Kind)
}

func TestRelay_PublishDeliversLocallyWhenRedisIsDown(t *testing.T) {
	client, err := NewClient("redis://127.0.0.1:1")
	require.NoError(t, err)
	defer client.Close()

	local := &recordingPublisher{}
	relay := NewRelay(client, "", local)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = relay.Publish(ctx, domain.Event{Kind: domain.EventPollUpdated, Poll: samplePoll(t)})
	assert.Error(t, err)
	require.Len(t, local.Events(), 1)
	assert.Equal(t, domain.EventPollUpdated, local.Events()[0].Kind)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("://nope")
	assert.Error(t, err)
}
