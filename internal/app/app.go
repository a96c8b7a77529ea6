// Package app wires configuration, stores, the broadcast hub and the HTTP
// surface into one runnable unit.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	handler "github.com/vncsmyrnk/pollstream/internal/adapters/handler/http"
	relayredis "github.com/vncsmyrnk/pollstream/internal/adapters/relay/redis"
	"github.com/vncsmyrnk/pollstream/internal/adapters/repository/breaker"
	"github.com/vncsmyrnk/pollstream/internal/adapters/repository/memory"
	mongorepo "github.com/vncsmyrnk/pollstream/internal/adapters/repository/mongo"
	"github.com/vncsmyrnk/pollstream/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/pollstream/internal/adapters/stream"
	"github.com/vncsmyrnk/pollstream/internal/config"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
	"github.com/vncsmyrnk/pollstream/internal/core/services"
)

const relayRetryDelay = 5 * time.Second

type App struct {
	Hub     *stream.Hub
	Store   ports.PollRepository
	Service ports.PollService
	Handler http.Handler

	relay  *relayredis.Relay
	clock  clockwork.Clock
	closer []func(context.Context) error
}

// New builds the application. A store that cannot be reached is not fatal:
// the process serves anyway and mutations report the store as unavailable
// until it comes back.
func New(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*App, error) {
	a := &App{
		Hub:   stream.NewHub(),
		clock: clock,
	}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = breaker.NewPollRepository(store, breaker.Settings{})

	var publisher ports.EventPublisher = a.Hub
	if cfg.RedisURL != "" {
		rdb, err := relayredis.NewClient(cfg.RedisURL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.closer = append(a.closer, func(context.Context) error { return rdb.Close() })
		a.relay = relayredis.NewRelay(rdb, cfg.RelayChannel, a.Hub)
		publisher = a.relay
		slog.Info("Cross-instance relay enabled", "redis", config.Redact(cfg.RedisURL), "channel", cfg.RelayChannel)
	}

	a.Service = services.NewPollService(a.Store, publisher, clock)

	a.Handler = handler.NewHandler(
		handler.NewPollHandler(a.Service),
		handler.NewHealthHandler(a.Store, cfg.StoreTimeout),
		stream.NewHandler(a.Hub, clock, cfg.HeartbeatInterval),
		handler.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins(),
			RequestTimeout: cfg.RequestTimeout,
		},
	)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := a.Store.Ping(pingCtx); err != nil {
		slog.Error("Store connection failed, serving with store unavailable", "driver", cfg.StoreDriver, "error", err)
	} else {
		slog.Info("Store connected", "driver", cfg.StoreDriver)
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (ports.PollRepository, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		a.closer = append(a.closer, func(context.Context) error { return db.Close() })
		slog.Info("Using postgres store", "url", config.Redact(cfg.DatabaseURL))

		if cfg.AutoMigrate {
			migrateCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
			defer cancel()
			if err := postgres.Migrate(migrateCtx, db); err != nil {
				slog.Warn("Skipping migrations", "error", err)
			}
		}
		return postgres.NewPollRepository(db, a.clock), nil

	case config.StoreMongo:
		client, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.StoreTimeout)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, func(ctx context.Context) error { return client.Disconnect(ctx) })
		slog.Info("Using mongo store", "uri", config.Redact(cfg.MongoURI), "database", cfg.MongoDatabase)

		if cfg.AutoMigrate {
			a.ensureMongoIndexes(ctx, client, cfg)
		}
		return mongorepo.NewPollRepository(client, cfg.MongoDatabase, a.clock), nil

	case config.StoreMemory:
		slog.Warn("Using in-memory store, polls are lost on restart")
		return memory.NewPollRepository(a.clock), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (a *App) ensureMongoIndexes(ctx context.Context, client *mongo.Client, cfg *config.Config) {
	indexCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := mongorepo.EnsureIndexes(indexCtx, client.Database(cfg.MongoDatabase)); err != nil {
		slog.Warn("Skipping index creation", "error", err)
	}
}

// Run keeps the relay subscribed until ctx is done, resubscribing after
// failures. Without a relay it returns immediately.
func (a *App) Run(ctx context.Context) {
	if a.relay == nil {
		return
	}
	for {
		err := a.relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, goredis.ErrClosed) {
			slog.Warn("Relay stopped, retrying", "error", err, "retry_in", relayRetryDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(relayRetryDelay):
		}
	}
}

// Close tears down every subscriber, then releases store and relay clients.
func (a *App) Close(ctx context.Context) error {
	a.Hub.Close()

	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closer = nil
	return errors.Join(errs...)
}
