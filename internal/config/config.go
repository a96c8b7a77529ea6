package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type Config struct {
	Port          string `env:"PORT" default:"4000"`
	StoreDriver   string `env:"STORE_DRIVER" default:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURI      string `env:"MONGO_URI" default:"mongodb://127.0.0.1:27017/quickpoll"`
	MongoDatabase string `env:"MONGO_DATABASE" default:"quickpoll"`
	RedisURL      string `env:"REDIS_URL"`
	RelayChannel  string `env:"RELAY_CHANNEL" default:"pollstream:events"`
	ClientOrigin  string `env:"CLIENT_ORIGIN"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`
	AutoMigrate   bool   `env:"AUTO_MIGRATE" default:"true"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"25s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" default:"10s"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" default:"7s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %s", StorePostgres)
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER is %s", StoreMongo)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s; got %q", StorePostgres, StoreMongo, StoreMemory, cfg.StoreDriver)
	}

	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", cfg.HeartbeatInterval)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", cfg.StoreTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", cfg.ShutdownTimeout)
	}

	return nil
}

// AllowedOrigins normalises CLIENT_ORIGIN: lower case, no trailing slash,
// empty entries dropped.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.ClientOrigin, ",") {
		o = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

// Redact hides the password of a connection string before it is logged.
func Redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
