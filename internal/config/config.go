// Package config loads runtime configuration from STORELEDGER_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable.
const Prefix = "STORELEDGER"

// Drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds runtime configuration for the server and the worker.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns    int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	AutoMigrate   bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	SequenceDriver    string `envconfig:"SEQUENCE_DRIVER" default:"memory"`
	SequenceRangeSize int64  `envconfig:"SEQUENCE_RANGE_SIZE" default:"1"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	SessionDriver string        `envconfig:"SESSION_DRIVER" default:"memory"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"30s"`

	StoreTimezone   string        `envconfig:"STORE_TIMEZONE" default:"UTC"`
	RetryMaxElapsed time.Duration `envconfig:"RETRY_MAX_ELAPSED" default:"5s"`
	PriceCacheTTL   time.Duration `envconfig:"PRICE_CACHE_TTL" default:"1m"`

	// PriceFile seeds the price table at startup with a JSON array.
	PriceFile string `envconfig:"PRICE_FILE"`

	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic         string        `envconfig:"KAFKA_TOPIC" default:"storeledger.events"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"500ms"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres storage requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	switch c.SequenceDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres sequence requires DATABASE_URL"))
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis sequence requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sequence driver %q", c.SequenceDriver))
	}

	switch c.SessionDriver {
	case DriverMemory:
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis sessions require REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session driver %q", c.SessionDriver))
	}

	if c.SequenceDriver == DriverMemory && c.StorageDriver == DriverPostgres {
		errs = append(errs, errors.New("memory sequence cannot back postgres storage; numbers would repeat after restart"))
	}
	if c.SequenceRangeSize <= 0 {
		errs = append(errs, errors.New("SEQUENCE_RANGE_SIZE must be positive"))
	}
	if _, err := time.LoadLocation(c.StoreTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid STORE_TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.AppEnv, "production")
}

// Location returns the store time zone. Validate has checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.SequenceDriver == DriverRedis || c.SessionDriver == DriverRedis
}
