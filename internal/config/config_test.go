package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORELEDGER_STORAGE_DRIVER", "postgres")
	t.Setenv("STORELEDGER_DATABASE_URL", "postgres://localhost/storeledger")
	t.Setenv("STORELEDGER_SEQUENCE_DRIVER", "redis")
	t.Setenv("STORELEDGER_REDIS_ADDR", "localhost:6379")
	t.Setenv("STORELEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STORELEDGER_STORE_TIMEZONE", "Europe/Kyiv")
	t.Setenv("STORELEDGER_APP_ENV", "Production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "Europe/Kyiv", cfg.Location().String())
	assert.True(t, cfg.UsesRedis())
	assert.True(t, cfg.IsProduction())
}

func TestValidate_CrossFieldRequirements(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"postgres without url", func(c *Config) { c.StorageDriver = DriverPostgres; c.SequenceDriver = DriverPostgres }, "requires DATABASE_URL"},
		{"redis sessions without addr", func(c *Config) { c.SessionDriver = DriverRedis }, "REDIS_ADDR"},
		{"memory sequence with postgres", func(c *Config) { c.StorageDriver = DriverPostgres; c.DatabaseURL = "x" }, "numbers would repeat"},
		{"unknown storage", func(c *Config) { c.StorageDriver = "sqlite" }, "unknown storage driver"},
		{"bad zone", func(c *Config) { c.StoreTimezone = "Nowhere/City" }, "STORE_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mod(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func validConfig() Config {
	return Config{
		StorageDriver:     DriverMemory,
		SequenceDriver:    DriverMemory,
		SessionDriver:     DriverMemory,
		SequenceRangeSize: 1,
		StoreTimezone:     "UTC",
	}
}
