package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_INVENTORY_POOL", "")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "")
	t.Setenv("TRACE_SAMPLE_RATIO", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "regular", cfg.Business.DefaultInventoryPool)
	assert.Equal(t, 24*time.Hour, cfg.Business.IdempotencyTTL)
	assert.Equal(t, 1000, cfg.Business.MaxItemQuantity)
	assert.True(t, cfg.Database.MigrateOnStart)
	assert.Equal(t, 1.0, cfg.Observ.TraceSampleRatio)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("COMPENSATION_TIMEOUT_SECONDS", "3")
	t.Setenv("DB_MIGRATE_ON_START", "false")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Business.CompensationTimeout)
	assert.False(t, cfg.Database.MigrateOnStart)
	assert.Equal(t, 0.25, cfg.Observ.TraceSampleRatio)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}
