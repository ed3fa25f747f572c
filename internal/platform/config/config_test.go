package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"LEXBOUNTY_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "ESCROW_TX_TIMEOUT",
		"ESCROW_REQUIRE_FULL_FUNDING_BEFORE_ASSIGN", "ESCROW_REQUIRE_REGISTERED_PROOFS", "JWT_SIGNING_KEY", "METRICS_TOKEN_HASH", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.UsePostgres())
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Escrow.TxTimeout)
	assert.False(t, cfg.Escrow.RequireFullFundingBeforeAssign)
	assert.False(t, cfg.Escrow.RequireRegisteredProofs)
	assert.NotEmpty(t, cfg.JWTSigningKey)
	assert.Empty(t, cfg.MetricsTokenHash)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LEXBOUNTY_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/lexbounty")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ESCROW_TX_TIMEOUT", "250ms")
	t.Setenv("ESCROW_REQUIRE_FULL_FUNDING_BEFORE_ASSIGN", "true")
	t.Setenv("ESCROW_REQUIRE_REGISTERED_PROOFS", "1")
	t.Setenv("OUTBOX_BATCH_SIZE", "-3")
	t.Setenv("METRICS_TOKEN_HASH", "$2a$10$hash")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.UsePostgres())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Escrow.TxTimeout)
	assert.True(t, cfg.Escrow.RequireFullFundingBeforeAssign)
	assert.True(t, cfg.Escrow.RequireRegisteredProofs)
	assert.Equal(t, 100, cfg.Outbox.BatchSize, "invalid values fall back to defaults")
	assert.Equal(t, "$2a$10$hash", cfg.MetricsTokenHash)
}
