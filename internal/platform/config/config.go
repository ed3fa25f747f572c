package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration

	// MetricsTokenHash is the bcrypt hash of the bearer secret guarding
	// /metrics. Empty leaves /metrics open.
	MetricsTokenHash string
	ShutdownTimeout  time.Duration

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	Escrow      EscrowConfig
}

// RedisConfig configures the proof registry and idempotency cache client.
// An empty URL selects the in-memory implementations.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the domain event stream. No brokers means events are
// only logged by the outbox relay.
type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
	Partitions  int32
}

// OutboxConfig tunes the relay that drains the outbox table.
type OutboxConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	FailureThreshold int
	Cooldown         time.Duration
}

// EscrowConfig holds the engine's named policies.
type EscrowConfig struct {
	TxTimeout                      time.Duration
	RequireFullFundingBeforeAssign bool
	RequireRegisteredProofs        bool
	IdempotencyTTL                 time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envString("LEXBOUNTY_ADDR", ":8080"),
		LogLevel:      envString("LOG_LEVEL", "info"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     envString("JWT_ISSUER", "lexbounty"),
		JWTAudience:   envString("JWT_AUDIENCE", "lexbounty-api"),
		TokenTTL:      envDuration("JWT_TOKEN_TTL", time.Hour),

		MetricsTokenHash: os.Getenv("METRICS_TOKEN_HASH"),
		ShutdownTimeout:  envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			KeyPrefix:    envString("REDIS_KEY_PREFIX", "lexbounty"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     envList("KAFKA_BROKERS"),
			EventsTopic: envString("KAFKA_EVENTS_TOPIC", "lexbounty.bounty-events"),
			Partitions:  int32(envInt("KAFKA_EVENTS_PARTITIONS", 6)),
		},
		Outbox: OutboxConfig{
			PollInterval:     envDuration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:        envInt("OUTBOX_BATCH_SIZE", 100),
			FailureThreshold: envInt("OUTBOX_FAILURE_THRESHOLD", 5),
			Cooldown:         envDuration("OUTBOX_COOLDOWN", 30*time.Second),
		},
		Escrow: EscrowConfig{
			TxTimeout:                      envDuration("ESCROW_TX_TIMEOUT", 5*time.Second),
			RequireFullFundingBeforeAssign: envBool("ESCROW_REQUIRE_FULL_FUNDING_BEFORE_ASSIGN"),
			RequireRegisteredProofs:        envBool("ESCROW_REQUIRE_REGISTERED_PROOFS"),
			IdempotencyTTL:                 envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}
}

// UsePostgres reports whether durable stores are configured.
func (s Server) UsePostgres() bool { return s.DatabaseURL != "" }

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
