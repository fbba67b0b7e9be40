// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required by server, dispatcher and migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis address for rate limiting (e.g. localhost:6379). Empty disables rate limiting.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA); used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "session-plane").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "session-plane-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h" for 30d).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// OutboxTopic is the Kafka topic outbox events are published to.
	OutboxTopic string `mapstructure:"OUTBOX_TOPIC"`
	// OutboxTickInterval is how often the dispatcher polls for pending events (e.g. "2s").
	OutboxTickInterval string `mapstructure:"OUTBOX_TICK_INTERVAL"`
	// OutboxBatchSize is the max events claimed per dispatcher tick.
	OutboxBatchSize int `mapstructure:"OUTBOX_BATCH_SIZE"`
	// OutboxMaxAttempts is the publish attempt count after which an event is marked FAILED.
	OutboxMaxAttempts int `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	// OutboxPublishTimeout bounds a single broker publish (e.g. "5s").
	OutboxPublishTimeout string `mapstructure:"OUTBOX_PUBLISH_TIMEOUT"`

	// RateLimitPerMinute caps auth requests per client IP per minute. 0 disables.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	// OTELExporterEndpoint is the OTLP gRPC endpoint for traces and metrics (e.g. localhost:4317). Empty disables export.
	OTELExporterEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_ISSUER", "session-plane")
	v.SetDefault("JWT_AUDIENCE", "session-plane-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("OUTBOX_TOPIC", "identity-events")
	v.SetDefault("OUTBOX_TICK_INTERVAL", "2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 10)
	v.SetDefault("OUTBOX_PUBLISH_TIMEOUT", "5s")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.OutboxBatchSize <= 0 {
		return nil, errors.New("config: OUTBOX_BATCH_SIZE must be positive")
	}
	if cfg.OutboxMaxAttempts <= 0 {
		return nil, errors.New("config: OUTBOX_MAX_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// TickInterval parses OutboxTickInterval. Returns 2s if unset or invalid.
func (c *Config) TickInterval() time.Duration {
	d, err := time.ParseDuration(c.OutboxTickInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// PublishTimeout parses OutboxPublishTimeout. Returns 5s if unset or invalid.
func (c *Config) PublishTimeout() time.Duration {
	d, err := time.ParseDuration(c.OutboxPublishTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the publisher.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
