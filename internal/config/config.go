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
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr serves the OAuth redirect endpoints and health probes.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL backs single-use OAuth state nonces (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// VaultMasterKey is the base64 master key for sealing method secrets. Ignored when VaultMasterKeySecretID is set.
	VaultMasterKey string `mapstructure:"VAULT_MASTER_KEY"`
	// VaultMasterKeySecretID names an AWS Secrets Manager secret holding the master key.
	VaultMasterKeySecretID string `mapstructure:"VAULT_MASTER_KEY_SECRET_ID"`
	AWSRegion              string `mapstructure:"AWS_REGION"`

	// SessionSecret is the HMAC key for session tokens; at least 32 bytes.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	// StateSecret signs OAuth state tokens. Defaults to SessionSecret.
	StateSecret string `mapstructure:"STATE_SECRET"`

	// LedgerURL is the base URL of the identity ledger API.
	LedgerURL     string `mapstructure:"LEDGER_URL"`
	LedgerAPIKey  string `mapstructure:"LEDGER_API_KEY"`
	LedgerTimeout string `mapstructure:"LEDGER_TIMEOUT"`

	// OAuthProvidersFile is a YAML catalog of OAuth providers. Empty disables OAuth methods.
	OAuthProvidersFile string `mapstructure:"OAUTH_PROVIDERS_FILE"`
	OAuthTimeout       string `mapstructure:"OAUTH_TIMEOUT"`

	// TOTPIssuer is shown by authenticator apps next to the account name.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`

	TOTPSessionTTLRaw  string `mapstructure:"TOTP_SESSION_TTL"`
	OAuthSessionTTLRaw string `mapstructure:"OAUTH_SESSION_TTL"`
	DeviceTrustTTLRaw  string `mapstructure:"DEVICE_TRUST_TTL"`

	RateLimitWindowRaw string `mapstructure:"RATE_LIMIT_WINDOW"`
	RateLimitTOTP      int    `mapstructure:"RATE_LIMIT_TOTP"`
	RateLimitOAuth     int    `mapstructure:"RATE_LIMIT_OAUTH"`
	RateLimitSession   int    `mapstructure:"RATE_LIMIT_SESSION"`

	// ProofAudience is the aud claim required on proof-of-control tokens.
	ProofAudience string `mapstructure:"PROOF_AUDIENCE"`

	// OTLPEndpoint enables OTLP export of traces, metrics and auth-event logs when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of brokers for the auth-event stream (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsTopic is the Kafka topic for auth events.
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_TOPIC"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("VAULT_MASTER_KEY", "")
	v.SetDefault("VAULT_MASTER_KEY_SECRET_ID", "")
	v.SetDefault("AWS_REGION", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("STATE_SECRET", "")
	v.SetDefault("LEDGER_URL", "")
	v.SetDefault("LEDGER_API_KEY", "")
	v.SetDefault("LEDGER_TIMEOUT", "5s")
	v.SetDefault("OAUTH_PROVIDERS_FILE", "")
	v.SetDefault("OAUTH_TIMEOUT", "5s")
	v.SetDefault("TOTP_ISSUER", "didlink")
	v.SetDefault("TOTP_SESSION_TTL", "24h")
	v.SetDefault("OAUTH_SESSION_TTL", "12h")
	v.SetDefault("DEVICE_TRUST_TTL", "720h") // 30d
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_TOTP", 5)
	v.SetDefault("RATE_LIMIT_OAUTH", 3)
	v.SetDefault("RATE_LIMIT_SESSION", 10)
	v.SetDefault("PROOF_AUDIENCE", "didlink-auth")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_TOPIC", "didlink-auth-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "didlink-event-worker")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		return nil, errors.New("config: SESSION_SECRET must be at least 32 bytes")
	}
	if cfg.StateSecret == "" {
		cfg.StateSecret = cfg.SessionSecret
	}
	if cfg.RateLimitTOTP < 0 || cfg.RateLimitOAuth < 0 || cfg.RateLimitSession < 0 {
		return nil, errors.New("config: RATE_LIMIT_* must not be negative")
	}
	if cfg.Env == "production" && cfg.VaultMasterKey == "" && cfg.VaultMasterKeySecretID == "" {
		return nil, errors.New("config: VAULT_MASTER_KEY or VAULT_MASTER_KEY_SECRET_ID must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// ValidateServer checks the fields only the API server needs. The migrate and worker commands skip it.
func (c *Config) ValidateServer() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("config: DATABASE_URL must be set")
	case c.SessionSecret == "":
		return errors.New("config: SESSION_SECRET must be set")
	case c.LedgerURL == "":
		return errors.New("config: LEDGER_URL must be set")
	case c.VaultMasterKey == "" && c.VaultMasterKeySecretID == "":
		return errors.New("config: VAULT_MASTER_KEY or VAULT_MASTER_KEY_SECRET_ID must be set")
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TOTPSessionTTL returns the session lifetime for TOTP logins. Returns 24h if unset or invalid.
func (c *Config) TOTPSessionTTL() time.Duration { return parseDuration(c.TOTPSessionTTLRaw, 24*time.Hour) }

// OAuthSessionTTL returns the session lifetime for OAuth logins. Returns 12h if unset or invalid.
func (c *Config) OAuthSessionTTL() time.Duration {
	return parseDuration(c.OAuthSessionTTLRaw, 12*time.Hour)
}

// DeviceTrustTTL returns the lifetime of remembered-device tokens. Returns 720h if unset or invalid.
func (c *Config) DeviceTrustTTL() time.Duration {
	return parseDuration(c.DeviceTrustTTLRaw, 720*time.Hour)
}

// RateLimitWindow returns the sliding window for failed attempts. Returns 15m if unset or invalid.
func (c *Config) RateLimitWindow() time.Duration {
	return parseDuration(c.RateLimitWindowRaw, 15*time.Minute)
}

// LedgerCallTimeout bounds each ledger request. Returns 5s if unset or invalid.
func (c *Config) LedgerCallTimeout() time.Duration { return parseDuration(c.LedgerTimeout, 5*time.Second) }

// OAuthCallTimeout bounds each OAuth token exchange and profile fetch. Returns 5s if unset or invalid.
func (c *Config) OAuthCallTimeout() time.Duration { return parseDuration(c.OAuthTimeout, 5*time.Second) }

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka event stream.
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
