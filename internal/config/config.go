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
	// DatabaseURL is the Postgres DSN; when empty the server runs on in-memory stores (dev only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to a key file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to a key file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "ciam-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "ciam-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "336h" for 14d).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTIDTTL is the ID token lifetime (e.g. "1h").
	JWTIDTTL string `mapstructure:"JWT_ID_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ContextTTL is how long a login flow may stay open (e.g. "10m").
	ContextTTL string `mapstructure:"CONTEXT_TTL"`
	// MFATransactionTTL is the lifetime of an MFA step transaction (e.g. "3m").
	MFATransactionTTL string `mapstructure:"MFA_TRANSACTION_TTL"`
	// ESignTransactionTTL is the lifetime of an eSign step transaction (e.g. "10m").
	ESignTransactionTTL string `mapstructure:"ESIGN_TRANSACTION_TTL"`
	// DeviceTransactionTTL is the lifetime of a device-bind step transaction (e.g. "5m").
	DeviceTransactionTTL string `mapstructure:"DEVICE_TRANSACTION_TTL"`
	// PushRetryIntervalMS is the client-side retry interval returned by the push poll, in milliseconds.
	PushRetryIntervalMS int `mapstructure:"PUSH_RETRY_INTERVAL_MS"`
	// DeviceTrustTTLDays is the device trust window in days (e.g. 30).
	DeviceTrustTTLDays int `mapstructure:"DEVICE_TRUST_TTL_DAYS"`
	// SMSLocalAPIKey is the API key for the SMS OTP delivery provider.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS provider API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// OTPReturnToClient when true enables dev OTP mode: no SMS, OTP retrievable via GET /dev/mfa/otp.
	// Must not be true when Env is production (startup error).
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// AuditRetentionDays is how long audit rows are kept before the sweep deletes them.
	AuditRetentionDays int `mapstructure:"AUDIT_RETENTION_DAYS"`
	// OTLPEndpoint enables OTLP export of traces/metrics/logs when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Security events (optional). When Kafka brokers are set, the server emits
	// security events to Kafka and cmd/worker forwards them to Loki.
	SecurityKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	SecurityKafkaTopic   string `mapstructure:"SECURITY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the security event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki push endpoint used by cmd/worker (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "ciam-auth")
	v.SetDefault("JWT_AUDIENCE", "ciam-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "336h") // 14d
	v.SetDefault("JWT_ID_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CONTEXT_TTL", "10m")
	v.SetDefault("MFA_TRANSACTION_TTL", "3m")
	v.SetDefault("ESIGN_TRANSACTION_TTL", "10m")
	v.SetDefault("DEVICE_TRANSACTION_TTL", "5m")
	v.SetDefault("PUSH_RETRY_INTERVAL_MS", 2000)
	v.SetDefault("DEVICE_TRUST_TTL_DAYS", 30)
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("AUDIT_RETENTION_DAYS", 365)
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_KAFKA_TOPIC", "ciam-security-events")
	v.SetDefault("KAFKA_GROUP_ID", "ciam-security-worker")
	v.SetDefault("LOKI_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.DeviceTrustTTLDays <= 0 {
		return nil, errors.New("config: DEVICE_TRUST_TTL_DAYS must be positive")
	}

	return &cfg, nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return durationOr(c.JWTAccessTTL, 15*time.Minute) }

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 336h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration { return durationOr(c.JWTRefreshTTL, 336*time.Hour) }

// IDTTL parses JWTIDTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) IDTTL() time.Duration { return durationOr(c.JWTIDTTL, time.Hour) }

// FlowContextTTL parses ContextTTL. Returns 10m if unset or invalid.
func (c *Config) FlowContextTTL() time.Duration { return durationOr(c.ContextTTL, 10*time.Minute) }

// MFATTL parses MFATransactionTTL. Returns 3m if unset or invalid.
func (c *Config) MFATTL() time.Duration { return durationOr(c.MFATransactionTTL, 3*time.Minute) }

// ESignTTL parses ESignTransactionTTL. Returns 10m if unset or invalid.
func (c *Config) ESignTTL() time.Duration { return durationOr(c.ESignTransactionTTL, 10*time.Minute) }

// DeviceTTL parses DeviceTransactionTTL. Returns 5m if unset or invalid.
func (c *Config) DeviceTTL() time.Duration { return durationOr(c.DeviceTransactionTTL, 5*time.Minute) }

// PushRetryInterval returns the push poll retry interval. Returns 2s if unset or invalid.
func (c *Config) PushRetryInterval() time.Duration {
	if c.PushRetryIntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PushRetryIntervalMS) * time.Millisecond
}

// SecurityKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// A non-empty list means the security event pipeline is enabled.
func (c *Config) SecurityKafkaBrokersList() []string {
	if c == nil || c.SecurityKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.SecurityKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
