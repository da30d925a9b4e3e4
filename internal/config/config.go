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
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health service; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// StorageDriver selects the credential store and SQL ledger backend: "sqlite" or "postgres".
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	// DatabaseURL is the Postgres DSN. Required when StorageDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SQLitePath is the database file used when StorageDriver is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// LedgerBackend selects where OTPs, refresh and reset tokens live: "sql" or "redis".
	LedgerBackend string `mapstructure:"LEDGER_BACKEND"`
	// RedisURL is a redis:// URL. Required for the redis ledger; also enables attempt limiting.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTAccessSecret signs access tokens: an HMAC secret, inline PEM, or file:<path>.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret signs refresh tokens. Must differ from JWTAccessSecret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTIssuer        string `mapstructure:"JWT_ISSUER"`
	JWTAudience      string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPTTLRaw is the OTP lifetime (default 5m).
	OTPTTLRaw string `mapstructure:"OTP_TTL"`
	// ResetTokenTTLRaw is the password reset token lifetime (default 1h).
	ResetTokenTTLRaw string `mapstructure:"RESET_TOKEN_TTL"`
	// FrontendURL is the base of the reset link sent by email.
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	// OTPChannel is "email" or "sms".
	OTPChannel string `mapstructure:"OTP_CHANNEL"`
	// OTPReturnToClient when true stores OTPs for GET /dev/otp/{userId}. Must not be true in production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// MFAPolicyFile is an optional Rego file replacing the built-in MFA policy.
	MFAPolicyFile string `mapstructure:"MFA_POLICY_FILE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASS"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	// SMTPSecure uses implicit TLS (port 465 style) instead of STARTTLS.
	SMTPSecure bool `mapstructure:"SMTP_SECURE"`

	// SMSLocalAPIKey is the API key for SMS Local. When set, SMS goes through SMS Local.
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// Twilio is used for SMS when SMS Local is not configured.
	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`

	NotifyWorkers        int    `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize      int    `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifySendTimeoutRaw string `mapstructure:"NOTIFY_SEND_TIMEOUT"`
	RequestTimeoutRaw    string `mapstructure:"REQUEST_TIMEOUT"`
	SweepIntervalRaw     string `mapstructure:"SWEEP_INTERVAL"`

	// TrustedProxies is a comma-separated list of proxy CIDRs or IPs whose X-Forwarded-For is honored.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// CORSOrigins is a comma-separated allow-list of browser origins; "*" allows any.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// LogFile tees the process log into a size-rotated file when set.
	LogFile     string `mapstructure:"LOG_FILE"`
	LogMaxBytes int64  `mapstructure:"LOG_MAX_BYTES"`

	// OTel (optional). When the endpoint is empty, no exporters are started.
	OTELEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Telemetry (optional). When Kafka brokers are set, auth events are also written to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
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
	v.SetDefault("GRPC_HEALTH_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("STORAGE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "data/authcore.db")
	v.SetDefault("LEDGER_BACKEND", "sql")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_AUDIENCE", "authcore-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("OTP_CHANNEL", "email")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("MFA_POLICY_FILE", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_SECURE", false)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_FROM_NUMBER", "")
	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_SEND_TIMEOUT", "15s")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_BYTES", 10<<20)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authcore")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "authcore-telemetry")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "authcore-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.OTPReturnToClient && c.Env == "production" {
		return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH must be set when STORAGE_DRIVER=sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORAGE_DRIVER=postgres")
		}
	default:
		return errors.New("config: STORAGE_DRIVER must be sqlite or postgres")
	}

	c.LedgerBackend = strings.ToLower(strings.TrimSpace(c.LedgerBackend))
	switch c.LedgerBackend {
	case "sql":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when LEDGER_BACKEND=redis")
		}
	default:
		return errors.New("config: LEDGER_BACKEND must be sql or redis")
	}

	c.OTPChannel = strings.ToLower(strings.TrimSpace(c.OTPChannel))
	if c.OTPChannel != "email" && c.OTPChannel != "sms" {
		return errors.New("config: OTP_CHANNEL must be email or sms")
	}

	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// OTPTTL returns the OTP lifetime. Returns 5m if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return durationOr(c.OTPTTLRaw, 5*time.Minute)
}

// ResetTokenTTL returns the password reset token lifetime. Returns 1h if unset or invalid.
func (c *Config) ResetTokenTTL() time.Duration {
	return durationOr(c.ResetTokenTTLRaw, time.Hour)
}

// NotifySendTimeout bounds a single notification send. Returns 15s if unset or invalid.
func (c *Config) NotifySendTimeout() time.Duration {
	return durationOr(c.NotifySendTimeoutRaw, 15*time.Second)
}

// RequestTimeout bounds each HTTP request. Returns 10s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	return durationOr(c.RequestTimeoutRaw, 10*time.Second)
}

// SweepInterval is how often expired ledger rows are purged. Returns 1m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return durationOr(c.SweepIntervalRaw, time.Minute)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// TrustedProxiesList returns the configured proxy CIDRs/IPs.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

// CORSOriginsList returns the allowed browser origins.
func (c *Config) CORSOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
