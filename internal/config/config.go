package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=1048576"`

	// rate limiting: the global limiter guards the whole process, the
	// per-caller fixed window protects the wallet protocol endpoints from a
	// single misbehaving device
	RateLimitRPS         int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst       int32         `env:"RATE_LIMIT_BURST,default=200"`
	CallerRateLimit      int           `env:"CALLER_RATE_LIMIT,default=60"`
	CallerRateWindow     time.Duration `env:"CALLER_RATE_WINDOW,default=1m"`
	CallerRateSweepEvery time.Duration `env:"CALLER_RATE_SWEEP_EVERY,default=5m"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// pass signing material: each value is a PEM or base64 blob, or a path
	// to a PEM file via the *_FILE variant. The service starts without them
	// (signing and push report "not configured" until material is loaded).
	SigningCert     string `env:"PASS_SIGNING_CERT"`
	SigningCertFile string `env:"PASS_SIGNING_CERT_FILE"`
	SigningKey      string `env:"PASS_SIGNING_KEY"`
	SigningKeyFile  string `env:"PASS_SIGNING_KEY_FILE"`
	WWDRCert        string `env:"PASS_WWDR_CERT"`
	WWDRCertFile    string `env:"PASS_WWDR_CERT_FILE"`

	// pass content settings
	PassTypeIdentifier string        `env:"PASS_TYPE_IDENTIFIER,required=true"`
	TeamIdentifier     string        `env:"TEAM_IDENTIFIER,required=true"`
	OrganizationName   string        `env:"ORGANIZATION_NAME,required=true"`
	PublicBaseURL      string        `env:"PUBLIC_BASE_URL,required=true"`
	SigningTimeout     time.Duration `env:"SIGNING_TIMEOUT,default=10s"`

	// push settings
	PushEnvironment string        `env:"PUSH_ENVIRONMENT,default=production"`
	PushTimeout     time.Duration `env:"PUSH_TIMEOUT,default=10s"`
	PushConcurrency int           `env:"PUSH_CONCURRENCY,default=16"`

	// Required configuration - must be set by environment variables
	DatabaseURL string `env:"DATABASE_URL,required=true"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validPushEnvs = map[string]bool{
	"production": true,
	"sandbox":    true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	if !validPushEnvs[cfg.PushEnvironment] {
		return fmt.Errorf("invalid PUSH_ENVIRONMENT: %s (must be production or sandbox)", cfg.PushEnvironment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if cfg.CallerRateLimit < 0 {
		return fmt.Errorf("CALLER_RATE_LIMIT must be 0 (disabled) or greater")
	}
	if cfg.CallerRateWindow <= 0 {
		return fmt.Errorf("CALLER_RATE_WINDOW must be greater than zero")
	}
	if cfg.SigningTimeout <= 0 {
		return fmt.Errorf("SIGNING_TIMEOUT must be greater than zero")
	}
	if cfg.PushConcurrency < 1 {
		return fmt.Errorf("PUSH_CONCURRENCY must be at least 1")
	}

	return nil
}
