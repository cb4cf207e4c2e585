// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/quotagate/quotagate/internal/auth"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL      string `env:"DATABASE_URL,required"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"20"`
	AutoMigrate      bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	// Cache (Redis)
	RedisURL      string        `env:"REDIS_URL,required"`
	RedisPoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"10m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Decision engine
	DecisionTimeout   time.Duration `env:"DECISION_TIMEOUT" envDefault:"10s"`
	BuiltinSolutionID string        `env:"BUILTIN_SOLUTION_ID" envDefault:"search"`
	UsageTimezone     string        `env:"USAGE_TIMEZONE" envDefault:"UTC"`

	// Token minting
	TokenStrategy string `env:"TOKEN_STRATEGY" envDefault:"deterministic"`
	TokenPrefix   string `env:"TOKEN_PREFIX" envDefault:"qg_"`
	TokenLength   int    `env:"TOKEN_LENGTH" envDefault:"40"`
	TokenSecret   string `env:"TOKEN_SECRET,required"`

	// Identity provider (HS256 JWT)
	IdentityJWTSecret string `env:"IDENTITY_JWT_SECRET,required"`
	IdentityIssuer    string `env:"IDENTITY_ISSUER" envDefault:""`

	// Rate limiting
	RateLimitPublicEnabled bool `env:"RATE_LIMIT_PUBLIC_ENABLED" envDefault:"true"`
	RateLimitPublicRPS     int  `env:"RATE_LIMIT_PUBLIC_RPS" envDefault:"50"`
	RateLimitPublicBurst   int  `env:"RATE_LIMIT_PUBLIC_BURST" envDefault:"100"`
	RateLimitTokenRPM      int  `env:"RATE_LIMIT_TOKEN_RPM" envDefault:"600"`
	RateLimitTokenBurst    int  `env:"RATE_LIMIT_TOKEN_BURST" envDefault:"60"`
	RateLimitPartnerRPM    int  `env:"RATE_LIMIT_PARTNER_RPM" envDefault:"120"`
	RateLimitPartnerBurst  int  `env:"RATE_LIMIT_PARTNER_BURST" envDefault:"20"`

	// Honour X-Forwarded-For / X-Real-IP. Enable only behind a proxy that
	// overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Signup reconciliation
	ReconcileEnabled  bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"15s"`
	ReconcileBatch    int           `env:"RECONCILE_BATCH" envDefault:"50"`

	// Metrics endpoint basic auth (disabled when username is empty)
	MetricsUsername string `env:"METRICS_USERNAME" envDefault:""`
	MetricsPassword string `env:"METRICS_PASSWORD" envDefault:""`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// MetricsAuthEnabled returns true if /metrics requires basic auth.
func (c *Config) MetricsAuthEnabled() bool {
	return c.MetricsUsername != ""
}

// Validate checks values env parsing cannot express.
func (c *Config) Validate() error {
	var errs []error

	if _, err := auth.NewStrategy(c.TokenStrategy, c.TokenPrefix, c.TokenSecret, c.TokenLength); err != nil {
		errs = append(errs, fmt.Errorf("token settings: %w", err))
	}
	if _, err := time.LoadLocation(c.UsageTimezone); err != nil {
		errs = append(errs, fmt.Errorf("USAGE_TIMEZONE %q: %w", c.UsageTimezone, err))
	}
	if strings.TrimSpace(c.BuiltinSolutionID) == "" {
		errs = append(errs, errors.New("BUILTIN_SOLUTION_ID must not be empty"))
	}
	if c.DecisionTimeout <= 0 {
		errs = append(errs, errors.New("DECISION_TIMEOUT must be positive"))
	}
	if c.IsProduction() && len(c.IdentityJWTSecret) < 32 {
		errs = append(errs, errors.New("IDENTITY_JWT_SECRET must be at least 32 bytes in production"))
	}
	if c.MetricsAuthEnabled() && c.MetricsPassword == "" {
		errs = append(errs, errors.New("METRICS_PASSWORD is required when METRICS_USERNAME is set"))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// validates the result. Returns an error if required variables are missing.
func Load() (*Config, error) {
	return LoadWithEnvFiles(".env")
}

// LoadWithEnvFiles is Load with explicit dotenv files. Missing files are
// skipped. Variables already set in the environment win over the files.
func LoadWithEnvFiles(files ...string) (*Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
