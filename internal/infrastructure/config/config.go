package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Wayfarer.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// AuthConfig contains authentication and session security settings.
type AuthConfig struct {
	JWT     JWTConfig     `yaml:"jwt"`
	Lockout LockoutConfig `yaml:"lockout"`

	// SweepInterval is how often expired refresh tokens are purged, in
	// minutes. Default: 60.
	SweepInterval int `yaml:"sweep_interval"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`

	// Audience identifies the intended token consumer.
	Audience string `yaml:"audience"`

	// AccessTokenTTL is the access token lifetime in minutes. Default: 15.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh token lifetime in minutes. Default:
	// 10080 (7 days).
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`
}

// LockoutConfig contains failed-login lockout settings.
type LockoutConfig struct {
	// Threshold is the failed attempt count that trips the lock. Default: 5.
	Threshold int `yaml:"threshold"`

	// Duration is how long a tripped lock lasts, in minutes. Default: 15.
	Duration int `yaml:"duration"`
}

// TelemetryConfig contains InfluxDB security-event telemetry settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WAYFARER_SECTION_KEY
// For example: WAYFARER_DATABASE_PATH, WAYFARER_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/wayfarer.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				Issuer:          "wayfarer",
				Audience:        "wayfarer-app",
				AccessTokenTTL:  15,
				RefreshTokenTTL: 10080,
			},
			Lockout: LockoutConfig{
				Threshold: 5,
				Duration:  15,
			},
			SweepInterval: 60,
		},
		Telemetry: TelemetryConfig{
			Bucket:        "wayfarer",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WAYFARER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("WAYFARER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("WAYFARER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("WAYFARER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Telemetry
	if v := os.Getenv("WAYFARER_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Auth - JWT secret (IMPORTANT: always set via environment in production)
	if v := os.Getenv("WAYFARER_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is REQUIRED. An empty or short secret would let an
	// attacker forge access tokens for any account.
	const minJWTSecretLength = 32
	if c.Auth.JWT.Secret == "" {
		errs = append(errs, "auth.jwt.secret is required (set WAYFARER_JWT_SECRET environment variable)")
	} else if len(c.Auth.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "auth.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Auth.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "auth.jwt.access_token_ttl must be positive")
	}
	if c.Auth.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "auth.jwt.refresh_token_ttl must be positive")
	}
	if c.Auth.Lockout.Threshold < 1 {
		errs = append(errs, "auth.lockout.threshold must be at least 1")
	}
	if c.Auth.Lockout.Duration < 1 {
		errs = append(errs, "auth.lockout.duration must be at least 1 minute")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Token == "" {
			errs = append(errs, "telemetry.token is required when telemetry is enabled (set WAYFARER_TELEMETRY_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// AccessTokenTTL returns the access token lifetime as a Duration.
func (c *AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenTTL) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a Duration.
func (c *AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTokenTTL) * time.Minute
}

// LockoutDuration returns the lockout window as a Duration.
func (c *AuthConfig) LockoutDuration() time.Duration {
	return time.Duration(c.Lockout.Duration) * time.Minute
}

// SweepTokensEvery returns the expired-token sweep interval as a Duration.
func (c *AuthConfig) SweepTokensEvery() time.Duration {
	return time.Duration(c.SweepInterval) * time.Minute
}
