package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. TRIAGE_DB_PATH.
const EnvPrefix = "TRIAGE"

// Auth modes.
const (
	AuthDevelopment = "development"
	AuthJWT         = "jwt"
)

// minSecretLen is the shortest accepted HS256 signing secret.
const minSecretLen = 16

// Config holds the service's runtime configuration.
type Config struct {
	ListenAddr         string `mapstructure:"listen_addr"`
	DBPath             string `mapstructure:"db_path"`
	RulesPath          string `mapstructure:"rules_path"`
	LogLevel           string `mapstructure:"log_level"`
	LogFormat          string `mapstructure:"log_format"`
	RecentDefaultLimit int    `mapstructure:"recent_default_limit"`
	RecentMaxLimit     int    `mapstructure:"recent_max_limit"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	BusyTimeoutMS      int    `mapstructure:"busy_timeout_ms"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int    `mapstructure:"rate_limit_burst"`
	DenialAuditPerMin  int    `mapstructure:"denial_audit_per_minute"`
	DenialAuditBurst   int    `mapstructure:"denial_audit_burst"`
	AuthMode           string `mapstructure:"auth_mode"`
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTIssuer          string `mapstructure:"jwt_issuer"`
	LegacyCasesPath    string `mapstructure:"legacy_cases_path"`
	LegacyChangesPath  string `mapstructure:"legacy_changes_path"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
	VignetteWorkers    int    `mapstructure:"vignette_workers"`
}

var defaults = map[string]any{
	"listen_addr":             ":9800",
	"db_path":                 "triage.db",
	"rules_path":              "",
	"log_level":               "info",
	"log_format":              "json",
	"recent_default_limit":    50,
	"recent_max_limit":        200,
	"max_open_conns":          4,
	"busy_timeout_ms":         5000,
	"rate_limit_per_minute":   60,
	"rate_limit_burst":        10,
	"denial_audit_per_minute": 30,
	"denial_audit_burst":      10,
	"auth_mode":               "",
	"jwt_secret":              "",
	"jwt_issuer":              "",
	"legacy_cases_path":       "",
	"legacy_changes_path":     "",
	"shutdown_timeout_sec":    10,
	"vignette_workers":        4,
}

// Load reads an optional YAML, JSON or TOML config file, applies
// TRIAGE_-prefixed environment overrides and defaults, and validates. An
// empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
		// Bind explicitly so Unmarshal sees env-only keys.
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, domain.WrapError(domain.ErrConfigInvalid, fmt.Errorf("read config file: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.WrapError(domain.ErrConfigInvalid, fmt.Errorf("decode config: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvedAuthMode returns the effective auth mode. When auth_mode is not
// set, a configured JWT secret selects jwt; otherwise development mode
// trusts the X-Actor header.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return strings.ToLower(c.AuthMode)
	}
	if c.JWTSecret != "" {
		return AuthJWT
	}
	return AuthDevelopment
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// Validate collects every configuration problem into one ErrConfigInvalid.
func (c *Config) Validate() error {
	var problems []string

	if c.ListenAddr == "" {
		problems = append(problems, "listen_addr is required")
	}
	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.RecentDefaultLimit <= 0 {
		problems = append(problems, "recent_default_limit must be positive")
	}
	if c.RecentMaxLimit <= 0 {
		problems = append(problems, "recent_max_limit must be positive")
	}
	if c.RecentDefaultLimit > c.RecentMaxLimit {
		problems = append(problems, "recent_default_limit must not exceed recent_max_limit")
	}
	if c.MaxOpenConns <= 0 {
		problems = append(problems, "max_open_conns must be positive")
	}
	if c.BusyTimeoutMS < 0 {
		problems = append(problems, "busy_timeout_ms must not be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		problems = append(problems, "rate_limit_per_minute must be positive")
	}
	if c.RateLimitBurst <= 0 {
		problems = append(problems, "rate_limit_burst must be positive")
	}
	if c.DenialAuditPerMin <= 0 {
		problems = append(problems, "denial_audit_per_minute must be positive")
	}
	if c.DenialAuditBurst <= 0 {
		problems = append(problems, "denial_audit_burst must be positive")
	}
	if c.ShutdownTimeoutSec <= 0 {
		problems = append(problems, "shutdown_timeout_sec must be positive")
	}
	if c.VignetteWorkers <= 0 {
		problems = append(problems, "vignette_workers must be positive")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		problems = append(problems, fmt.Sprintf("log_level %q is not a valid level", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "console" {
		problems = append(problems, fmt.Sprintf("log_format must be json or console, got %q", c.LogFormat))
	}

	switch c.ResolvedAuthMode() {
	case AuthDevelopment:
	case AuthJWT:
		if len(c.JWTSecret) < minSecretLen {
			problems = append(problems, fmt.Sprintf("jwt_secret must be at least %d bytes in jwt mode", minSecretLen))
		}
	default:
		problems = append(problems, fmt.Sprintf("auth_mode must be %q or %q, got %q", AuthDevelopment, AuthJWT, c.AuthMode))
	}

	if len(problems) > 0 {
		return domain.NewError(domain.ErrConfigInvalid,
			fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems))
	}
	return nil
}
