// Package config loads the gateway's JSON configuration file, expanding
// ${ENV_VAR} references before parsing and applying plain environment
// variable overrides on top. Environment variables always win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	env "github.com/caarlos0/env/v11"
)

// Config is the root of the gateway's configuration document (config/gateway.json).
type Config struct {
	Server     ServerConfig     `json:"server"`
	JWT        JWTConfig        `json:"jwt"`
	RateLimits RateLimitsConfig `json:"rate_limits"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Backends   BackendsConfig   `json:"backends"`
	Redis      RedisConfig      `json:"redis"`
	Cache      CacheConfig      `json:"cache"`
	Admin      AdminConfig      `json:"admin"`

	RoutesFile string `json:"-" env:"GATEWAY_ROUTES_FILE"`
}

type TLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

type ServerConfig struct {
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	MaxConnections int       `json:"max_connections"`
	MaxBodySize    int64     `json:"max_body_size"`
	TLS            TLSConfig `json:"tls"`
}

// JWTConfig configures token verification. PrivateKeyFile and
// AccessTokenExpiry are accepted but not used: the gateway only verifies
// tokens and never issues them.
type JWTConfig struct {
	Secret            string `json:"secret" env:"JWT_SECRET"`
	Issuer            string `json:"issuer"`
	Audience          string `json:"audience"`
	AccessTokenExpiry int    `json:"access_token_expiry"`
	Algorithm         string `json:"algorithm"`
	PublicKeyFile     string `json:"public_key_file"`
	PrivateKeyFile    string `json:"private_key_file"`
}

type WindowLimit struct {
	Requests int `json:"requests"`
	Window   int `json:"window"`
}

type RateLimitsConfig struct {
	Global           WindowLimit            `json:"global"`
	PerIP            WindowLimit            `json:"per_ip"`
	Endpoints        map[string]WindowLimit `json:"endpoints"`
	PerIPConnections int                    `json:"per_ip_connections"`
}

type CORSConfig struct {
	Enabled bool `json:"enabled"`
}

type SecurityConfig struct {
	MaxHeaderSize  int               `json:"max_header_size"`
	AllowedMethods []string          `json:"allowed_methods"`
	Headers        map[string]string `json:"headers"`
	CORS           CORSConfig        `json:"cors"`
	IPWhitelist    []string          `json:"ip_whitelist"`
	IPBlacklist    []string          `json:"ip_blacklist"`
	APIKeys        map[string]string `json:"api_keys"`
}

type LoggingConfig struct {
	File        string `json:"file"`
	MaxFileSize int    `json:"max_file_size"`
	MaxFiles    int    `json:"max_files"`
	Async       bool   `json:"async"`
	Level       string `json:"level" env:"LOG_LEVEL"`
	Format      string `json:"format"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold"`
	RecoveryTimeout  int `json:"recovery_timeout"`
}

type BackendsConfig struct {
	CircuitBreaker      CircuitBreakerConfig `json:"circuit_breaker"`
	HealthCheckInterval int                  `json:"health_check_interval"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" env:"REDIS_ENABLED"`
	URI      string `json:"uri" env:"REDIS_URI"`
	Host     string `json:"host" env:"REDIS_HOST"`
	Port     int    `json:"port" env:"REDIS_PORT"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
}

type CacheConfig struct {
	Enabled    bool `json:"enabled" env:"CACHE_ENABLED"`
	DefaultTTL int  `json:"default_ttl"`
}

type AdminConfig struct {
	Enabled bool   `json:"enabled" env:"ADMIN_ENABLED"`
	Token   string `json:"token" env:"ADMIN_TOKEN"`
}

// Defaults returns a Config populated with the specification's documented
// defaults. Load starts from this before applying the file and env
// overrides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxConnections: 1000,
			MaxBodySize:    10 << 20,
		},
		JWT: JWTConfig{
			Issuer:            "api-gateway",
			AccessTokenExpiry: 3600,
			Algorithm:         "HS256",
		},
		RateLimits: RateLimitsConfig{
			Global:           WindowLimit{Requests: 10000, Window: 60},
			PerIP:            WindowLimit{Requests: 100, Window: 60},
			Endpoints:        map[string]WindowLimit{},
			PerIPConnections: 50,
		},
		Security: SecurityConfig{
			MaxHeaderSize:  8192,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"},
			Headers: map[string]string{
				"x_content_type_options": "nosniff",
				"x_frame_options":        "DENY",
			},
			APIKeys: map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Backends: BackendsConfig{
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				RecoveryTimeout:  60,
			},
			HealthCheckInterval: 10,
		},
		Cache: CacheConfig{
			DefaultTTL: 300,
		},
		RoutesFile: "config/routes.json",
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces every ${ENV_VAR} reference in data with the value of
// the named environment variable, leaving unset references as an empty
// string. Unlike os.Expand this only recognizes the braced form, matching
// the specification's documented syntax.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads and parses the gateway configuration at path. It expands
// ${ENV_VAR} references in the raw file, unmarshals the result over
// Defaults, applies plain environment-variable overrides via struct tags,
// and validates the outcome.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	expanded := expandEnv(raw)
	if err := json.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the startup invariants the specification treats as
// fatal: a weak or missing JWT secret, an inconsistent TLS section, and an
// RS256 configuration missing its key files.
func Validate(cfg *Config) error {
	switch strings.ToUpper(cfg.JWT.Algorithm) {
	case "HS256":
		if len(cfg.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters for HS256, got %d", len(cfg.JWT.Secret))
		}
	case "RS256":
		if cfg.JWT.PublicKeyFile == "" {
			return fmt.Errorf("jwt.public_key_file is required for RS256")
		}
	default:
		return fmt.Errorf("unsupported jwt.algorithm %q: must be HS256 or RS256", cfg.JWT.Algorithm)
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}

	if cfg.Admin.Enabled && cfg.Admin.Token == "" {
		return fmt.Errorf("admin.token is required when admin.enabled is true")
	}

	return nil
}
