// Package config loads and validates the Remap backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the RMB_ prefix (e.g., RMB_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Paypal        PaypalConfig        `mapstructure:"paypal"`
	TaskQueue     TaskQueueConfig     `mapstructure:"task_queue"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// DSN builds the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// AuthConfig holds caller authentication configuration.
//
// Two verification paths exist: when OIDC is enabled, incoming Bearer tokens
// are verified as ID tokens against the issuer; otherwise they are verified
// as HS256 JWTs signed with JWTSecret. JWTSecret is also used to sign the
// time-boxed notification tokens sent to the external notification channel.
type AuthConfig struct {
	JWTSecret string     `mapstructure:"jwt_secret"`
	OIDC      OIDCConfig `mapstructure:"oidc"`
}

// OIDCConfig holds OIDC ID-token verification configuration
type OIDCConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IssuerURL string `mapstructure:"issuer_url"`
	ClientID  string `mapstructure:"client_id"`
}

// IdentityConfig holds the identity service connection configuration
type IdentityConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PaypalConfig holds payment gateway configuration.
// Environment is always explicit ("sandbox" or "production") — never inferred.
type PaypalConfig struct {
	Environment  string        `mapstructure:"environment"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TaskQueueConfig holds the build task queue configuration
type TaskQueueConfig struct {
	URL                 string        `mapstructure:"url"`
	BuildServerURL      string        `mapstructure:"build_server_url"`
	ServiceAccountEmail string        `mapstructure:"service_account_email"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// NotificationsConfig holds outbound notification settings
type NotificationsConfig struct {
	DiscordWebhookURL string        `mapstructure:"discord_webhook_url"`
	GASURL            string        `mapstructure:"gas_url"`
	AdminBaseURL      string        `mapstructure:"admin_base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds the optional Redis connection used for the review
// workflow dedup lock and distributed rate limiting. When disabled, both
// fall back to in-process implementations.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig holds CORS and rate limiting configuration
type SecurityConfig struct {
	CORS         CORSConfig        `mapstructure:"cors"`
	RateLimiting RateLimitSettings `mapstructure:"rate_limiting"`
}

// CORSConfig holds CORS settings for the browser frontend
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitSettings holds request rate limiting configuration
type RateLimitSettings struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds metrics configuration
type TelemetryConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// expandEnv expands ${VAR} references in configuration values so secrets can
// be injected indirectly (e.g. database.password: ${DB_PASSWORD}).
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}"))
	}
	return value
}

// bindEnvVars explicitly binds environment variables for nested structures.
// AutomaticEnv() alone does not cooperate with Unmarshal(), so every key that
// may be overridden from the environment is listed here.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		"auth.jwt_secret",
		"auth.oidc.enabled",
		"auth.oidc.issuer_url",
		"auth.oidc.client_id",

		"identity.base_url",
		"identity.token",
		"identity.timeout",

		"paypal.environment",
		"paypal.client_id",
		"paypal.client_secret",
		"paypal.timeout",

		"task_queue.url",
		"task_queue.build_server_url",
		"task_queue.service_account_email",
		"task_queue.timeout",

		"notifications.discord_webhook_url",
		"notifications.gas_url",
		"notifications.admin_base_url",
		"notifications.timeout",

		"redis.enabled",
		"redis.address",
		"redis.password",
		"redis.db",

		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",

		"logging.level",
		"logging.format",

		"telemetry.enabled",
		"telemetry.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/remap-backend")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("RMB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Auth.JWTSecret = expandEnv(cfg.Auth.JWTSecret)
	cfg.Paypal.ClientSecret = expandEnv(cfg.Paypal.ClientSecret)
	cfg.Identity.Token = expandEnv(cfg.Identity.Token)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "remap")
	v.SetDefault("database.user", "remap")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("auth.oidc.enabled", false)

	v.SetDefault("identity.timeout", "10s")

	v.SetDefault("paypal.environment", "sandbox")
	v.SetDefault("paypal.timeout", "10s")

	v.SetDefault("task_queue.timeout", "10s")

	v.SetDefault("notifications.timeout", "10s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate checks that required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Auth.OIDC.Enabled {
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
	}
	switch c.Paypal.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("paypal.environment must be %q or %q, got %q", "sandbox", "production", c.Paypal.Environment)
	}
	return nil
}
