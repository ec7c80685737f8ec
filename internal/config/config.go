// Package config loads service configuration from file, environment and
// defaults using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GATEKEEPER_SERVER_PORT.
const EnvPrefix = "GATEKEEPER"

type Config struct {
	Environment  string             `mapstructure:"environment" yaml:"environment"`
	LogLevel     string             `mapstructure:"log_level" yaml:"log_level"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Redis        RedisConfig        `mapstructure:"redis" yaml:"redis"`
	Authority    AuthorityConfig    `mapstructure:"authority" yaml:"authority"`
	Auth         AuthConfig         `mapstructure:"auth" yaml:"auth"`
	Checker      CheckerConfig      `mapstructure:"checker" yaml:"checker"`
	Verification VerificationConfig `mapstructure:"verification" yaml:"verification"`
	Limits       LimitsConfig       `mapstructure:"limits" yaml:"limits"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry" yaml:"telemetry"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

type DatabaseConfig struct {
	Driver           string `mapstructure:"driver" yaml:"driver"`
	Host             string `mapstructure:"host" yaml:"host"`
	Port             int    `mapstructure:"port" yaml:"port"`
	User             string `mapstructure:"user" yaml:"user"`
	Password         string `mapstructure:"password" yaml:"-"`
	DBName           string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode          string `mapstructure:"sslmode" yaml:"sslmode"`
	DatabaseURL      string `mapstructure:"url" yaml:"-"`
	MaxOpenConns     int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns     int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime  string `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  string `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ApplicationName  string `mapstructure:"application_name" yaml:"application_name"`
	ConnectTimeout   int    `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	StatementTimeout int    `mapstructure:"statement_timeout" yaml:"statement_timeout"`
	SQLitePath       string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthorityConfig points at the remote user/OTP/moderation service.
type AuthorityConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"-"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"-"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
}

type CheckerConfig struct {
	DebounceDelay     time.Duration `mapstructure:"debounce_delay" yaml:"debounce_delay"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	UsernameMinLength int           `mapstructure:"username_min_length" yaml:"username_min_length"`
	PhoneMinLength    int           `mapstructure:"phone_min_length" yaml:"phone_min_length"`
	FormIdleTimeout   time.Duration `mapstructure:"form_idle_timeout" yaml:"form_idle_timeout"`
}

type VerificationConfig struct {
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout"`
}

type LimitsConfig struct {
	// Store is one of memory, redis or sql.
	Store    string        `mapstructure:"store" yaml:"store"`
	Block    int           `mapstructure:"block" yaml:"block"`
	Report   int           `mapstructure:"report" yaml:"report"`
	Timezone string        `mapstructure:"timezone" yaml:"timezone"`
	RedisTTL time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl"`
}

// Location resolves Timezone, defaulting to the process local zone.
func (c LimitsConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

type TelemetryConfig struct {
	SentryDSN        string  `mapstructure:"sentry_dsn" yaml:"-"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate" yaml:"traces_sample_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.requests_per_minute", 120)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "gatekeeper")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.application_name", "gatekeeper")
	v.SetDefault("database.connect_timeout", 10)
	v.SetDefault("database.statement_timeout", 0)
	v.SetDefault("database.sqlite_path", "gatekeeper.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("authority.base_url", "http://localhost:4000")
	v.SetDefault("authority.api_key", "")
	v.SetDefault("authority.timeout", 15*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("checker.debounce_delay", 750*time.Millisecond)
	v.SetDefault("checker.cache_ttl", 5*time.Minute)
	v.SetDefault("checker.username_min_length", 3)
	v.SetDefault("checker.phone_min_length", 7)
	v.SetDefault("checker.form_idle_timeout", 15*time.Minute)

	v.SetDefault("verification.session_idle_timeout", 15*time.Minute)

	v.SetDefault("limits.store", "sql")
	v.SetDefault("limits.block", 20)
	v.SetDefault("limits.report", 10)
	v.SetDefault("limits.timezone", "")
	v.SetDefault("limits.redis_ttl", 48*time.Hour)

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.traces_sample_rate", 0.1)
}

// Load reads config.yaml from the working directory, ./config or
// $HOME/.gatekeeper, then applies GATEKEEPER_* environment overrides.
// A missing file is not an error.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.gatekeeper")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return errors.New("database.sqlite_path is required when database.driver is sqlite")
		}
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres (got %q)", c.Database.Driver)
	}

	switch c.Limits.Store {
	case "memory", "sql":
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("limits.store is redis but redis.enabled is false")
		}
	default:
		return fmt.Errorf("limits.store must be one of memory, redis, sql (got %q)", c.Limits.Store)
	}
	if c.Limits.Block < 0 || c.Limits.Report < 0 {
		return errors.New("limits.block and limits.report must not be negative")
	}
	if _, err := c.Limits.Location(); err != nil {
		return fmt.Errorf("limits.timezone: %w", err)
	}

	if c.Environment == "production" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters in production")
	}
	return nil
}
