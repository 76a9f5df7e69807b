package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Event     EventConfig     `mapstructure:"event"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Taxonomy  TaxonomyConfig  `mapstructure:"taxonomy"`
	Merge     MergeConfig     `mapstructure:"merge"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings. With the sqlite driver
// only Path and the pool settings are used.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"` // sqlite file, ":memory:" for an ephemeral store
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds Redis connection settings. When disabled the projector
// de-duplicates in process memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig holds bearer token verification settings. The token subject
// becomes the actor recorded on commands.
type AuthConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Secret       string `mapstructure:"secret"`
	Issuer       string `mapstructure:"issuer"`
	DefaultActor string `mapstructure:"default_actor"` // actor used when auth is disabled or no token is sent
}

// EventConfig holds event relay and projection settings
type EventConfig struct {
	RelayEnabled   bool          `mapstructure:"relay_enabled"`
	BatchSize      int           `mapstructure:"batch_size"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RelayGrace     time.Duration `mapstructure:"relay_grace"` // fresh events are left to the command path this long
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	RebuildOnStart bool          `mapstructure:"rebuild_on_start"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTEL Collector gRPC endpoint, e.g. "localhost:4317"
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`     // 0.0-1.0
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`      // bridge zap records to the OTLP logs exporter
	ProfilingEnabled  bool          `mapstructure:"profiling_enabled"` // continuous profiling with Pyroscope
	ProfilingAddress  string        `mapstructure:"profiling_address"` // Pyroscope server, e.g. "http://localhost:4040"
}

// TaxonomyConfig points at an optional YAML file of custom attribute kinds
type TaxonomyConfig struct {
	Path string `mapstructure:"path"`
}

// MergeConfig holds identity disambiguation settings
type MergeConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}


// defaults lists every key with its built-in value. Viper only resolves
// environment overrides for keys it already knows, so optional settings are
// registered with their zero value.
var defaults = map[string]any{
	"app.name": "persona",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             DriverPostgres,
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "persona",
	"database.sslmode":            "disable",
	"database.path":               "persona.db",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"auth.enabled":       false,
	"auth.secret":        "",
	"auth.issuer":        "persona",
	"auth.default_actor": "system",

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"event.relay_enabled":    true,
	"event.batch_size":       100,
	"event.poll_interval":    5 * time.Second,
	"event.relay_grace":      10 * time.Second,
	"event.idempotency_ttl":  24 * time.Hour,
	"event.rebuild_on_start": false,

	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    15 * time.Second,
	"http.idle_timeout":     60 * time.Second,
	"http.shutdown_timeout": 10 * time.Second,
	"http.max_header_bytes": 1 << 20,
	"http.max_body_size":     int64(1 << 20),

	// An empty origin list allows no cross-origin requests.
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "PUT", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID", "If-Match"},
	"http.trusted_proxies":    []string{},

	"telemetry.enabled":                 false,
	"telemetry.metrics_enabled":         false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "",
	"telemetry.insecure":                false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
	"telemetry.logs_enabled":            false,
	"telemetry.profiling_enabled":       false,
	"telemetry.profiling_address":       "",

	"taxonomy.path": "",

	"merge.threshold": 0.7,
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with PERSONA_ prefix (e.g., PERSONA_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/persona")
	v.AddConfigPath("/app")
	return load(v)
}

// LoadFile loads configuration from the TOML file at path, still honoring
// PERSONA_ environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("PERSONA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Event.BatchSize <= 0 {
		return fmt.Errorf("event.batch_size must be positive")
	}
	if c.Event.RelayGrace < 0 {
		return fmt.Errorf("event.relay_grace cannot be negative")
	}
	if c.Merge.Threshold < 0 || c.Merge.Threshold > 1 {
		return fmt.Errorf("merge.threshold must be between 0.0 and 1.0, got %f", c.Merge.Threshold)
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingAddress == "" {
		return fmt.Errorf("telemetry.profiling_address is required when profiling is enabled")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}

	if c.App.Env == "production" {
		if !c.Auth.Enabled {
			return fmt.Errorf("auth must be enabled in production")
		}
		if len(c.Auth.Secret) < 32 {
			return fmt.Errorf("auth.secret must be at least 32 characters in production")
		}
		if c.Database.Driver == DriverPostgres {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}
	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
