// Package config provides centralized configuration management for the lead pipeline services.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tschelli/lead-lander-sub001/common/messaging"
)

var (
	globalConfig *Config
	once         sync.Once
)

// Config is the master configuration struct shared by the intake API and the dispatcher.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres       PostgresConfig `mapstructure:"postgres"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	MaxConns       int32          `mapstructure:"max_conns"`
	MinConns       int32          `mapstructure:"min_conns"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a postgres:// URL usable by both pgx and golang-migrate.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds token verification and audit signing secrets.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AuditSecret    string        `mapstructure:"audit_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// IntakeConfig holds public submission endpoint settings.
type IntakeConfig struct {
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	QuizSessionTTL     time.Duration `mapstructure:"quiz_session_ttl"`
	RateLimitEnabled   bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	// StatsFlushInterval is how often per-client intake counters are written to Redis.
	StatsFlushInterval time.Duration `mapstructure:"stats_flush_interval"`
}

// DeliveryConfig holds dispatcher retry and concurrency settings.
type DeliveryConfig struct {
	Workers           int           `mapstructure:"workers"`
	MaxPerClient      int           `mapstructure:"max_per_client"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	StoreRetryDelay   time.Duration `mapstructure:"store_retry_delay"`
	BackfillOlderThan time.Duration `mapstructure:"backfill_older_than"`
}

// QueueConfig selects and tunes the delivery queue backend.
type QueueConfig struct {
	// Backend is "jetstream" or "memory".
	Backend      string        `mapstructure:"backend"`
	Stream       string        `mapstructure:"stream"`
	Subject      string        `mapstructure:"subject"`
	Consumer     string        `mapstructure:"consumer"`
	AckWait      time.Duration `mapstructure:"ack_wait"`
	AdmissionTTL time.Duration `mapstructure:"admission_ttl"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// MustLoad loads the configuration and panics on error.
// This initializes the global singleton.
func MustLoad(serviceName string) {
	once.Do(func() {
		cfg, err := Load(serviceName)
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
		globalConfig = cfg
	})
}

// GetConfig returns the global configuration singleton.
// Panics if MustLoad has not been called first.
func GetConfig() *Config {
	if globalConfig == nil {
		panic("config not initialized - call MustLoad first")
	}
	return globalConfig
}

// Load reads configuration from $LEADS_CONFIG_DIR/config.yaml and LEADS_* environment variables.
// serviceName selects the default HTTP port.
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	setDefaults(v, serviceName)

	configDir := os.Getenv("LEADS_CONFIG_DIR")
	if configDir == "" {
		configDir = "/etc/leads"
	}

	configPath := fmt.Sprintf("%s/config.yaml", configDir)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// LEADS_DATABASE_POSTGRES_HOST overrides database.postgres.host, etc.
	v.SetEnvPrefix("LEADS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// viper reports a missing explicit file as a PathError, not ConfigFileNotFoundError
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1, got %d", c.Delivery.MaxAttempts)
	}
	if c.Delivery.Workers < 1 {
		return fmt.Errorf("delivery.workers must be at least 1, got %d", c.Delivery.Workers)
	}
	if c.Delivery.BaseDelay <= 0 || c.Delivery.MaxDelay < c.Delivery.BaseDelay {
		return fmt.Errorf("delivery.base_delay must be positive and not exceed delivery.max_delay")
	}
	switch c.Queue.Backend {
	case "jetstream":
		// Intake and dispatcher share job admission through Redis.
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.backend jetstream requires redis.enabled")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown queue.backend %q", c.Queue.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper, serviceName string) {
	port := 8080
	if serviceName == "dispatcher" {
		port = 8081
	}

	v.SetDefault("server.port", port)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "leads")
	v.SetDefault("database.postgres.user", "leads")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.migrations_path", "file://migrations")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.jwt_secret", "change-this-in-production")
	v.SetDefault("auth.audit_secret", "change-this-in-production")
	v.SetDefault("auth.access_token_ttl", "1h")

	v.SetDefault("intake.max_body_bytes", 65536)
	v.SetDefault("intake.quiz_session_ttl", "2h")
	v.SetDefault("intake.rate_limit_enabled", true)
	v.SetDefault("intake.rate_limit_requests", 30)
	v.SetDefault("intake.rate_limit_window", "1m")
	v.SetDefault("intake.stats_flush_interval", "10s")

	v.SetDefault("delivery.workers", 8)
	v.SetDefault("delivery.max_per_client", 0)
	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("delivery.base_delay", "30s")
	v.SetDefault("delivery.max_delay", "30m")
	v.SetDefault("delivery.request_timeout", "10s")
	v.SetDefault("delivery.store_retry_delay", "5s")
	v.SetDefault("delivery.backfill_older_than", "15m")

	v.SetDefault("queue.backend", "jetstream")
	v.SetDefault("queue.stream", messaging.StreamLeadDelivery)
	v.SetDefault("queue.subject", messaging.SubjectLeadDelivery)
	v.SetDefault("queue.consumer", messaging.ConsumerDispatcher)
	v.SetDefault("queue.ack_wait", "60s")
	v.SetDefault("queue.admission_ttl", "72h")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
}
