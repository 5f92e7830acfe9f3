package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/aggregate"
	"github.com/platinummonkey/heartbeat/pkg/cache"
	"github.com/platinummonkey/heartbeat/pkg/middleware"
	"github.com/platinummonkey/heartbeat/pkg/observability"
	"github.com/platinummonkey/heartbeat/pkg/storage"
)

// Storage types accepted by HEARTBEAT_STORAGE_TYPE.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite3"
	StoragePostgres = "postgres"
)

// Config holds all server configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Redis         storage.RedisConfig
	Cache         CacheConfig
	Aggregate     AggregateConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string

	// CORSOrigins may read the query API. /p always allows every origin.
	CORSOrigins []string
}

// StorageConfig selects and sizes the event store.
type StorageConfig struct {
	Type        string
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	AutoMigrate bool
}

// CacheConfig sizes the aggregate result cache. The Redis tier is used
// when a Redis URL is configured.
type CacheConfig struct {
	Enabled    bool
	MaxEntries int
	LocalTTL   time.Duration
	RedisTTL   time.Duration
}

// AggregateConfig holds query limits and the cache warmer schedule.
type AggregateConfig struct {
	Limits aggregate.Limits
	// WarmSchedule is a cron spec; empty disables warming.
	WarmSchedule string
}

// RateLimitConfig limits heartbeats per client IP. The limit is shared
// through Redis when a Redis URL is configured.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  logrus.Level
	LogFormat observability.LogFormat

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
	OTelMetrics        bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Aggregate:     loadAggregateConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HEARTBEAT_HOST", "0.0.0.0"),
		Port:            getEnv("HEARTBEAT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("HEARTBEAT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HEARTBEAT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("HEARTBEAT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("HEARTBEAT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HEARTBEAT_HEALTH_PORT", "9090"),
		CORSOrigins:     getEnvList("HEARTBEAT_CORS_ORIGINS"),
	}
}

func loadStorageConfig() StorageConfig {
	storageType := strings.ToLower(getEnv("HEARTBEAT_STORAGE_TYPE", StorageSQLite))
	if dialect, err := storage.ParseDialect(storageType); err == nil {
		storageType = string(dialect)
	}

	defaultURL := ""
	if storageType == StorageSQLite {
		defaultURL = "heartbeat.db"
	}

	return StorageConfig{
		Type:        storageType,
		URL:         getEnv("HEARTBEAT_DATABASE_URL", defaultURL),
		ReplicaURLs: getEnv("HEARTBEAT_DATABASE_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("HEARTBEAT_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("HEARTBEAT_DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration("HEARTBEAT_DATABASE_TIMEOUT", 10*time.Second),
		AutoMigrate: getEnvBool("HEARTBEAT_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("HEARTBEAT_REDIS_URL", ""),
		Password:   getEnv("HEARTBEAT_REDIS_PASSWORD", ""),
		DB:         getEnvInt("HEARTBEAT_REDIS_DB", 0),
		MaxRetries: getEnvInt("HEARTBEAT_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("HEARTBEAT_REDIS_POOL_SIZE", 10),
	}
}

func loadCacheConfig() CacheConfig {
	d := cache.DefaultConfig()
	return CacheConfig{
		Enabled:    getEnvBool("HEARTBEAT_CACHE_ENABLED", true),
		MaxEntries: getEnvInt("HEARTBEAT_CACHE_MAX_ENTRIES", d.MaxEntries),
		LocalTTL:   getEnvDuration("HEARTBEAT_CACHE_LOCAL_TTL", d.LocalTTL),
		RedisTTL:   getEnvDuration("HEARTBEAT_CACHE_REDIS_TTL", d.RedisTTL),
	}
}

func loadAggregateConfig() AggregateConfig {
	d := aggregate.DefaultLimits()
	return AggregateConfig{
		Limits: aggregate.Limits{
			SeriesDays:  getEnvInt("HEARTBEAT_SERIES_DAYS", d.SeriesDays),
			Leaderboard: getEnvInt("HEARTBEAT_LEADERBOARD_LIMIT", d.Leaderboard),
			Versions:    getEnvInt("HEARTBEAT_VERSIONS_LIMIT", d.Versions),
		},
		WarmSchedule: getEnv("HEARTBEAT_WARM_SCHEDULE", "@every 5m"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	d := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		Enabled:           getEnvBool("HEARTBEAT_RATE_LIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("HEARTBEAT_RATE_LIMIT_REQUESTS", d.RequestsPerWindow),
		Window:            getEnvDuration("HEARTBEAT_RATE_LIMIT_WINDOW", d.WindowDuration),
		Burst:             getEnvInt("HEARTBEAT_RATE_LIMIT_BURST", d.BurstSize),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("HEARTBEAT_LOG_LEVEL", "info")),
		LogFormat:          observability.LogFormat(strings.ToLower(getEnv("HEARTBEAT_LOG_FORMAT", string(observability.JSONFormat)))),
		MetricsEnabled:     getEnvBool("HEARTBEAT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("HEARTBEAT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("HEARTBEAT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("HEARTBEAT_OTEL_SERVICE_NAME", "heartbeat-server"),
		OTelServiceVersion: getEnv("HEARTBEAT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("HEARTBEAT_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("HEARTBEAT_OTEL_SAMPLE_RATIO", 1),
		OTelMetrics:        getEnvBool("HEARTBEAT_OTEL_METRICS", false),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.URL == "" {
			return fmt.Errorf("database path is required for sqlite3 storage")
		}
	case StoragePostgres:
		if c.Storage.URL == "" {
			return fmt.Errorf("database URL is required for postgres storage")
		}
		if c.Storage.MaxConns < 1 {
			return fmt.Errorf("database max conns must be positive")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite3, or postgres)", c.Storage.Type)
	}

	if c.Aggregate.Limits.SeriesDays < 1 || c.Aggregate.Limits.Leaderboard < 1 || c.Aggregate.Limits.Versions < 1 {
		return fmt.Errorf("aggregate limits must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow < 1 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requires positive requests and window")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Dialect returns the SQL dialect of the storage type. It fails for the
// memory store.
func (c StorageConfig) Dialect() (storage.Dialect, error) {
	return storage.ParseDialect(c.Type)
}

// ConnectionConfig builds the pool configuration of a SQL storage type.
func (c StorageConfig) ConnectionConfig() (storage.ConnectionConfig, error) {
	dialect, err := c.Dialect()
	if err != nil {
		return storage.ConnectionConfig{}, err
	}
	conn := storage.DefaultConnectionConfig(dialect, c.URL)
	conn.ReplicaURLs = storage.ParseReplicaURLs(c.ReplicaURLs)
	conn.MaxConns = c.MaxConns
	conn.MinConns = c.MinConns
	conn.Timeout = c.Timeout
	return conn, nil
}

// CacheSettings converts to the cache package configuration.
func (c CacheConfig) CacheSettings() cache.Config {
	d := cache.DefaultConfig()
	d.MaxEntries = c.MaxEntries
	d.LocalTTL = c.LocalTTL
	d.RedisTTL = c.RedisTTL
	return d
}

// Limiter converts to the middleware rate limit configuration.
func (c RateLimitConfig) Limiter() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{
		RequestsPerWindow: c.RequestsPerWindow,
		WindowDuration:    c.Window,
		BurstSize:         c.Burst,
	}
}

// OTel converts to the observability OpenTelemetry configuration.
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
		Metrics:        c.OTelMetrics,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
