package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lowtide/lowtide/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage StorageConfig

	// Solver runtime options (initial values; updatable at runtime)
	Solver SolverConfig

	// Observability configuration
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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig holds backing store configuration
type StorageConfig struct {
	// Type selects the entity store: "memory" or "postgres"
	Type string

	PostgresURL      string
	PostgresMaxConns int

	// Redis backs the shared gas price feed
	RedisURL     string
	RedisFeedKey string

	// SQLite file for the solver's execution history archive
	HistoryPath string
}

// SolverConfig holds the initial execution queue options
type SolverConfig struct {
	MaxGasPrice       int64
	OptimalGasPrice   int64
	ExecutionBuffer   time.Duration
	MaxExecutionDelay time.Duration
	AutoExecution     bool

	// Treasury is the destination address for collected payments
	Treasury string

	// OptionsFile, when set, is watched for runtime option updates
	OptionsFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Solver:        loadSolverConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("LOWTIDE_HOST", "0.0.0.0"),
		Port:            getEnv("LOWTIDE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("LOWTIDE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LOWTIDE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("LOWTIDE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LOWTIDE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("LOWTIDE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:             getEnv("LOWTIDE_STORAGE_TYPE", "memory"),
		PostgresURL:      getEnv("LOWTIDE_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("LOWTIDE_POSTGRES_MAX_CONNS", 25),
		RedisURL:         getEnv("LOWTIDE_REDIS_URL", ""),
		RedisFeedKey:     getEnv("LOWTIDE_REDIS_FEED_KEY", ""),
		HistoryPath:      getEnv("LOWTIDE_HISTORY_PATH", "lowtide-history.db"),
	}
}

// loadSolverConfig loads the initial solver options from environment
func loadSolverConfig() SolverConfig {
	return SolverConfig{
		MaxGasPrice:       getEnvInt64("LOWTIDE_MAX_GAS_PRICE", 100),
		OptimalGasPrice:   getEnvInt64("LOWTIDE_OPTIMAL_GAS_PRICE", 50),
		ExecutionBuffer:   getEnvDuration("LOWTIDE_EXECUTION_BUFFER", time.Hour),
		MaxExecutionDelay: getEnvDuration("LOWTIDE_MAX_EXECUTION_DELAY", 6*time.Hour),
		AutoExecution:     getEnvBool("LOWTIDE_AUTO_EXECUTION", true),
		Treasury:          getEnv("LOWTIDE_TREASURY", "treasury"),
		OptionsFile:       getEnv("LOWTIDE_OPTIONS_FILE", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("LOWTIDE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("LOWTIDE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	// Validate solver config
	if c.Solver.MaxGasPrice <= 0 {
		return fmt.Errorf("max gas price must be positive")
	}
	if c.Solver.OptimalGasPrice <= 0 {
		return fmt.Errorf("optimal gas price must be positive")
	}
	if c.Solver.OptimalGasPrice > c.Solver.MaxGasPrice {
		return fmt.Errorf("optimal gas price must not exceed max gas price")
	}
	if c.Solver.ExecutionBuffer <= 0 {
		return fmt.Errorf("execution buffer must be positive")
	}
	if c.Solver.MaxExecutionDelay < c.Solver.ExecutionBuffer {
		return fmt.Errorf("max execution delay must be at least the execution buffer")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
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
