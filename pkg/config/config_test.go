package config

import (
	"os"
	"testing"
	"time"

	"github.com/lowtide/lowtide/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt64 tests the getEnvInt64 helper function
func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int64
		envValue     string
		want         int64
	}{
		{
			name:         "returns parsed int64",
			key:          "TEST_INT64",
			defaultValue: 10,
			envValue:     "9223372036854775807",
			want:         9223372036854775807,
		},
		{
			name:         "returns default for invalid int64",
			key:          "TEST_INT64",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT64_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt64(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt64() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseLogLevel tests the parseLogLevel function
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  observability.LogLevel
	}{
		{
			name:  "debug",
			level: "debug",
			want:  observability.DebugLevel,
		},
		{
			name:  "DEBUG uppercase",
			level: "DEBUG",
			want:  observability.DebugLevel,
		},
		{
			name:  "info",
			level: "info",
			want:  observability.InfoLevel,
		},
		{
			name:  "warn",
			level: "warn",
			want:  observability.WarnLevel,
		},
		{
			name:  "warning",
			level: "warning",
			want:  observability.WarnLevel,
		},
		{
			name:  "error",
			level: "error",
			want:  observability.ErrorLevel,
		},
		{
			name:  "invalid defaults to info",
			level: "invalid",
			want:  observability.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLogLevel(tt.level)
			if got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	// Save current env and restore after test
	originalEnv := map[string]string{
		"LOWTIDE_HOST":             os.Getenv("LOWTIDE_HOST"),
		"LOWTIDE_PORT":             os.Getenv("LOWTIDE_PORT"),
		"LOWTIDE_READ_TIMEOUT":     os.Getenv("LOWTIDE_READ_TIMEOUT"),
		"LOWTIDE_WRITE_TIMEOUT":    os.Getenv("LOWTIDE_WRITE_TIMEOUT"),
		"LOWTIDE_IDLE_TIMEOUT":     os.Getenv("LOWTIDE_IDLE_TIMEOUT"),
		"LOWTIDE_SHUTDOWN_TIMEOUT": os.Getenv("LOWTIDE_SHUTDOWN_TIMEOUT"),
		"LOWTIDE_HEALTH_PORT":      os.Getenv("LOWTIDE_HEALTH_PORT"),
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ServerConfig{
				Host:            "0.0.0.0",
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				HealthPort:      "9090",
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"LOWTIDE_HOST":             "localhost",
				"LOWTIDE_PORT":             "3000",
				"LOWTIDE_READ_TIMEOUT":     "30s",
				"LOWTIDE_WRITE_TIMEOUT":    "30s",
				"LOWTIDE_IDLE_TIMEOUT":     "120s",
				"LOWTIDE_SHUTDOWN_TIMEOUT": "60s",
				"LOWTIDE_HEALTH_PORT":      "9091",
			},
			want: ServerConfig{
				Host:            "localhost",
				Port:            "3000",
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 60 * time.Second,
				HealthPort:      "9091",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for k := range originalEnv {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadServerConfig()
			if got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestLoadStorageConfig tests the loadStorageConfig function
func TestLoadStorageConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"LOWTIDE_STORAGE_TYPE",
		"LOWTIDE_POSTGRES_URL",
		"LOWTIDE_POSTGRES_MAX_CONNS",
		"LOWTIDE_REDIS_URL",
		"LOWTIDE_REDIS_FEED_KEY",
		"LOWTIDE_HISTORY_PATH",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads default config", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadStorageConfig()
		if cfg.Type != "memory" {
			t.Errorf("Type = %v, want memory", cfg.Type)
		}
		if cfg.PostgresMaxConns != 25 {
			t.Errorf("PostgresMaxConns = %v, want 25", cfg.PostgresMaxConns)
		}
		if cfg.HistoryPath != "lowtide-history.db" {
			t.Errorf("HistoryPath = %v, want lowtide-history.db", cfg.HistoryPath)
		}
	})

	t.Run("loads postgres config from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("LOWTIDE_STORAGE_TYPE", "postgres")
		os.Setenv("LOWTIDE_POSTGRES_URL", "postgres://localhost/db")
		os.Setenv("LOWTIDE_POSTGRES_MAX_CONNS", "50")

		cfg := loadStorageConfig()
		if cfg.Type != "postgres" {
			t.Errorf("Type = %v, want postgres", cfg.Type)
		}
		if cfg.PostgresURL != "postgres://localhost/db" {
			t.Errorf("PostgresURL = %v, want postgres://localhost/db", cfg.PostgresURL)
		}
		if cfg.PostgresMaxConns != 50 {
			t.Errorf("PostgresMaxConns = %v, want 50", cfg.PostgresMaxConns)
		}
	})

	t.Run("loads redis config from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("LOWTIDE_REDIS_URL", "redis://localhost:6379")
		os.Setenv("LOWTIDE_REDIS_FEED_KEY", "prices:mainnet")

		cfg := loadStorageConfig()
		if cfg.RedisURL != "redis://localhost:6379" {
			t.Errorf("RedisURL = %v, want redis://localhost:6379", cfg.RedisURL)
		}
		if cfg.RedisFeedKey != "prices:mainnet" {
			t.Errorf("RedisFeedKey = %v, want prices:mainnet", cfg.RedisFeedKey)
		}
	})
}

// TestLoadSolverConfig tests the loadSolverConfig function
func TestLoadSolverConfig(t *testing.T) {
	envVars := []string{
		"LOWTIDE_MAX_GAS_PRICE",
		"LOWTIDE_OPTIMAL_GAS_PRICE",
		"LOWTIDE_EXECUTION_BUFFER",
		"LOWTIDE_MAX_EXECUTION_DELAY",
		"LOWTIDE_AUTO_EXECUTION",
		"LOWTIDE_TREASURY",
		"LOWTIDE_OPTIONS_FILE",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadSolverConfig()
		if cfg.MaxGasPrice != 100 {
			t.Errorf("MaxGasPrice = %v, want 100", cfg.MaxGasPrice)
		}
		if cfg.OptimalGasPrice != 50 {
			t.Errorf("OptimalGasPrice = %v, want 50", cfg.OptimalGasPrice)
		}
		if cfg.ExecutionBuffer != time.Hour {
			t.Errorf("ExecutionBuffer = %v, want 1h", cfg.ExecutionBuffer)
		}
		if cfg.MaxExecutionDelay != 6*time.Hour {
			t.Errorf("MaxExecutionDelay = %v, want 6h", cfg.MaxExecutionDelay)
		}
		if !cfg.AutoExecution {
			t.Errorf("AutoExecution = %v, want true", cfg.AutoExecution)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("LOWTIDE_MAX_GAS_PRICE", "200")
		os.Setenv("LOWTIDE_OPTIMAL_GAS_PRICE", "80")
		os.Setenv("LOWTIDE_EXECUTION_BUFFER", "30m")
		os.Setenv("LOWTIDE_MAX_EXECUTION_DELAY", "12h")
		os.Setenv("LOWTIDE_AUTO_EXECUTION", "false")
		os.Setenv("LOWTIDE_TREASURY", "vault")

		cfg := loadSolverConfig()
		if cfg.MaxGasPrice != 200 {
			t.Errorf("MaxGasPrice = %v, want 200", cfg.MaxGasPrice)
		}
		if cfg.OptimalGasPrice != 80 {
			t.Errorf("OptimalGasPrice = %v, want 80", cfg.OptimalGasPrice)
		}
		if cfg.ExecutionBuffer != 30*time.Minute {
			t.Errorf("ExecutionBuffer = %v, want 30m", cfg.ExecutionBuffer)
		}
		if cfg.MaxExecutionDelay != 12*time.Hour {
			t.Errorf("MaxExecutionDelay = %v, want 12h", cfg.MaxExecutionDelay)
		}
		if cfg.AutoExecution {
			t.Errorf("AutoExecution = %v, want false", cfg.AutoExecution)
		}
		if cfg.Treasury != "vault" {
			t.Errorf("Treasury = %v, want vault", cfg.Treasury)
		}
	})
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	validSolver := SolverConfig{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
	}

	t.Run("missing server port", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "", HealthPort: "9090"},
		}
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing health port", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: ""},
		}
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "health port is required" {
			t.Errorf("Validate() error = %v, want 'health port is required'", err.Error())
		}
	})

	t.Run("same server and health port", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "8080"},
		}
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port and health port must be different" {
			t.Errorf("Validate() error = %v, want 'server port and health port must be different'", err.Error())
		}
	})

	t.Run("postgres storage without postgres url", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: validSolver,
		}
		cfg.Storage.Type = "postgres"
		cfg.Storage.PostgresURL = ""

		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "postgres URL is required for postgres storage" {
			t.Errorf("Validate() error = %v, want 'postgres URL is required for postgres storage'", err.Error())
		}
	})

	t.Run("invalid storage type", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: validSolver,
		}
		cfg.Storage.Type = "filesystem"

		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		expectedErr := "invalid storage type: filesystem (must be memory or postgres)"
		if err != nil && err.Error() != expectedErr {
			t.Errorf("Validate() error = %v, want %v", err.Error(), expectedErr)
		}
	})

	t.Run("non-positive max gas price", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: SolverConfig{MaxGasPrice: 0, OptimalGasPrice: 50, ExecutionBuffer: time.Hour, MaxExecutionDelay: 6 * time.Hour},
		}
		cfg.Storage.Type = "memory"

		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("optimal above max gas price", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: SolverConfig{MaxGasPrice: 40, OptimalGasPrice: 50, ExecutionBuffer: time.Hour, MaxExecutionDelay: 6 * time.Hour},
		}
		cfg.Storage.Type = "memory"

		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "optimal gas price must not exceed max gas price" {
			t.Errorf("Validate() error = %v, want 'optimal gas price must not exceed max gas price'", err.Error())
		}
	})

	t.Run("delay below buffer", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: SolverConfig{MaxGasPrice: 100, OptimalGasPrice: 50, ExecutionBuffer: time.Hour, MaxExecutionDelay: time.Minute},
		}
		cfg.Storage.Type = "memory"

		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("valid memory config", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: validSolver,
		}
		cfg.Storage.Type = "memory"

		err := cfg.Validate()
		if err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("valid postgres config", func(t *testing.T) {
		cfg := Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Solver: validSolver,
		}
		cfg.Storage.Type = "postgres"
		cfg.Storage.PostgresURL = "postgres://localhost/db"

		err := cfg.Validate()
		if err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	envVars := []string{
		"LOWTIDE_PORT",
		"LOWTIDE_HEALTH_PORT",
		"LOWTIDE_STORAGE_TYPE",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"LOWTIDE_PORT":         "8080",
				"LOWTIDE_HEALTH_PORT":  "9090",
				"LOWTIDE_STORAGE_TYPE": "memory",
			},
			wantErr: false,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"LOWTIDE_PORT":        "8080",
				"LOWTIDE_HEALTH_PORT": "8080",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
