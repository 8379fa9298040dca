// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings, and carries the solver's runtime-tunable
// options (price ceiling, optimal target, execution buffer, delay grace period,
// auto-execution toggle) behind a lock with optional hot reload from a JSON file.
//
// # Configuration Structure
//
// Server settings:
//
//	LOWTIDE_HOST="0.0.0.0"
//	LOWTIDE_PORT="8080"
//	LOWTIDE_HEALTH_PORT="9090"
//	LOWTIDE_READ_TIMEOUT="15s"
//	LOWTIDE_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	LOWTIDE_STORAGE_TYPE="postgres"  # memory, postgres
//	LOWTIDE_POSTGRES_URL="postgres://localhost/lowtide"
//	LOWTIDE_POSTGRES_MAX_CONNS="25"
//	LOWTIDE_REDIS_URL="redis://localhost:6379"
//	LOWTIDE_HISTORY_PATH="lowtide-history.db"
//
// Solver settings:
//
//	LOWTIDE_MAX_GAS_PRICE="100"
//	LOWTIDE_OPTIMAL_GAS_PRICE="50"
//	LOWTIDE_EXECUTION_BUFFER="1h"
//	LOWTIDE_MAX_EXECUTION_DELAY="6h"
//	LOWTIDE_AUTO_EXECUTION="true"
//	LOWTIDE_OPTIONS_FILE="/etc/lowtide/options.json"
//
// Observability settings:
//
//	LOWTIDE_LOG_LEVEL="info"  # debug, info, warn, error
//	LOWTIDE_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	opts, err := config.NewOptions(cfg.Solver)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/solver: consumes Options per drain pass
//   - pkg/observability: Uses observability configuration
package config
