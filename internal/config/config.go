package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"fairnb/internal"
	"fairnb/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Paths   PathConfig
	Search  SearchConfig
	Solver  SolverConfig
	Store   StoreConfig
	Metrics MetricsConfig
	Sweep   SweepConfig
	Log     LogConfig
}

// PathConfig holds file system paths
type PathConfig struct {
	DataDir string
	OutDir  string
}

// SearchConfig holds pattern-search and loop settings
type SearchConfig struct {
	Budget        time.Duration
	MaxIterations int
	StopAfterK    bool
}

// SolverConfig holds constrained-fit settings
type SolverConfig struct {
	Tolerance     float64
	MaxIterations int
}

// StoreConfig holds the run-history database. An empty DSN disables it.
type StoreConfig struct {
	DSN string
}

// MetricsConfig holds the optional metrics endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string
}

// SweepConfig holds grid sweep settings
type SweepConfig struct {
	Concurrency int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level logrus.Level
}

// LoadEnv loads an optional .env file into the process environment.
// Variables already set are not overridden.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to load .env")
	}
	return nil
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}
	var err error

	// Load path configuration
	config.Paths = PathConfig{
		DataDir: getEnvOrDefault("DATA_DIR", "data"),
		OutDir:  getEnvOrDefault("OUT_DIR", "output"),
	}

	// Load search configuration
	if config.Search.Budget, err = getEnvDurationOrDefault("SEARCH_BUDGET", 1800*time.Second); err != nil {
		return nil, err
	}
	if config.Search.MaxIterations, err = getEnvIntOrDefault("MAX_ITERATIONS", 30); err != nil {
		return nil, err
	}
	if config.Search.StopAfterK, err = getEnvBoolOrDefault("SEARCH_STOP_AFTER_K", false); err != nil {
		return nil, err
	}

	// Load solver configuration
	if config.Solver.Tolerance, err = getEnvFloatOrDefault("SOLVER_TOLERANCE", 1e-6); err != nil {
		return nil, err
	}
	if config.Solver.MaxIterations, err = getEnvIntOrDefault("SOLVER_MAX_ITERATIONS", 100); err != nil {
		return nil, err
	}

	// Load store, metrics and sweep configuration
	config.Store.DSN = os.Getenv("STORE_DSN")
	config.Metrics.Addr = os.Getenv("METRICS_ADDR")
	if config.Sweep.Concurrency, err = getEnvIntOrDefault("SWEEP_CONCURRENCY", 4); err != nil {
		return nil, err
	}

	// Load logging configuration
	level, ok := internal.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if !ok {
		return nil, errors.ConfigInvalid(fmt.Sprintf("LOG_LEVEL %q is not one of ERROR, WARN, INFO, DEBUG, TRACE", os.Getenv("LOG_LEVEL")))
	}
	config.Log.Level = level

	// Validate ranges
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Validate checks value ranges. It is called by Load and again after CLI
// flags are applied.
func (c *Config) Validate() error {
	if c.Search.Budget <= 0 {
		return errors.ConfigInvalid("SEARCH_BUDGET must be positive")
	}
	if c.Search.MaxIterations <= 0 {
		return errors.ConfigInvalid("MAX_ITERATIONS must be positive")
	}
	if c.Solver.Tolerance <= 0 || c.Solver.Tolerance >= 1 {
		return errors.ConfigInvalid("SOLVER_TOLERANCE must lie in (0, 1)")
	}
	if c.Solver.MaxIterations <= 0 {
		return errors.ConfigInvalid("SOLVER_MAX_ITERATIONS must be positive")
	}
	if c.Sweep.Concurrency <= 0 {
		return errors.ConfigInvalid("SWEEP_CONCURRENCY must be positive")
	}
	if c.Paths.OutDir == "" {
		return errors.ConfigInvalid("OUT_DIR is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not an integer", key, value))
	}
	return intValue, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not a number", key, value))
	}
	return floatValue, nil
}

func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not a boolean", key, value))
	}
	return boolValue, nil
}

// Durations accept Go syntax ("90s") or a bare number of seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, errors.ConfigInvalid(fmt.Sprintf("%s=%q is not a duration", key, value))
}
