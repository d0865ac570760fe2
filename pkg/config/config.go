package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Protection toggles
	CommitRevealEnabled bool
	BatchingEnabled     bool
	TimeLockEnabled     bool
	FairOrderingEnabled bool

	// Commit-reveal windows
	MinCommitTime time.Duration // reveal window for none/standard protection
	MaxCommitTime time.Duration // reveal window for maximum protection

	// Batching
	BatchSize         int
	BatchInterval     time.Duration
	RandomizationSeed string // deterministic batch-seed override, tests only

	// Front-running detection
	DetectionClusterWindow        time.Duration
	DetectionPriceTolerance       float64
	DetectionSizeTolerance        float64
	DetectionClusterThreshold     int
	DetectionDislocationWindow    time.Duration
	DetectionDislocationThreshold float64
	DetectionMinTrades            int
	DetectionMaxConfidence        float64
	DetectionAutoEscalate         bool

	// Metrics aggregation
	MetricsSchedule string // cron spec for snapshot recomputation
	MetricsWindow   time.Duration

	// Execution
	PaperReferencePrice float64

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Protection defaults: everything on
		CommitRevealEnabled: getBoolOrDefault("COMMIT_REVEAL_ENABLED", true),
		BatchingEnabled:     getBoolOrDefault("BATCHING_ENABLED", true),
		TimeLockEnabled:     getBoolOrDefault("TIME_LOCK_ENABLED", true),
		FairOrderingEnabled: getBoolOrDefault("FAIR_ORDERING_ENABLED", true),

		// Commit-reveal defaults
		MinCommitTime: getDurationOrDefault("MIN_COMMIT_TIME", 5*time.Second),
		MaxCommitTime: getDurationOrDefault("MAX_COMMIT_TIME", 5*time.Minute),

		// Batching defaults
		BatchSize:         getIntOrDefault("BATCH_SIZE", 10),
		BatchInterval:     getDurationOrDefault("BATCH_INTERVAL", 5*time.Second),
		RandomizationSeed: os.Getenv("RANDOMIZATION_SEED"),

		// Detection defaults
		DetectionClusterWindow:        getDurationOrDefault("DETECTION_CLUSTER_WINDOW", 10*time.Second),
		DetectionPriceTolerance:       getFloat64OrDefault("DETECTION_PRICE_TOLERANCE", 0.001),
		DetectionSizeTolerance:        getFloat64OrDefault("DETECTION_SIZE_TOLERANCE", 0.10),
		DetectionClusterThreshold:     getIntOrDefault("DETECTION_CLUSTER_THRESHOLD", 3),
		DetectionDislocationWindow:    getDurationOrDefault("DETECTION_DISLOCATION_WINDOW", 30*time.Second),
		DetectionDislocationThreshold: getFloat64OrDefault("DETECTION_DISLOCATION_THRESHOLD", 0.005),
		DetectionMinTrades:            getIntOrDefault("DETECTION_MIN_TRADES", 10),
		DetectionMaxConfidence:        getFloat64OrDefault("DETECTION_MAX_CONFIDENCE", 0.95),
		DetectionAutoEscalate:         getBoolOrDefault("DETECTION_AUTO_ESCALATE", false),

		// Metrics defaults
		MetricsSchedule: getEnvOrDefault("METRICS_SCHEDULE", "@every 1m"),
		MetricsWindow:   getDurationOrDefault("METRICS_WINDOW", 24*time.Hour),

		// Execution defaults
		PaperReferencePrice: getFloat64OrDefault("PAPER_REFERENCE_PRICE", 1.0),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "mevshield"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "mevshield123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "mev_shield"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.MinCommitTime <= 0 || c.MaxCommitTime <= 0 {
		return fmt.Errorf("commit windows must be positive")
	}

	if c.MaxCommitTime < c.MinCommitTime {
		return fmt.Errorf("MAX_COMMIT_TIME %s must not be below MIN_COMMIT_TIME %s",
			c.MaxCommitTime, c.MinCommitTime)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}

	if c.BatchInterval <= 0 {
		return fmt.Errorf("BATCH_INTERVAL must be positive, got %s", c.BatchInterval)
	}

	if c.DetectionPriceTolerance <= 0 || c.DetectionPriceTolerance >= 1 {
		return fmt.Errorf("DETECTION_PRICE_TOLERANCE must be between 0 and 1, got %f",
			c.DetectionPriceTolerance)
	}

	if c.DetectionSizeTolerance <= 0 || c.DetectionSizeTolerance >= 1 {
		return fmt.Errorf("DETECTION_SIZE_TOLERANCE must be between 0 and 1, got %f",
			c.DetectionSizeTolerance)
	}

	if c.DetectionMaxConfidence <= 0 || c.DetectionMaxConfidence > 1 {
		return fmt.Errorf("DETECTION_MAX_CONFIDENCE must be between 0 and 1, got %f",
			c.DetectionMaxConfidence)
	}

	if c.StorageMode != "memory" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'memory' or 'postgres', got %q", c.StorageMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	durVal, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return durVal
}
