package config

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:                "8080",
		MinCommitTime:           5 * time.Second,
		MaxCommitTime:           5 * time.Minute,
		BatchSize:               10,
		BatchInterval:           5 * time.Second,
		DetectionPriceTolerance: 0.001,
		DetectionSizeTolerance:  0.10,
		DetectionMaxConfidence:  0.95,
		StorageMode:             "memory",
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.HTTPPort != "8080" {
		t.Errorf("expected default HTTPPort to be 8080, got %s", cfg.HTTPPort)
	}
	if !cfg.CommitRevealEnabled || !cfg.BatchingEnabled || !cfg.TimeLockEnabled || !cfg.FairOrderingEnabled {
		t.Error("expected all protection subsystems enabled by default")
	}
	if cfg.MinCommitTime != 5*time.Second {
		t.Errorf("expected default MinCommitTime to be 5s, got %v", cfg.MinCommitTime)
	}
	if cfg.MaxCommitTime != 5*time.Minute {
		t.Errorf("expected default MaxCommitTime to be 5m, got %v", cfg.MaxCommitTime)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("expected default BatchSize to be 10, got %d", cfg.BatchSize)
	}
	if cfg.DetectionClusterThreshold != 3 {
		t.Errorf("expected default DetectionClusterThreshold to be 3, got %d", cfg.DetectionClusterThreshold)
	}
	if cfg.DetectionAutoEscalate {
		t.Error("expected DetectionAutoEscalate to default to off")
	}
	if cfg.MetricsSchedule != "@every 1m" {
		t.Errorf("expected default MetricsSchedule to be @every 1m, got %s", cfg.MetricsSchedule)
	}
	if cfg.StorageMode != "memory" {
		t.Errorf("expected default StorageMode to be memory, got %s", cfg.StorageMode)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Run("commit_windows", func(t *testing.T) {
		os.Setenv("MIN_COMMIT_TIME", "2s")
		os.Setenv("MAX_COMMIT_TIME", "10m")
		t.Cleanup(func() {
			os.Unsetenv("MIN_COMMIT_TIME")
			os.Unsetenv("MAX_COMMIT_TIME")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.MinCommitTime != 2*time.Second {
			t.Errorf("expected MinCommitTime to be 2s, got %v", cfg.MinCommitTime)
		}
		if cfg.MaxCommitTime != 10*time.Minute {
			t.Errorf("expected MaxCommitTime to be 10m, got %v", cfg.MaxCommitTime)
		}
	})

	t.Run("protection_toggles", func(t *testing.T) {
		os.Setenv("COMMIT_REVEAL_ENABLED", "false")
		os.Setenv("DETECTION_AUTO_ESCALATE", "true")
		t.Cleanup(func() {
			os.Unsetenv("COMMIT_REVEAL_ENABLED")
			os.Unsetenv("DETECTION_AUTO_ESCALATE")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.CommitRevealEnabled {
			t.Error("expected CommitRevealEnabled to be false")
		}
		if !cfg.DetectionAutoEscalate {
			t.Error("expected DetectionAutoEscalate to be true")
		}
	})

	t.Run("storage_mode", func(t *testing.T) {
		os.Setenv("STORAGE_MODE", "postgres")
		os.Setenv("POSTGRES_HOST", "db.internal")
		t.Cleanup(func() {
			os.Unsetenv("STORAGE_MODE")
			os.Unsetenv("POSTGRES_HOST")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.StorageMode != "postgres" {
			t.Errorf("expected StorageMode to be postgres, got %s", cfg.StorageMode)
		}
		if cfg.PostgresHost != "db.internal" {
			t.Errorf("expected PostgresHost to be db.internal, got %s", cfg.PostgresHost)
		}
	})

	t.Run("malformed_value_falls_back_to_default", func(t *testing.T) {
		os.Setenv("BATCH_SIZE", "not-a-number")
		t.Cleanup(func() {
			os.Unsetenv("BATCH_SIZE")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.BatchSize != 10 {
			t.Errorf("expected BatchSize to fall back to 10, got %d", cfg.BatchSize)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid_config_passes", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("inverted_commit_windows_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.MinCommitTime = time.Minute
		cfg.MaxCommitTime = time.Second

		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for MAX_COMMIT_TIME below MIN_COMMIT_TIME, got nil")
		}
	})

	t.Run("zero_commit_window_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.MinCommitTime = 0

		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for zero commit window, got nil")
		}
	})

	t.Run("non_positive_batch_size_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.BatchSize = 0

		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for batch size 0, got nil")
		}
	})

	t.Run("price_tolerance_out_of_range_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.DetectionPriceTolerance = 1.5

		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for price tolerance >= 1, got nil")
		}
	})

	t.Run("max_confidence_above_one_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.DetectionMaxConfidence = 1.2

		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for max confidence > 1, got nil")
		}
	})

	t.Run("unknown_storage_mode_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.StorageMode = "cassandra"

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for unknown storage mode, got nil")
		}

		expectedMsg := `STORAGE_MODE must be 'memory' or 'postgres', got "cassandra"`
		if err.Error() != expectedMsg {
			t.Errorf("expected error %q, got %q", expectedMsg, err.Error())
		}
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("default_level", func(t *testing.T) {
		cfg := &Config{}
		logger, err := cfg.NewLogger()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if logger == nil {
			t.Fatal("expected logger, got nil")
		}
		if logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("expected default level above debug")
		}
	})

	t.Run("debug_level", func(t *testing.T) {
		cfg := &Config{LogLevel: "debug"}
		logger, err := cfg.NewLogger()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("expected debug level to be enabled")
		}
	})

	t.Run("level_from_environment", func(t *testing.T) {
		os.Setenv("LOG_LEVEL", "warn")
		t.Cleanup(func() {
			os.Unsetenv("LOG_LEVEL")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		logger, err := cfg.NewLogger()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("expected info suppressed at warn level")
		}
	})

	t.Run("invalid_level_rejected", func(t *testing.T) {
		cfg := &Config{LogLevel: "shout"}
		if _, err := cfg.NewLogger(); err == nil {
			t.Fatal("expected error for invalid log level, got nil")
		}
	})
}
