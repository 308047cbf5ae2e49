// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for all databases, always absolute
	LogLevel   string
	Port       int
	DevMode    bool
	TuningFile string // Optional YAML overlay for optimizer and backtest tuning
	Optimizer  OptimizerConfig
	Backtest   BacktestConfig
	Retention  RetentionConfig
	Backup     BackupConfig
}

// OptimizerConfig holds solver tuning.
type OptimizerConfig struct {
	RiskAversion       float64
	StepSize           float64
	MaxIterations      int
	Tolerance          float64
	Shrinkage          float64
	WindowDays         int
	SeedFromClosedForm bool
}

// BacktestConfig holds the defaults of signal-driven backtests.
type BacktestConfig struct {
	StartNAV        float64
	RebalanceDays   int
	CostBps         float64
	FallbackPrice   float64
	FallbackPolicy  string  // last_close or fixed
	MaxMissingRatio float64 // 0 never fails a run on missing prices
	TopN            int
	SyntheticBars   bool
	SyntheticSeed   int64 // 0 seeds from the clock
}

// RetentionConfig controls the scheduled purge of derived data.
type RetentionConfig struct {
	Schedule      string // cron spec
	RunDays       int
	BarDays       int // 0 keeps every bar
	CovarianceTTL time.Duration
}

// BackupConfig points database backups at S3-compatible object storage.
// Backups are disabled while Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // empty uses AWS S3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string // cron spec
	RetentionDays   int    // 0 keeps every backup
}

// Enabled reports whether a backup destination is configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MERIDIAN_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:    absDataDir,
		Port:       getEnvAsInt("MERIDIAN_PORT", 8082),
		DevMode:    getEnvAsBool("DEV_MODE", false),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		TuningFile: getEnv("MERIDIAN_TUNING_FILE", ""),
		Optimizer: OptimizerConfig{
			RiskAversion:       getEnvAsFloat("OPTIMIZER_RISK_AVERSION", 1.0),
			StepSize:           getEnvAsFloat("OPTIMIZER_STEP_SIZE", 0.5),
			MaxIterations:      getEnvAsInt("OPTIMIZER_MAX_ITERATIONS", 500),
			Tolerance:          getEnvAsFloat("OPTIMIZER_TOLERANCE", 1e-9),
			Shrinkage:          getEnvAsFloat("OPTIMIZER_SHRINKAGE", 0.5),
			WindowDays:         getEnvAsInt("OPTIMIZER_WINDOW_DAYS", 252),
			SeedFromClosedForm: getEnvAsBool("OPTIMIZER_CLOSED_FORM_SEED", false),
		},
		Backtest: BacktestConfig{
			StartNAV:        getEnvAsFloat("BACKTEST_START_NAV", 1_000_000),
			RebalanceDays:   getEnvAsInt("BACKTEST_REBALANCE_DAYS", 1),
			CostBps:         getEnvAsFloat("BACKTEST_COST_BPS", 5),
			FallbackPrice:   getEnvAsFloat("BACKTEST_FALLBACK_PRICE", 100),
			FallbackPolicy:  getEnv("BACKTEST_FALLBACK_POLICY", "last_close"),
			MaxMissingRatio: getEnvAsFloat("BACKTEST_MAX_MISSING_RATIO", 0),
			TopN:            getEnvAsInt("BACKTEST_TOP_N", 5),
			SyntheticBars:   getEnvAsBool("BACKTEST_SYNTHETIC_BARS", true),
			SyntheticSeed:   getEnvAsInt64("BACKTEST_SYNTHETIC_SEED", 0),
		},
		Retention: RetentionConfig{
			Schedule:      getEnv("RETENTION_SCHEDULE", "0 30 3 * * *"),
			RunDays:       getEnvAsInt("RETENTION_RUN_DAYS", 90),
			BarDays:       getEnvAsInt("RETENTION_BAR_DAYS", 0),
			CovarianceTTL: getEnvAsDuration("COVARIANCE_CACHE_TTL", 24*time.Hour),
		},
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if cfg.TuningFile != "" {
		if err := cfg.ApplyTuningFile(cfg.TuningFile); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that tuning values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Optimizer.RiskAversion < 0 {
		return fmt.Errorf("optimizer risk aversion must be non-negative, got %g", c.Optimizer.RiskAversion)
	}
	if c.Optimizer.StepSize <= 0 {
		return fmt.Errorf("optimizer step size must be positive, got %g", c.Optimizer.StepSize)
	}
	if c.Optimizer.MaxIterations <= 0 {
		return fmt.Errorf("optimizer iteration budget must be positive, got %d", c.Optimizer.MaxIterations)
	}
	if c.Optimizer.Tolerance <= 0 {
		return fmt.Errorf("optimizer tolerance must be positive, got %g", c.Optimizer.Tolerance)
	}
	if c.Optimizer.Shrinkage < 0 || c.Optimizer.Shrinkage > 1 {
		return fmt.Errorf("optimizer shrinkage must be in [0, 1], got %g", c.Optimizer.Shrinkage)
	}
	if c.Backtest.StartNAV <= 0 {
		return fmt.Errorf("backtest start NAV must be positive, got %g", c.Backtest.StartNAV)
	}
	if c.Backtest.CostBps < 0 {
		return fmt.Errorf("backtest cost must be non-negative, got %g bps", c.Backtest.CostBps)
	}
	if c.Backtest.FallbackPrice <= 0 {
		return fmt.Errorf("backtest fallback price must be positive, got %g", c.Backtest.FallbackPrice)
	}
	if p := c.Backtest.FallbackPolicy; p != "" && p != "last_close" && p != "fixed" {
		return fmt.Errorf("backtest fallback policy must be last_close or fixed, got %q", p)
	}
	if c.Backtest.MaxMissingRatio < 0 || c.Backtest.MaxMissingRatio > 1 {
		return fmt.Errorf("backtest max missing ratio must be in [0, 1], got %g", c.Backtest.MaxMissingRatio)
	}
	if c.Retention.RunDays <= 0 {
		return fmt.Errorf("retention window must be positive, got %d days", c.Retention.RunDays)
	}
	if c.Retention.BarDays < 0 {
		return fmt.Errorf("bar retention must be non-negative, got %d days", c.Retention.BarDays)
	}
	if c.Backup.Enabled() {
		if c.Backup.Schedule == "" {
			return fmt.Errorf("backup schedule is required when BACKUP_S3_BUCKET is set")
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("backup retention must be non-negative, got %d days", c.Backup.RetentionDays)
		}
		if (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
			return fmt.Errorf("backup access key ID and secret must be set together")
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
