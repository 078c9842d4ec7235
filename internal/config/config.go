// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for the database and backups (always absolute)
	LogLevel       string
	Port           int
	DevMode        bool
	ThresholdsFile string
	Thresholds     rebalancing.Thresholds
	Schedules      SchedulesConfig
	Backup         BackupConfig
}

// SchedulesConfig holds cron expressions (with seconds) for background jobs
type SchedulesConfig struct {
	Snapshot      string
	WALCheckpoint string
	Backup        string
}

// BackupConfig holds off-site backup settings. An empty bucket keeps
// backups local only.
type BackupConfig struct {
	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	RetentionDays     int
}

// UploadEnabled reports whether backups are shipped to S3
func (b BackupConfig) UploadEnabled() bool {
	return b.S3Bucket != ""
}

// Load reads configuration from .env and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("REBALANCER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("REBALANCER_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ThresholdsFile: getEnv("REBALANCER_THRESHOLDS_FILE", ""),
		Schedules: SchedulesConfig{
			Snapshot:      getSchedule("SNAPSHOT_SCHEDULE", "0 0 18 * * *"),
			WALCheckpoint: getSchedule("WAL_CHECKPOINT_SCHEDULE", "0 0 * * * *"),
			Backup:        getSchedule("BACKUP_SCHEDULE", "0 30 2 * * *"),
		},
		Backup: BackupConfig{
			S3Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			S3Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			S3Region:          getEnv("BACKUP_S3_REGION", "us-east-1"),
			S3AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:     getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	thresholds, err := rebalancing.LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = thresholds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and cron expressions
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative, got %d", c.Backup.RetentionDays)
	}
	if c.Backup.UploadEnabled() && (c.Backup.S3AccessKeyID == "") != (c.Backup.S3SecretAccessKey == "") {
		return fmt.Errorf("BACKUP_S3_ACCESS_KEY_ID and BACKUP_S3_SECRET_ACCESS_KEY must be set together")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, expr := range map[string]string{
		"SNAPSHOT_SCHEDULE":       c.Schedules.Snapshot,
		"WAL_CHECKPOINT_SCHEDULE": c.Schedules.WALCheckpoint,
		"BACKUP_SCHEDULE":         c.Schedules.Backup,
	} {
		if expr == "" {
			continue // manual trigger only
		}
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, expr, err)
		}
	}

	return nil
}

// DatabasePath returns the location of the portfolio database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// BackupDir returns the local directory backups are written to
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getSchedule returns "" for "off", leaving the job to manual triggers
func getSchedule(key, defaultValue string) string {
	value := getEnv(key, defaultValue)
	if value == "off" {
		return ""
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
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
