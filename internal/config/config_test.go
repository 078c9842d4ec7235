package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REBALANCER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, rebalancing.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, "0 0 18 * * *", cfg.Schedules.Snapshot)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
	assert.False(t, cfg.Backup.UploadEnabled())
	assert.Equal(t, filepath.Join(dir, "portfolio.db"), cfg.DatabasePath())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("REBALANCER_DATA_DIR", t.TempDir())
	t.Setenv("REBALANCER_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKUP_S3_BUCKET", "backups")
	t.Setenv("BACKUP_S3_ACCESS_KEY_ID", "key")
	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Backup.UploadEnabled())
}

func TestLoad_ThresholdsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_action_quantity: 10\nmin_action_value: 250.5\n"), 0644))

	t.Setenv("REBALANCER_DATA_DIR", dir)
	t.Setenv("REBALANCER_THRESHOLDS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(10), cfg.Thresholds.MinActionQuantity)
	assert.Equal(t, 250.5, cfg.Thresholds.MinActionValue)
	// Keys absent from the file keep their defaults
	assert.Equal(t, rebalancing.DefaultRebalancingThresholdPercent, cfg.Thresholds.RebalancingThresholdPercent)
	assert.Equal(t, rebalancing.DefaultCashUtilizationRatio, cfg.Thresholds.CashUtilizationRatio)
}

func TestLoad_RejectsBadThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_action_value: -1\n"), 0644))

	t.Setenv("REBALANCER_DATA_DIR", dir)
	t.Setenv("REBALANCER_THRESHOLDS_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ScheduleOff(t *testing.T) {
	t.Setenv("REBALANCER_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_SCHEDULE", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Schedules.Backup)
	assert.Equal(t, "0 0 * * * *", cfg.Schedules.WALCheckpoint)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:       8001,
			Thresholds: rebalancing.DefaultThresholds(),
			Schedules: SchedulesConfig{
				Snapshot:      "0 0 18 * * *",
				WALCheckpoint: "@hourly",
				Backup:        "0 30 2 * * *",
			},
			Backup: BackupConfig{RetentionDays: 30},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Schedules.Backup = "not a schedule"
	assert.ErrorContains(t, cfg.Validate(), "BACKUP_SCHEDULE")

	cfg = valid()
	cfg.Backup.S3Bucket = "b"
	cfg.Backup.S3AccessKeyID = "only-key"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Backup.RetentionDays = -1
	assert.Error(t, cfg.Validate())
}
