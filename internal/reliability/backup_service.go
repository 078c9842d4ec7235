// Package reliability backs up the portfolio database locally and to an
// optional S3-compatible bucket.
package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
)

const (
	backupPrefix     = "rebalancer-backup-"
	backupSuffix     = ".db.gz"
	backupTimeLayout = "2006-01-02-150405"

	// MinBackupsToKeep survive rotation regardless of age
	MinBackupsToKeep = 3

	// minFreeDiskBytes is the free space required before a backup starts
	minFreeDiskBytes = 500 * 1024 * 1024
)

// BackupResult describes one completed backup
type BackupResult struct {
	Key       string `json:"key"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
	Uploaded  bool   `json:"uploaded"`
	Pruned    int    `json:"pruned"`
}

// BackupInfo represents one stored backup archive
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupService creates compressed, integrity-checked copies of a database
type BackupService struct {
	db            *database.DB
	backupDir     string
	store         ObjectStore
	retentionDays int
	clock         domain.Clock
	emitter       events.Emitter
	log           zerolog.Logger
}

// NewBackupService creates a new backup service. store may be nil, in which
// case archives are only kept in backupDir. retentionDays of 0 keeps
// everything.
func NewBackupService(
	db *database.DB,
	backupDir string,
	store ObjectStore,
	retentionDays int,
	clock domain.Clock,
	emitter events.Emitter,
	log zerolog.Logger,
) *BackupService {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &BackupService{
		db:            db,
		backupDir:     backupDir,
		store:         store,
		retentionDays: retentionDays,
		clock:         clock,
		emitter:       emitter,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Run backs up the database, uploads the archive when a store is configured
// and rotates old archives in both places.
func (s *BackupService) Run(ctx context.Context) (*BackupResult, error) {
	start := time.Now()

	if err := s.checkDiskSpace(ctx); err != nil {
		return nil, err
	}

	stagingDir, err := os.MkdirTemp(s.backupDir, "staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	rawPath := filepath.Join(stagingDir, s.db.Name()+".db")
	if err := s.db.BackupTo(ctx, rawPath); err != nil {
		return nil, err
	}
	if err := verifyIntegrity(ctx, rawPath); err != nil {
		return nil, err
	}

	key := backupKey(s.clock.Now())
	archivePath := filepath.Join(s.backupDir, key)
	size, checksum, err := compressFile(rawPath, archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress backup: %w", err)
	}

	result := &BackupResult{Key: key, Path: archivePath, SizeBytes: size, Checksum: checksum}

	if s.store != nil {
		if err := s.upload(ctx, key, archivePath); err != nil {
			return nil, err
		}
		result.Uploaded = true
	}

	pruned, err := s.Rotate(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	result.Pruned = pruned

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", size).
		Bool("uploaded", result.Uploaded).
		Int("pruned", pruned).
		Dur("duration", time.Since(start)).
		Msg("Backup completed")
	s.emitter.EmitTyped(events.BackupCompleted, "reliability", &events.BackupCompletedData{
		Key:       key,
		SizeBytes: size,
		Uploaded:  result.Uploaded,
		Pruned:    pruned,
	})

	return result, nil
}

// ListLocal returns the archives in the backup directory, newest first
func (s *BackupService) ListLocal() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseBackupKey(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{Key: e.Name(), Timestamp: ts, SizeBytes: info.Size()})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// ListRemote returns the archives in the object store, newest first
func (s *BackupService) ListRemote(ctx context.Context) ([]BackupInfo, error) {
	if s.store == nil {
		return nil, nil
	}

	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseBackupKey(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}
		backups = append(backups, BackupInfo{Key: obj.Key, Timestamp: ts, SizeBytes: obj.SizeBytes})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// Rotate deletes archives older than the retention period, locally and in
// the store, always keeping the newest MinBackupsToKeep. Returns the number
// of archives deleted.
func (s *BackupService) Rotate(ctx context.Context) (int, error) {
	if s.retentionDays == 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)

	local, err := s.ListLocal()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, b := range expired(local, cutoff) {
		if err := os.Remove(filepath.Join(s.backupDir, b.Key)); err != nil {
			s.log.Warn().Err(err).Str("key", b.Key).Msg("Failed to delete local backup")
			continue
		}
		deleted++
	}

	remote, err := s.ListRemote(ctx)
	if err != nil {
		return deleted, err
	}
	for _, b := range expired(remote, cutoff) {
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Warn().Err(err).Str("key", b.Key).Msg("Failed to delete remote backup")
			continue
		}
		s.log.Info().Str("key", b.Key).Time("timestamp", b.Timestamp).Msg("Deleted old backup")
		deleted++
	}

	return deleted, nil
}

func (s *BackupService) upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	return s.store.Upload(ctx, key, f)
}

func (s *BackupService) checkDiskSpace(ctx context.Context) error {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, s.backupDir)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read disk usage")
		return nil
	}
	if usage.Free < minFreeDiskBytes {
		return fmt.Errorf("insufficient disk space for backup: %d MB free", usage.Free/1024/1024)
	}
	if usage.UsedPercent > 90 {
		s.log.Warn().Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}

// expired returns the backups past cutoff, never touching the newest
// MinBackupsToKeep. backups must be sorted newest first.
func expired(backups []BackupInfo, cutoff time.Time) []BackupInfo {
	var out []BackupInfo
	for i, b := range backups {
		if i < MinBackupsToKeep {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

func backupKey(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupTimeLayout) + backupSuffix
}

func parseBackupKey(key string) (time.Time, bool) {
	name := filepath.Base(key)
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	ts, err := time.Parse(backupTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func sortNewestFirst(backups []BackupInfo) {
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
}

// verifyIntegrity opens a backup copy and runs PRAGMA integrity_check
func verifyIntegrity(ctx context.Context, path string) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check backup integrity: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup integrity check failed: %s", result)
	}
	return nil
}

// compressFile gzips src into dst and returns the archive size and the
// sha256 of the uncompressed data
func compressFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}

	hash := sha256.New()
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(io.MultiWriter(gz, hash), in); err != nil {
		out.Close()
		return 0, "", err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return 0, "", err
	}
	if err := out.Close(); err != nil {
		return 0, "", err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, "", err
	}
	return info.Size(), fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
