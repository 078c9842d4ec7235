package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]StoredObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredObject
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, StoredObject{Key: k, SizeBytes: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.EventType
}

func (r *recordingEmitter) EmitTyped(t events.EventType, _ string, _ events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

var backupNow = time.Date(2026, 5, 4, 2, 30, 0, 0, time.UTC)

func TestBackupService_RunUploadsVerifiedArchive(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	testingpkg.SeedStrategy(t, db.Conn(), 1, 10000, 0, "[]")

	dir := t.TempDir()
	store := newMemoryStore()
	emitter := &recordingEmitter{}
	svc := NewBackupService(db, dir, store, 30, domain.FixedClock{T: backupNow}, emitter, zerolog.Nop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "rebalancer-backup-2026-05-04-023000.db.gz", result.Key)
	assert.True(t, result.Uploaded)
	assert.True(t, strings.HasPrefix(result.Checksum, "sha256:"))
	assert.Greater(t, result.SizeBytes, int64(0))
	assert.Equal(t, []string{result.Key}, store.keys())
	assert.Equal(t, []events.EventType{events.BackupCompleted}, emitter.events)

	// The archive decompresses to a SQLite file
	raw, err := os.ReadFile(filepath.Join(dir, result.Key))
	require.NoError(t, err)
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	header := make([]byte, 16)
	_, err = io.ReadFull(gz, header)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(header))

	// Staging files are cleaned up
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBackupService_LocalOnlyWithoutStore(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	svc := NewBackupService(db, t.TempDir(), nil, 30, domain.FixedClock{T: backupNow}, nil, zerolog.Nop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Uploaded)

	remote, err := svc.ListRemote(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestBackupService_RotationKeepsNewest(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	dir := t.TempDir()
	store := newMemoryStore()
	ctx := context.Background()

	for day := 1; day <= 5; day++ {
		key := backupKey(time.Date(2026, 1, day, 2, 30, 0, 0, time.UTC))
		require.NoError(t, os.WriteFile(filepath.Join(dir, key), []byte("old"), 0644))
		require.NoError(t, store.Upload(ctx, key, strings.NewReader("old")))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	svc := NewBackupService(db, dir, store, 30, domain.FixedClock{T: backupNow}, nil, zerolog.Nop())
	result, err := svc.Run(ctx)
	require.NoError(t, err)

	// new archive plus the two newest old ones survive in each place
	assert.Equal(t, 6, result.Pruned)

	local, err := svc.ListLocal()
	require.NoError(t, err)
	require.Len(t, local, MinBackupsToKeep)
	assert.Equal(t, result.Key, local[0].Key)
	assert.Equal(t, backupKey(time.Date(2026, 1, 5, 2, 30, 0, 0, time.UTC)), local[1].Key)
	assert.Equal(t, backupKey(time.Date(2026, 1, 4, 2, 30, 0, 0, time.UTC)), local[2].Key)

	assert.Len(t, store.keys(), MinBackupsToKeep)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestBackupService_ZeroRetentionKeepsEverything(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	dir := t.TempDir()
	for day := 1; day <= 5; day++ {
		key := backupKey(time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC))
		require.NoError(t, os.WriteFile(filepath.Join(dir, key), []byte("old"), 0644))
	}

	svc := NewBackupService(db, dir, nil, 0, domain.FixedClock{T: backupNow}, nil, zerolog.Nop())
	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pruned)

	local, err := svc.ListLocal()
	require.NoError(t, err)
	assert.Len(t, local, 6)
}

func TestParseBackupKey(t *testing.T) {
	ts, ok := parseBackupKey("backups/rebalancer-backup-2026-01-08-143022.db.gz")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC), ts)

	for _, bad := range []string{
		"rebalancer-backup-2026-01-08.db.gz",
		"other-2026-01-08-143022.db.gz",
		"rebalancer-backup-2026-01-08-143022.tar.gz",
	} {
		_, ok := parseBackupKey(bad)
		assert.False(t, ok, bad)
	}
}
