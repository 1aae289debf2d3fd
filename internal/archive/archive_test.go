package archive_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/infologger/internal/archive"
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) archive.Config {
	t.Helper()

	cfg := archive.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "db", "archive.db")

	return cfg
}

func TestDisabledArchiveIsNoop(t *testing.T) {
	a, err := archive.NewService(archive.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, a.Record(context.Background(), &archive.Session{ID: "x"}))
	sessions, err := a.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	require.NoError(t, a.Close())
}

func TestInvalidConfig(t *testing.T) {
	_, err := archive.NewService(archive.Config{Enabled: true}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, archive.ErrInvalidDBPath))
}

func TestRecordAndList(t *testing.T) {
	cfg := testConfig(t)
	a, err := archive.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, a.Record(ctx, &archive.Session{
		ID:         "first",
		Channel:    "cpu",
		StartedAt:  base,
		StoppedAt:  base.Add(time.Second),
		EntryCount: 1,
		Payload:    []byte("<tasMessage/>"),
	}))
	require.NoError(t, a.Record(ctx, &archive.Session{
		ID:         "second",
		Channel:    "gpu",
		StartedAt:  base,
		StoppedAt:  base.Add(2 * time.Second),
		EntryCount: 0,
		Payload:    []byte{},
	}))

	sessions, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "second", sessions[0].ID)
	assert.Equal(t, "first", sessions[1].ID)
	assert.Equal(t, "cpu", sessions[1].Channel)
	assert.Equal(t, 1, sessions[1].EntryCount)
	assert.Equal(t, []byte("<tasMessage/>"), sessions[1].Payload)
	assert.True(t, sessions[1].StoppedAt.Equal(base.Add(time.Second)))

	limited, err := a.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRejectsInvalidSession(t *testing.T) {
	a, err := archive.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	err = a.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, archive.ErrInvalidSession))

	err = a.Record(context.Background(), &archive.Session{ID: "bad", Channel: "disk", Payload: []byte{}})
	assert.True(t, errors.HasCode(err, archive.ErrStorageAccess))
}

func TestRecordCanceledContext(t *testing.T) {
	a, err := archive.NewService(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = a.Record(ctx, &archive.Session{ID: "late", Channel: "cpu", Payload: []byte{}})
	assert.True(t, errors.HasCode(err, archive.ErrOperationTimeout))
}

func TestSchemaMigrationCreatesBackup(t *testing.T) {
	cfg := testConfig(t)

	a, err := archive.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Record(context.Background(), &archive.Session{
		ID: "old", Channel: "mem", Payload: []byte("x"),
	}))
	require.NoError(t, a.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'))`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	a, err = archive.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	sessions, err := a.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, sessions, "schema recreated")

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
