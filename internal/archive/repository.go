package archive

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	mu     sync.Mutex
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Archive repository initialized")

	return &repository{
		db:     db,
		logger: log,
	}, nil
}

func (r *repository) Insert(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, insertSessionSQL,
		session.ID,
		session.Channel,
		session.StartedAt.UnixMilli(),
		session.StoppedAt.UnixMilli(),
		session.EntryCount,
		session.Payload,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("session", session.ID).Msg("Failed to insert session")
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	r.logger.Debug().
		Str("session", session.ID).
		Str("channel", session.Channel).
		Int("entries", session.EntryCount).
		Msg("Session archived")

	return nil
}

func (r *repository) List(ctx context.Context, limit int) ([]Session, error) {
	errFactory := errors.New()
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, listSessionsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s                Session
			started, stopped int64
		)
		if err := rows.Scan(&s.ID, &s.Channel, &started, &stopped, &s.EntryCount, &s.Payload); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		s.StartedAt = time.UnixMilli(started)
		s.StoppedAt = time.UnixMilli(stopped)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return sessions, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Archive repository closed gracefully")

	return nil
}
