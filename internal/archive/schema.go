package archive

import (
	"database/sql"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id          TEXT PRIMARY KEY,
	       channel     TEXT NOT NULL CHECK (channel IN ('cpu', 'mem', 'gpu')),
	       started_at  INTEGER NOT NULL,
	       stopped_at  INTEGER NOT NULL,
	       entry_count INTEGER NOT NULL CHECK (entry_count >= 0),
	       payload     BLOB NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS sessions_stopped_at ON sessions (stopped_at);`

	insertSessionSQL = `
    INSERT INTO sessions (
        id, channel, started_at, stopped_at, entry_count, payload
    ) VALUES (?, ?, ?, ?, ?, ?)`

	listSessionsSQL = `
    SELECT id, channel, started_at, stopped_at, entry_count, payload
    FROM sessions
    ORDER BY stopped_at DESC, id
    LIMIT ?`

	recordVersionSQL = `INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	currentVersionSQL = `SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`

	countVersionTableSQL = `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_versions'`
)

// InitSchema creates the tables and records SchemaVersion in one transaction.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating archive tables")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Debug().Err(err).Msg("Failed to rollback transaction")
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err).WithMessage("create tables")
	}

	if _, err := tx.Exec(recordVersionSQL, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err).WithMessage("record schema version")
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	log.Info().Int("version", SchemaVersion).Msg("Archive schema initialized")

	return nil
}

// GetSchemaVersion returns the newest recorded schema version, or 0 for an
// empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	var tables int
	if err := db.QueryRow(countVersionTableSQL).Scan(&tables); err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if tables == 0 {
		return 0, nil
	}

	var version int
	err := db.QueryRow(currentVersionSQL).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err).WithMessage("read schema version")
	}

	return version, nil
}
