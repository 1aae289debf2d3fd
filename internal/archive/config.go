package archive

import "codeberg.org/mutker/infologger/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/infologger/archive.db"
	backupDirName  = "backups"
)

type Config struct {
	DBPath          string
	BackupOnMigrate bool
	Enabled         bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		BackupOnMigrate: true,
		Enabled:         false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if the archive is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}
