package commands

import (
	"database/sql"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/db"
	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/logger"
)

// openDatabase opens and migrates the database at the configured path.
// An explicit dbPath overrides the config.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	return database, nil
}
