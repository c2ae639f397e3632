package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/Aman-Thakur002/Bantr/pkg/database/migrate"
	"github.com/Aman-Thakur002/Bantr/pkg/platform"
)

// Migration commands accepted by -migrate.
const (
	migrateCmdUp      = "up"
	migrateCmdDown    = "down"
	migrateCmdSteps   = "steps"
	migrateCmdVersion = "version"
)

// Replaced in tests.
var (
	openDB         = func(dsn string) (*sql.DB, error) { return sql.Open("postgres", dsn) }
	migrateUp      = migrate.Run
	migrateDown    = migrate.Down
	migrateSteps   = migrate.Steps
	migrateVersion = migrate.Version
)

// runMigrate applies one migration command against database.dsn and reports
// the resulting version.
func runMigrate(cfg *platform.Config, opts serverOptions, stdout io.Writer) (err error) {
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required for -migrate")
	}

	var apply func(*sql.DB) error
	switch opts.migrate {
	case migrateCmdUp:
		apply = migrateUp
	case migrateCmdDown:
		apply = migrateDown
	case migrateCmdSteps:
		if opts.migrateSteps == 0 {
			return errors.New("-migrate steps needs a non-zero -steps")
		}
		apply = func(db *sql.DB) error { return migrateSteps(db, opts.migrateSteps) }
	case migrateCmdVersion:
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down, steps or version)", opts.migrate)
	}

	db, err := openDB(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
	}()

	if apply != nil {
		if err := apply(db); err != nil {
			return err
		}
	}

	version, dirty, err := migrateVersion(db)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "migration version %d (dirty=%t)\n", version, dirty)
	return err
}
