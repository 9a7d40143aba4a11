//go:build cgo
// +build cgo

package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Table tracking applied schema versions.
const migrationsTable = "local_storage_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// upgradeSchema brings the local_storage schema of db to the latest version
// and returns that version.
func upgradeSchema(db *sql.DB) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read storage migrations: %w", err)
	}

	// Only the source is closed: closing the database driver would close db
	defer src.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return 0, fmt.Errorf("failed to prepare storage migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare storage migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to migrate storage schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to get storage schema version: %w", err)
	}

	if dirty {
		return version, fmt.Errorf("storage schema version %d is dirty", version)
	}

	return version, nil
}
