package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// CheckDBMigrationStatus verifies that the schema is at the version embedded
// in this binary. It returns nil when the versions match.
func CheckDBMigrationStatus(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: closing it would close db, which the caller owns.

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	latest, err := LatestVersion()
	if err != nil {
		return err
	}

	switch {
	case version < latest:
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latest, latest-version)
	case version > latest:
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			version, latest)
	}
	return nil
}

// MigrateUp applies all pending migrations. An up-to-date schema is not an error.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()

	v, err := lastVersion(src)
	if err != nil {
		return 0, fmt.Errorf("failed to determine latest version: %w", err)
	}
	return v, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// lastVersion follows Next from First until the source runs out.
func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
