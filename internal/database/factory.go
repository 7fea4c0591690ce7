package database

import (
	"fmt"
	"os"
	"path/filepath"

	"hardwire/internal/config"
	"hardwire/internal/hardwire"
)

// DatabaseFileName is the SQLite file created under the configured data dir.
const DatabaseFileName = "hardwire.db"

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (hardwire.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return open(filepath.Join(cfg.DataDir, DatabaseFileName))
	case "memory":
		return open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// open keeps a failed open from leaking a typed nil into the interface.
func open(path string) (hardwire.Database, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
