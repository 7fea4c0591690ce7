package database

import (
	"testing"

	"hardwire/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewDatabaseFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "unknown"})
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
		}
	})
}
