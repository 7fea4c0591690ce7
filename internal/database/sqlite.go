package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"hardwire/internal/database/migrations"
	"hardwire/internal/hardwire"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements hardwire.Database on top of SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for configuring it and for the schema.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens a SQLite connection with foreign keys enforced and a
// busy timeout. File databases use WAL; in-memory databases are pinned to a
// single connection so every query sees the same database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := dsnFor(path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(path) {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

func dsnFor(path string) string {
	if isMemory(path) {
		return "file::memory:?_foreign_keys=on&_busy_timeout=5000"
	}
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *SQLiteDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("committing transaction: %w", err)
		}
	}()
	return fn(tx)
}

func unixTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := unixTime(v.Int64)
	return &t
}

var _ hardwire.Database = (*SQLiteDatabase)(nil)
