//go:build cgo
// +build cgo

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wneessen/go-fileperm"
)

// SQLite is a Storage persisted in a SQLite database file.
type SQLite struct {
	logger  *slog.Logger
	path    string
	db      *sql.DB
	version uint
}

// NewSQLite opens or creates the database at path and applies migrations.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("storage path missing")
	}

	// Directory may hold the bearer token, keep it private
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	// A single writer avoids SQLITE_BUSY errors between pooled connections
	db.SetMaxOpenConns(1)

	version, err := upgradeSchema(db)
	if err != nil {
		db.Close()

		return nil, err
	}

	logger.Debug("Local storage opened", "path", path, "schema_version", version)

	s := &SQLite{logger: logger, path: path, db: db, version: version}
	if err := s.restrictPermissions(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// restrictPermissions removes read access for others on the database file.
func (s *SQLite) restrictPermissions() error {
	fperms, err := fileperm.New(s.path)
	if err != nil {
		return fmt.Errorf("failed to get storage permissions: %w", err)
	}

	if fperms.Stat.Mode().Perm()&fileperm.OsOthR == 0 {
		return nil
	}

	s.logger.Warn("Storage file is readable by other users, restricting permissions", "path", s.path)

	return os.Chmod(s.path, 0o600)
}

// Get returns value of key.
func (s *SQLite) Get(key string) (string, bool, error) {
	var value string

	err := s.db.QueryRow("SELECT value FROM local_storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// Set sets value of key.
func (s *SQLite) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.RFC3339),
	)

	return err
}

// Remove deletes key. Removing a missing key is a no-op.
func (s *SQLite) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM local_storage WHERE key = ?", key)

	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
