//go:build !cgo
// +build !cgo

package storage

import (
	"errors"
	"log/slog"
)

// SQLite is not available without cgo.
type SQLite struct {
	Memory
}

// NewSQLite returns an error as the sqlite3 driver requires cgo.
func NewSQLite(_ string, _ *slog.Logger) (*SQLite, error) {
	return nil, errors.New("sqlite storage requires a cgo enabled build")
}
