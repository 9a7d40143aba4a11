// Package storage implements the persisted key/value store backing the
// dashboard state across CLI invocations.
package storage

import (
	"errors"
	"maps"
	"sync"
)

// Custom errors.
var (
	ErrClosed = errors.New("storage is closed")
)

// Storage is a string key/value store. Missing keys are not errors.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	Close() error
}

// Memory is an in-memory Storage.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]string
	closed bool
}

// NewMemory returns a new Memory storage.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

// Get returns value of key.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrClosed
	}

	v, ok := m.items[key]

	return v, ok, nil
}

// Set sets value of key.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.items[key] = value

	return nil
}

// Remove deletes key. Removing a missing key is a no-op.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.items, key)

	return nil
}

// Close closes the storage.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

// Snapshot returns a copy of all items.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.items)
}
