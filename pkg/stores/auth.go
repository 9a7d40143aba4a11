// Package stores implements the state containers shared by dashboard views:
// the session store owning the authentication token and the runtime store
// owning cross-view ephemeral state.
package stores

import (
	"log/slog"
	"sync"

	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/storage"
)

// Navigator moves the dashboard to another path.
type Navigator interface {
	Push(path string)
}

// SessionStore owns the authentication token.
type SessionStore struct {
	logger    *slog.Logger
	storage   storage.Storage
	navigator Navigator

	mu        sync.RWMutex
	token     string
	returnURL string
}

// NewSessionStore returns a new SessionStore, restoring any token persisted
// in s.
func NewSessionStore(s storage.Storage, logger *slog.Logger) *SessionStore {
	store := &SessionStore{
		logger:  logger,
		storage: s,
	}

	token, ok, err := s.Get(base.TokenStorageKey)
	if err != nil {
		logger.Warn("Failed to restore session token", "err", err)
	} else if ok {
		store.token = token
	}

	return store
}

// SetNavigator sets the navigator used after login and logout.
func (s *SessionStore) SetNavigator(n Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.navigator = n
}

// Token returns the current token. Empty when not authenticated.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Authenticated returns true when a token is set.
func (s *SessionStore) Authenticated() bool {
	return s.Token() != ""
}

// ReturnURL returns the path to resume after login.
func (s *SessionStore) ReturnURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnURL
}

// SetReturnURL sets the path to resume after login.
func (s *SessionStore) SetReturnURL(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.returnURL = path
}

// Login stores token and navigates to the return URL, or home when unset.
func (s *SessionStore) Login(token string) {
	s.mu.Lock()
	s.token = token
	target := s.returnURL
	s.returnURL = ""
	navigator := s.navigator
	s.mu.Unlock()

	// Keep user logged in between invocations
	if err := s.storage.Set(base.TokenStorageKey, token); err != nil {
		s.logger.Warn("Failed to persist session token", "err", err)
	}

	if target == "" {
		target = base.HomePath
	}

	if navigator != nil {
		navigator.Push(target)
	}
}

// Logout clears the token and navigates to the login page.
func (s *SessionStore) Logout() {
	s.mu.Lock()
	s.token = ""
	navigator := s.navigator
	s.mu.Unlock()

	if err := s.storage.Remove(base.TokenStorageKey); err != nil {
		s.logger.Warn("Failed to remove persisted session token", "err", err)
	}

	if navigator != nil {
		navigator.Push(base.LoginPath)
	}
}
