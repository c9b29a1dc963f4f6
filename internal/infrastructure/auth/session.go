package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/domain/identity"
)

// ErrEmptyToken is returned by Login when the server issued no token
var ErrEmptyToken = errors.New("empty bearer token")

// Session is the process-wide auth context. Login and Logout are the only
// writers; the API client and controllers read the cached token without
// touching storage. Every Login/Logout bumps the generation so responses to
// requests issued under a previous session can be recognised.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Session struct {
	writeMu sync.Mutex // serialises Login/Logout/Restore

	mu         sync.RWMutex
	token      string
	user       *identity.Usuario
	generation uint64

	store  Store
	logger *zap.Logger
}

// NewSession creates a session backed by store
func NewSession(store Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{store: store, logger: logger}
}

// Restore loads a previously persisted token and user
func (s *Session) Restore(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	token, err := s.store.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore token: %w", err)
	}
	user, err := s.store.GetUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore user: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.generation++
	s.mu.Unlock()

	if token != "" {
		s.logger.Debug("session restored", zap.Bool("has_user", user != nil))
	}
	return nil
}

// Login persists token and user and makes them current. When the user cannot
// be saved the session is signed out, in storage and in memory.
func (s *Session) Login(ctx context.Context, token string, user *identity.Usuario) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		s.mu.Lock()
		s.token = ""
		s.user = nil
		s.generation++
		s.mu.Unlock()
		if clearErr := s.store.ClearAll(ctx); clearErr != nil {
			s.logger.Warn("failed to clear session after login error", zap.Error(clearErr))
		}
		return fmt.Errorf("failed to save user: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = cloneUser(user)
	s.generation++
	s.mu.Unlock()

	if user != nil {
		s.logger.Info("signed in", zap.String("username", user.Username), zap.String("rol", user.Rol))
	}
	return nil
}

// UpdateUser replaces the cached user without changing the token or generation
func (s *Session) UpdateUser(ctx context.Context, user *identity.Usuario) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	s.mu.Lock()
	s.user = cloneUser(user)
	s.mu.Unlock()
	return nil
}

// Logout forgets the session. The in-memory state is dropped before storage
// is cleared, so a storage failure never leaves the client authenticated.
func (s *Session) Logout(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.generation++
	s.mu.Unlock()

	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// Token returns the current bearer token, "" when signed out
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Bearer returns the token together with the generation it belongs to
func (s *Session) Bearer() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.generation
}

// Generation changes on every Login, Logout and Restore
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// User returns a copy of the signed-in user, nil when unknown
func (s *Session) User() *identity.Usuario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}
