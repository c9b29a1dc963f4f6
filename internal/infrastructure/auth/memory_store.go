package auth

import (
	"context"
	"sync"

	"github.com/erp/appinv/internal/domain/identity"
)

// MemoryStore keeps the session in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	user  *identity.Usuario
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) SaveToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) ClearToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context) (*identity.Usuario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user), nil
}

func (s *MemoryStore) SaveUser(_ context.Context, user *identity.Usuario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = cloneUser(user)
	return nil
}

func (s *MemoryStore) ClearUser(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
