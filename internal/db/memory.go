package db

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory (for development/testing).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
	}
}

// Get retrieves a copy of the session by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

// Put stores the session, replacing any previous value.
func (s *MemoryStore) Put(_ context.Context, session *Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.sessions[session.ID] = *session
	s.mu.Unlock()
	return nil
}

// UpdateToken updates the OAuth tokens for a session.
func (s *MemoryStore) UpdateToken(_ context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.AccessToken = accessToken
	session.RefreshToken = refreshToken
	session.ExpiresAt = expiresAt
	s.sessions[id] = session
	return nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// List returns all sessions.
func (s *MemoryStore) List(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Ensure all stores implement SessionStore.
var (
	_ SessionStore = (*MemoryStore)(nil)
	_ SessionStore = (*SQLiteSessionRepository)(nil)
	_ SessionStore = (*SessionRepository)(nil)
)
