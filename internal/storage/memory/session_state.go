package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AltairaLabs/diagram-studio/internal/session"
)

var (
	errSessionNil     = errors.New("session cannot be nil")
	errSessionIDEmpty = errors.New("session ID cannot be empty")
)

// SessionStore implements session.Store using an in-memory map
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewSessionStore creates a new in-memory session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
	}
}

// Get returns a copy of the session
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	// Return a copy to prevent external modifications
	return stored.Clone(), nil
}

// Put stores a copy of sess if its version matches the stored one
func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errSessionNil
	}
	if sess.ID == "" {
		return errSessionIDEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if stored, ok := s.sessions[sess.ID]; ok {
		current = stored.Version
	}
	if sess.Version != current {
		return fmt.Errorf("%w: %s has version %d, write based on %d",
			session.ErrConflict, sess.ID, current, sess.Version)
	}

	sess.Version = current + 1
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List returns copies of all sessions ordered by creation time
func (s *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session.Session, 0, len(s.sessions))
	for _, stored := range s.sessions {
		out = append(out, stored.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Len returns the number of stored sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
