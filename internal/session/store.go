package session

import (
	"sync"
	"time"

	"github.com/spec-kit/verification-bot/internal/domain"
)

// Store holds at most one active session per user id.
type Store interface {
	Get(userID string) (domain.Session, bool)
	Put(sess domain.Session)
	Delete(userID string)
	IdleSince(before time.Time) []string
}

// MemoryStore is a goroutine-safe in-memory Store. Sessions live for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.Session)}
}

// Get returns the session for userID, if any.
func (s *MemoryStore) Get(userID string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Put creates or replaces the session keyed by sess.UserID.
func (s *MemoryStore) Put(sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess
}

// Delete removes the session for userID. Deleting a missing session is a no-op.
func (s *MemoryStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len reports the number of active sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IdleSince lists users whose session has not been updated since before.
func (s *MemoryStore) IdleSince(before time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids
}
