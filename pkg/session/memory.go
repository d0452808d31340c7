package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create persists a copy of sess.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	cp := *sess
	return &cp, nil
}

// Heartbeat records activity and recomputes the expiry.
func (s *MemoryStore) Heartbeat(_ context.Context, id string, now time.Time, p Policy) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	if !sess.IsActive || sess.ExpiredAt(now) {
		return time.Time{}, ErrNotActive
	}

	if now.After(sess.LastActivityTime) {
		sess.LastActivityTime = now
	}
	sess.ExpiresAt = p.ExpiresAt(sess.LoginTime, sess.LastActivityTime)
	return sess.ExpiresAt, nil
}

// End marks a session inactive.
func (s *MemoryStore) End(_ context.Context, id string, reason EndReason, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if !sess.IsActive {
		return nil
	}
	endLocked(sess, reason, at)
	return nil
}

// ExpireStale ends every active session whose expiry has passed.
func (s *MemoryStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, sess := range s.sessions {
		if sess.IsActive && sess.ExpiredAt(now) {
			endLocked(sess, EndExpired, sess.ExpiresAt)
			n++
		}
	}
	return n, nil
}

// ListActive returns the user's active sessions, newest login first.
func (s *MemoryStore) ListActive(_ context.Context, userID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Session, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			result = append(result, *sess)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LoginTime.After(result[j].LoginTime)
	})
	return result, nil
}

func endLocked(sess *Session, reason EndReason, at time.Time) {
	endedAt := at
	sess.IsActive = false
	sess.EndedAt = &endedAt
	sess.EndReason = reason
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
