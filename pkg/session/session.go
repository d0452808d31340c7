// Package session manages portal login sessions. A session expires after a
// window of inactivity and never outlives a fixed maximum duration from
// login, whichever comes first. Ended sessions are never reactivated; a new
// login creates a new session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors returned by stores and the Manager.
var (
	// ErrNotFound means no session has the given ID.
	ErrNotFound = errors.New("session not found")

	// ErrNotActive means the session has ended or its expiry has passed.
	ErrNotActive = errors.New("session not active")

	// ErrAccessDenied is returned by access checks that could not verify
	// the session.
	ErrAccessDenied = errors.New("session access denied")
)

// EndReason records why a session ended.
type EndReason string

// End reasons.
const (
	EndLogout  EndReason = "logout"
	EndExpired EndReason = "expired"
)

// Session is the durable record of one login.
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	LoginTime        time.Time  `json:"login_time"`
	LastActivityTime time.Time  `json:"last_activity_time"`
	ExpiresAt        time.Time  `json:"expires_at"`
	IPAddress        string     `json:"ip_address,omitempty"`
	UserAgent        string     `json:"user_agent,omitempty"`
	IsActive         bool       `json:"is_active"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	EndReason        EndReason  `json:"end_reason,omitempty"`
}

// ExpiredAt reports whether an active session's expiry has passed at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Policy holds the expiry parameters.
type Policy struct {
	InactivityWindow time.Duration
	MaxDuration      time.Duration
}

// Validate checks that both durations are set and consistent.
func (p Policy) Validate() error {
	if p.InactivityWindow <= 0 {
		return fmt.Errorf("inactivity window must be positive, got %s", p.InactivityWindow)
	}
	if p.MaxDuration <= 0 {
		return fmt.Errorf("max session duration must be positive, got %s", p.MaxDuration)
	}
	if p.InactivityWindow > p.MaxDuration {
		return fmt.Errorf("inactivity window %s exceeds max session duration %s", p.InactivityWindow, p.MaxDuration)
	}
	return nil
}

// ExpiresAt returns min(lastActivity + InactivityWindow, login + MaxDuration).
func (p Policy) ExpiresAt(login, lastActivity time.Time) time.Time {
	idle := lastActivity.Add(p.InactivityWindow)
	limit := login.Add(p.MaxDuration)
	if idle.After(limit) {
		return limit
	}
	return idle
}

// Store defines the interface for session persistence. Rows are mutated only
// through Create, Heartbeat, End and ExpireStale.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID, ended or not. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Heartbeat records activity at now and returns the new expiry. It
	// returns ErrNotFound for unknown sessions and ErrNotActive for ended
	// or already expired ones.
	Heartbeat(ctx context.Context, id string, now time.Time, p Policy) (time.Time, error)

	// End marks a session inactive. Ending an ended session is a no-op.
	End(ctx context.Context, id string, reason EndReason, at time.Time) error

	// ExpireStale ends every active session whose expiry is at or before now
	// and returns how many were ended.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// ListActive returns the user's active sessions, newest login first.
	ListActive(ctx context.Context, userID string) ([]Session, error)
}
