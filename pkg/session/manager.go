package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/solar-portal/pkg/clock"
)

// sessionIDBytes is the number of random bytes for session ID generation.
const sessionIDBytes = 16

// slogKeyError is the slog attribute key for error values.
const slogKeyError = "error"

// HeartbeatResult is the outcome of a heartbeat. Degraded means the store
// could not be reached and the session was assumed valid for this tick;
// ExpiresAt is zero in that case.
type HeartbeatResult struct {
	ExpiresAt time.Time
	Degraded  bool
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store  Store
	Policy Policy
	Clock  clock.Clock
}

// Manager applies the session policy on top of a Store.
type Manager struct {
	store  Store
	policy Policy
	clock  clock.Clock

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager. A nil clock uses the real clock.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		store:  cfg.Store,
		policy: cfg.Policy,
		clock:  clock.OrReal(cfg.Clock),
	}, nil
}

// Policy returns the manager's expiry parameters.
func (m *Manager) Policy() Policy {
	return m.policy
}

// CreateSession starts a new session for userID.
func (m *Manager) CreateSession(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	sess := &Session{
		ID:               id,
		UserID:           userID,
		LoginTime:        now,
		LastActivityTime: now,
		ExpiresAt:        m.policy.ExpiresAt(now, now),
		IPAddress:        ip,
		UserAgent:        userAgent,
		IsActive:         true,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	slog.Info("session: created", "session_id", id, "user_id", userID)
	return sess, nil
}

// Heartbeat records activity. ErrNotFound and ErrNotActive are returned as
// is; any other store failure fails open with a Degraded result.
func (m *Manager) Heartbeat(ctx context.Context, id string) (HeartbeatResult, error) {
	expiresAt, err := m.store.Heartbeat(ctx, id, m.clock.Now(), m.policy)
	switch {
	case err == nil:
		return HeartbeatResult{ExpiresAt: expiresAt}, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotActive):
		return HeartbeatResult{}, err
	default:
		slog.Error("session: heartbeat failed, treating session as valid",
			"session_id", id, slogKeyError, err)
		return HeartbeatResult{Degraded: true}, nil
	}
}

// EndSession ends a session on logout. Ending an ended session is a no-op.
func (m *Manager) EndSession(ctx context.Context, id string) error {
	if err := m.store.End(ctx, id, EndLogout, m.clock.Now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("ending session: %w", err)
	}
	slog.Info("session: ended", "session_id", id, "reason", EndLogout)
	return nil
}

// GetSessionInfo returns the session record, ending it first if its expiry
// has passed.
func (m *Manager) GetSessionInfo(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	m.expireIfStale(ctx, sess)
	return sess, nil
}

// Authorize returns the session if it may be used now. Any failure denies
// access; a store failure never changes the session.
func (m *Manager) Authorize(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		slog.Warn("session: access check failed, denying", "session_id", id, slogKeyError, err)
		return nil, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	if m.expireIfStale(ctx, sess) || !sess.IsActive {
		return nil, ErrNotActive
	}
	return sess, nil
}

// expireIfStale ends an active session whose expiry has passed and updates
// sess to match. It reports whether the session was found stale.
func (m *Manager) expireIfStale(ctx context.Context, sess *Session) bool {
	if !sess.IsActive || !sess.ExpiredAt(m.clock.Now()) {
		return false
	}
	if err := m.store.End(ctx, sess.ID, EndExpired, sess.ExpiresAt); err != nil {
		slog.Warn("session: on-access expiry failed", "session_id", sess.ID, slogKeyError, err)
		return true
	}
	endLocked(sess, EndExpired, sess.ExpiresAt)
	return true
}

// Sweep ends every active session whose expiry has passed.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.ExpireStale(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expiring stale sessions: %w", err)
	}
	if n > 0 {
		slog.Info("session: expired stale sessions", "count", n)
	}
	return n, nil
}

// StartSweepRoutine starts a background goroutine that periodically expires
// stale sessions. The goroutine is stopped when Close is called.
func (m *Manager) StartSweepRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Sweep(ctx); err != nil {
					slog.Warn("session sweep failed", slogKeyError, err)
				}
			}
		}
	}()
}

// Close stops the sweep goroutine and waits for it to exit.
// It is safe to call Close even if StartSweepRoutine was never called.
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	return nil
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
