package client

import (
	"context"
	"net/http"
	"time"

	"github.com/txn2/solar-portal/pkg/inactivity"
)

// SessionSyncer keeps one server session in step with an inactivity
// monitor.
type SessionSyncer struct {
	client    *Client
	sessionID string
}

// NewSessionSyncer returns a syncer for sessionID.
func NewSessionSyncer(c *Client, sessionID string) *SessionSyncer {
	return &SessionSyncer{client: c, sessionID: sessionID}
}

// Heartbeat reports activity. A session the server no longer knows or no
// longer considers active yields inactivity.ErrSessionEnded; a degraded
// answer yields the zero time.
func (s *SessionSyncer) Heartbeat(ctx context.Context) (time.Time, error) {
	res, err := s.client.Heartbeat(ctx, s.sessionID)
	if err != nil {
		switch StatusCode(err) {
		case http.StatusNotFound, http.StatusGone:
			return time.Time{}, inactivity.ErrSessionEnded
		}
		return time.Time{}, err
	}
	if res.Degraded || res.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return *res.ExpiresAt, nil
}

// End logs the session out.
func (s *SessionSyncer) End(ctx context.Context) error {
	return s.client.EndSession(ctx, s.sessionID)
}

// Verify interface compliance.
var _ inactivity.Syncer = (*SessionSyncer)(nil)
