package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const (
	// IDHeader carries the session ID on API requests.
	IDHeader = "X-Session-Id"

	// CookieName is the browser cookie holding the session ID.
	CookieName = "portal_session"
)

// contextKey is a private type for context keys in the session package.
type contextKey string

const sessionKey contextKey = "portal_session"

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext returns the session stored by RequireSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

// IDFromRequest returns the session ID from the header, falling back to the
// cookie.
func IDFromRequest(r *http.Request) string {
	if id := r.Header.Get(IDHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// OwnerFunc returns the authenticated user ID for a request context, or ""
// when the request is anonymous.
type OwnerFunc func(ctx context.Context) string

// RequireSession rejects requests without an active session. When owner is
// non-nil and returns a user, the session must belong to that user.
func RequireSession(m *Manager, owner OwnerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IDFromRequest(r)
			if id == "" {
				writeError(w, http.StatusUnauthorized, "session required")
				return
			}

			sess, err := m.Authorize(r.Context(), id)
			switch {
			case errors.Is(err, ErrAccessDenied):
				writeError(w, http.StatusServiceUnavailable, "session could not be verified")
				return
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotActive):
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			case err != nil:
				slog.Error("session: authorize failed", "session_id", id, slogKeyError, err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			if owner != nil {
				if userID := owner(r.Context()); userID != "" && userID != sess.UserID {
					writeError(w, http.StatusForbidden, "session ownership mismatch")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
