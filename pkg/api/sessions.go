package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/session"
)

// heartbeatResponse is returned by POST /sessions/{id}/heartbeat.
type heartbeatResponse struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Degraded  bool       `json:"degraded"`
}

// createSession handles POST /api/v1/sessions.
//
// @Summary      Create session
// @Description  Starts a session for the authenticated user and sets the session cookie.
// @Tags         Sessions
// @Produce      json
// @Success      201  {object}  session.Session
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /sessions [post]
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sess, err := h.deps.Sessions.CreateSession(r.Context(), userID, clientIP(r), r.UserAgent())
	if err != nil {
		slog.Error("api: create session failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.LoginTime.Add(h.deps.Sessions.Policy().MaxDuration),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusCreated, sess)
}

// getSession handles GET /api/v1/sessions/{id}.
//
// @Summary      Get session
// @Description  Returns the session record. An expired session is ended before it is returned.
// @Tags         Sessions
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  session.Session
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /sessions/{id} [get]
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.GetSessionInfo(r.Context(), r.PathValue(pathParamID))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		slog.Error("api: get session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !canAccess(r, sess.UserID) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// heartbeat handles POST /api/v1/sessions/{id}/heartbeat.
//
// @Summary      Session heartbeat
// @Description  Records activity and returns the new expiry. When the session store is unavailable the response is marked degraded and carries no expiry.
// @Tags         Sessions
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  heartbeatResponse
// @Failure      404  {object}  errorResponse
// @Failure      410  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /sessions/{id}/heartbeat [post]
func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)

	// Ownership is checked when the store can answer. A lookup failure
	// falls through to Heartbeat, which degrades instead of failing.
	sess, err := h.deps.Sessions.GetSessionInfo(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err == nil && !canAccess(r, sess.UserID):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err == nil && !sess.IsActive:
		writeError(w, http.StatusGone, "session expired")
		return
	}

	res, err := h.deps.Sessions.Heartbeat(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, session.ErrNotActive):
		writeError(w, http.StatusGone, "session expired")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "heartbeat failed")
		return
	}

	resp := heartbeatResponse{Degraded: res.Degraded}
	if !res.ExpiresAt.IsZero() {
		resp.ExpiresAt = &res.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// endSession handles DELETE /api/v1/sessions/{id}.
//
// @Summary      End session
// @Description  Logs the session out. Ending an ended session succeeds.
// @Tags         Sessions
// @Param        id  path  string  true  "Session ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /sessions/{id} [delete]
func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)

	sess, err := h.deps.Sessions.GetSessionInfo(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		slog.Error("api: end session lookup failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	case !canAccess(r, sess.UserID):
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := h.deps.Sessions.EndSession(r.Context(), id); err != nil {
		slog.Error("api: end session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// canAccess reports whether the caller may see a session owned by ownerID.
// Unauthenticated handlers (tests) see everything.
func canAccess(r *http.Request, ownerID string) bool {
	user := auth.UserFromContext(r.Context())
	return user == nil || user.ID == ownerID || user.IsAdmin()
}

// clientIP returns the request's remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
