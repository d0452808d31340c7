// Package api provides the portal's REST endpoints for sessions,
// notifications and administration.
//
// @title           Solar Portal API
// @version         1.0
// @description     Session lifecycle, in-app notifications and event dispatch for the solar project portal.
// @BasePath        /api/v1
// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @securityDefinitions.apikey  SessionAuth
// @in                          header
// @name                        X-Session-Id
package api

import (
	"encoding/json"
	"net/http"

	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/clock"
	"github.com/txn2/solar-portal/pkg/cooldown"
	"github.com/txn2/solar-portal/pkg/dispatch"
	"github.com/txn2/solar-portal/pkg/notification"
	"github.com/txn2/solar-portal/pkg/session"
)

const pathParamID = "id"

// Deps holds the collaborators behind the API. Nil collaborators leave
// their routes unregistered.
type Deps struct {
	Sessions      *session.Manager
	Notifications notification.Store
	Dispatcher    *dispatch.Dispatcher
	Slots         cooldown.Store
	Clock         clock.Clock
	Info          SystemInfo
}

// Handler serves the portal API.
type Handler struct {
	mux        *http.ServeMux
	deps       Deps
	clock      clock.Clock
	authMiddle func(http.Handler) http.Handler
}

// NewHandler creates the API handler. authMiddle authenticates every
// request; nil disables authentication, which is only useful in tests.
func NewHandler(deps Deps, authMiddle func(http.Handler) http.Handler) *Handler {
	h := &Handler{
		mux:        http.NewServeMux(),
		deps:       deps,
		clock:      clock.OrReal(deps.Clock),
		authMiddle: authMiddle,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all API routes.
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /api/v1/system/info", h.getSystemInfo)

	if h.deps.Sessions != nil {
		h.mux.HandleFunc("POST /api/v1/sessions", h.createSession)
		h.mux.HandleFunc("GET /api/v1/sessions/{id}", h.getSession)
		h.mux.HandleFunc("POST /api/v1/sessions/{id}/heartbeat", h.heartbeat)
		h.mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.endSession)
	}

	if h.deps.Notifications != nil && h.deps.Sessions != nil {
		withSession := session.RequireSession(h.deps.Sessions, auth.UserID)
		h.mux.Handle("GET /api/v1/notifications", withSession(http.HandlerFunc(h.listNotifications)))
		h.mux.Handle("GET /api/v1/notifications/unread-count", withSession(http.HandlerFunc(h.unreadCount)))
		h.mux.Handle("POST /api/v1/notifications/read-all", withSession(http.HandlerFunc(h.markAllRead)))
		h.mux.Handle("POST /api/v1/notifications/{id}/read", withSession(http.HandlerFunc(h.markRead)))
		h.mux.Handle("DELETE /api/v1/notifications/{id}", withSession(http.HandlerFunc(h.deleteNotification)))
	}

	adminOnly := auth.RequireRole(auth.RoleAdmin)
	if h.deps.Dispatcher != nil {
		h.mux.Handle("POST /api/v1/admin/events", adminOnly(http.HandlerFunc(h.dispatchEvent)))
	}
	if h.deps.Slots != nil {
		h.mux.Handle("GET /api/v1/admin/slots", adminOnly(http.HandlerFunc(h.listSlots)))
	}
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
