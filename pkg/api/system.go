package api

import (
	"net/http"

	"github.com/txn2/solar-portal/internal/server"
)

// SystemInfo describes the running deployment.
type SystemInfo struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Storage       string         `json:"storage"`
	MailMode      string         `json:"mail_mode"`
	SessionPolicy *SessionPolicy `json:"session_policy,omitempty"`
}

// SessionPolicy tells clients how to run their inactivity monitor.
type SessionPolicy struct {
	InactivityWindowSeconds int64 `json:"inactivity_window_seconds"`
	MaxDurationSeconds      int64 `json:"max_duration_seconds"`
	WarningLeadSeconds      int64 `json:"warning_lead_seconds"`
}

// systemInfoResponse is returned by GET /system/info.
type systemInfoResponse struct {
	SystemInfo
	Version   string         `json:"version"`
	Commit    string         `json:"commit"`
	BuildDate string         `json:"build_date"`
	Features  systemFeatures `json:"features"`
}

// systemFeatures lists which route groups are served.
type systemFeatures struct {
	Sessions      bool `json:"sessions"`
	Notifications bool `json:"notifications"`
	Dispatch      bool `json:"dispatch"`
	Slots         bool `json:"slots"`
}

// getSystemInfo handles GET /api/v1/system/info.
//
// @Summary      Get system info
// @Description  Returns portal identity, build version and the enabled route groups.
// @Tags         System
// @Produce      json
// @Success      200  {object}  systemInfoResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /system/info [get]
func (h *Handler) getSystemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, systemInfoResponse{
		SystemInfo: h.deps.Info,
		Version:    server.Version,
		Commit:     server.Commit,
		BuildDate:  server.Date,
		Features: systemFeatures{
			Sessions:      h.deps.Sessions != nil,
			Notifications: h.deps.Notifications != nil && h.deps.Sessions != nil,
			Dispatch:      h.deps.Dispatcher != nil,
			Slots:         h.deps.Slots != nil,
		},
	})
}
