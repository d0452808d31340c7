package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/cooldown"
	"github.com/txn2/solar-portal/pkg/dispatch"
	"github.com/txn2/solar-portal/pkg/notification"
)

const maxEventBody = 1 << 20

// validationErrorResponse reports the first invalid field of a request.
type validationErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// slotListResponse wraps a slot listing.
type slotListResponse struct {
	Data []cooldown.Slot `json:"data"`
}

// dispatchEvent handles POST /api/v1/admin/events.
//
// @Summary      Dispatch event
// @Description  Creates in-app notifications for every recipient and sends cooldown-gated emails. Actor defaults to the caller.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body  dispatch.Event  true  "Event"
// @Success      200  {object}  dispatch.Result
// @Failure      400  {object}  validationErrorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /admin/events [post]
func (h *Handler) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	var ev dispatch.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if user := auth.UserFromContext(r.Context()); user != nil {
		if ev.ActorID == "" {
			ev.ActorID = user.ID
		}
		if ev.ActorRole == "" {
			ev.ActorRole = notification.SenderRole(user.Role)
		}
	}

	res, err := h.deps.Dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		var verr *dispatch.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, validationErrorResponse{Error: verr.Message, Field: verr.Field})
		case errors.Is(err, dispatch.ErrInvalidEvent):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("api: dispatch failed", "type", ev.Type, "project_id", ev.ProjectID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create notifications")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listSlots handles GET /api/v1/admin/slots.
//
// @Summary      List cooldown slots
// @Description  Returns cooldown slots, most recently updated first.
// @Tags         Admin
// @Produce      json
// @Param        recipient_id  query  string   false  "Filter by recipient"
// @Param        project_id    query  string   false  "Filter by project"
// @Param        state         query  string   false  "Filter by state (free, claimed, cooldown)"
// @Param        limit         query  integer  false  "Maximum results (default: 100)"
// @Success      200  {object}  slotListResponse
// @Failure      400  {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /admin/slots [get]
func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := cooldown.ListFilter{
		RecipientID: q.Get("recipient_id"),
		ProjectID:   q.Get("project_id"),
		State:       cooldown.State(q.Get("state")),
	}
	switch filter.State {
	case "", cooldown.StateFree, cooldown.StateClaimed, cooldown.StateCooldown:
	default:
		writeError(w, http.StatusBadRequest, "state must be free, claimed or cooldown")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	slots, err := h.deps.Slots.List(r.Context(), filter)
	if err != nil {
		slog.Error("api: list slots failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}
	if slots == nil {
		slots = []cooldown.Slot{}
	}
	writeJSON(w, http.StatusOK, slotListResponse{Data: slots})
}
