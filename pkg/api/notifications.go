package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/txn2/solar-portal/pkg/notification"
	"github.com/txn2/solar-portal/pkg/session"
)

// notificationListResponse wraps a page of notifications.
type notificationListResponse struct {
	Data   []notification.Record `json:"data"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// countResponse carries a count.
type countResponse struct {
	Count int64 `json:"count"`
}

// recipientID returns the user whose notifications the request addresses:
// the owner of the authorized session.
func recipientID(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess.UserID
	}
	return ""
}

// listNotifications handles GET /api/v1/notifications.
//
// @Summary      List notifications
// @Description  Returns the caller's notifications, newest first.
// @Tags         Notifications
// @Produce      json
// @Param        project_id  query  string   false  "Only this project"
// @Param        unread      query  boolean  false  "Only unread notifications"
// @Param        limit       query  integer  false  "Page size (default: 50, max: 200)"
// @Param        offset      query  integer  false  "Records to skip"
// @Success      200  {object}  notificationListResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Security     SessionAuth
// @Router       /notifications [get]
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	filter, err := parseNotificationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.RecipientID = recipientID(r)

	records, err := h.deps.Notifications.List(r.Context(), filter)
	if err != nil {
		slog.Error("api: list notifications failed", "recipient_id", filter.RecipientID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if records == nil {
		records = []notification.Record{}
	}

	writeJSON(w, http.StatusOK, notificationListResponse{
		Data:   records,
		Limit:  filter.EffectiveLimit(),
		Offset: filter.Offset,
	})
}

// parseNotificationFilter reads the list query parameters.
func parseNotificationFilter(r *http.Request) (notification.Filter, error) {
	q := r.URL.Query()
	filter := notification.Filter{ProjectID: q.Get("project_id")}

	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("unread must be a boolean")
		}
		filter.UnreadOnly = unread
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

// unreadCount handles GET /api/v1/notifications/unread-count.
//
// @Summary      Unread count
// @Description  Counts the caller's unread notifications.
// @Tags         Notifications
// @Produce      json
// @Success      200  {object}  countResponse
// @Failure      401  {object}  errorResponse
// @Security     SessionAuth
// @Router       /notifications/unread-count [get]
func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.UnreadCount(r.Context(), recipientID(r))
	if err != nil {
		slog.Error("api: unread count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: int64(n)})
}

// markRead handles POST /api/v1/notifications/{id}/read.
//
// @Summary      Mark notification read
// @Description  Marks one notification read. Marking a read notification again succeeds.
// @Tags         Notifications
// @Param        id  path  string  true  "Notification ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Security     SessionAuth
// @Router       /notifications/{id}/read [post]
func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Notifications.MarkRead(r.Context(), r.PathValue(pathParamID), recipientID(r), h.clock.Now())
	h.writeMutation(w, err, "mark notification read")
}

// markAllRead handles POST /api/v1/notifications/read-all.
//
// @Summary      Mark all notifications read
// @Description  Marks every unread notification of the caller read and returns how many changed.
// @Tags         Notifications
// @Produce      json
// @Success      200  {object}  countResponse
// @Security     SessionAuth
// @Router       /notifications/read-all [post]
func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.MarkAllRead(r.Context(), recipientID(r), h.clock.Now())
	if err != nil {
		slog.Error("api: mark all read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// deleteNotification handles DELETE /api/v1/notifications/{id}.
//
// @Summary      Delete notification
// @Description  Permanently hides a notification.
// @Tags         Notifications
// @Param        id  path  string  true  "Notification ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Security     SessionAuth
// @Router       /notifications/{id} [delete]
func (h *Handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Notifications.Delete(r.Context(), r.PathValue(pathParamID), recipientID(r), h.clock.Now())
	h.writeMutation(w, err, "delete notification")
}

func (*Handler) writeMutation(w http.ResponseWriter, err error, action string) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, notification.ErrNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	default:
		slog.Error("api: "+action+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
