package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/solar-portal/pkg/notification"
)

func seedRecord(t *testing.T, env *testEnv, id, recipient, project string, age time.Duration) {
	t.Helper()
	require.NoError(t, env.records.Insert(context.Background(), &notification.Record{
		ID:          id,
		RecipientID: recipient,
		ProjectID:   project,
		Type:        notification.TypeCommentAdded,
		SenderID:    "A1",
		SenderRole:  notification.RoleAdmin,
		CreatedAt:   testNow.Add(-age),
	}))
}

func TestNotifications_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/notifications", "", asUser("U1"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	id := env.login(t, "U1")
	w = env.do(http.MethodGet, "/api/v1/notifications", "", asUser("U2"), withSessionID(id))
	assert.Equal(t, http.StatusForbidden, w.Code, "session belongs to another user")

	env.clock.Advance(21 * time.Minute)
	w = env.do(http.MethodGet, "/api/v1/notifications", "", asUser("U1"), withSessionID(id))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "expired session")
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "n1", "U1", "P1", 3*time.Minute)
	seedRecord(t, env, "n2", "U1", "P2", 2*time.Minute)
	seedRecord(t, env, "n3", "U1", "P1", time.Minute)
	seedRecord(t, env, "other", "U2", "P1", time.Minute)
	id := env.login(t, "U1")

	w := env.do(http.MethodGet, "/api/v1/notifications", "", asUser("U1"), withSessionID(id))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[notificationListResponse](t, w)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "n3", resp.Data[0].ID)
	assert.Equal(t, notification.DefaultListLimit, resp.Limit)

	w = env.do(http.MethodGet, "/api/v1/notifications?project_id=P1&limit=1&offset=1", "", asUser("U1"), withSessionID(id))
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[notificationListResponse](t, w)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "n1", resp.Data[0].ID)

	for _, q := range []string{"limit=x", "offset=-1", "unread=maybe"} {
		w = env.do(http.MethodGet, "/api/v1/notifications?"+q, "", asUser("U1"), withSessionID(id))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestReadAndDeleteFlow(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, "n1", "U1", "P1", 2*time.Minute)
	seedRecord(t, env, "n2", "U1", "P1", time.Minute)
	seedRecord(t, env, "foreign", "U2", "P1", time.Minute)
	id := env.login(t, "U1")
	as := []reqOpt{asUser("U1"), withSessionID(id)}

	unread := func() int64 {
		w := env.do(http.MethodGet, "/api/v1/notifications/unread-count", "", as...)
		require.Equal(t, http.StatusOK, w.Code)
		return decode[countResponse](t, w).Count
	}
	assert.Equal(t, int64(2), unread())

	w := env.do(http.MethodPost, "/api/v1/notifications/n1/read", "", as...)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodPost, "/api/v1/notifications/n1/read", "", as...)
	assert.Equal(t, http.StatusNoContent, w.Code, "marking twice is a no-op")
	assert.Equal(t, int64(1), unread())

	w = env.do(http.MethodPost, "/api/v1/notifications/foreign/read", "", as...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/notifications?unread=true", "", as...)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[notificationListResponse](t, w)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "n2", resp.Data[0].ID)

	w = env.do(http.MethodPost, "/api/v1/notifications/read-all", "", as...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[countResponse](t, w).Count)
	assert.Equal(t, int64(0), unread())

	w = env.do(http.MethodDelete, "/api/v1/notifications/n2", "", as...)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, "/api/v1/notifications/n2", "", as...)
	assert.Equal(t, http.StatusNotFound, w.Code, "deletion is terminal")
}
