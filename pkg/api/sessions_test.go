package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/solar-portal/pkg/session"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/sessions", "", asUser("U1"), func(r *http.Request) {
		r.RemoteAddr = "203.0.113.7:51234"
		r.Header.Set("User-Agent", "portal-test/1.0")
	})
	require.Equal(t, http.StatusCreated, w.Code)

	sess := decode[session.Session](t, w)
	assert.Equal(t, "U1", sess.UserID)
	assert.Equal(t, "203.0.113.7", sess.IPAddress)
	assert.Equal(t, "portal-test/1.0", sess.UserAgent)
	assert.True(t, sess.IsActive)
	assert.Equal(t, testNow.Add(20*time.Minute), sess.ExpiresAt)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestCreateSession_RequiresUser(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.login(t, "U1")

	w := env.do(http.MethodGet, "/api/v1/sessions/"+id, "", asUser("U1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[session.Session](t, w).ID)

	w = env.do(http.MethodGet, "/api/v1/sessions/"+id, "", asUser("U2"))
	assert.Equal(t, http.StatusNotFound, w.Code, "foreign sessions are invisible")

	w = env.do(http.MethodGet, "/api/v1/sessions/"+id, "", asAdmin("A1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/sessions/missing", "", asUser("U1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	id := env.login(t, "U1")

	env.clock.Advance(10 * time.Minute)
	w := env.do(http.MethodPost, "/api/v1/sessions/"+id+"/heartbeat", "", asUser("U1"))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[heartbeatResponse](t, w)
	assert.False(t, resp.Degraded)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, testNow.Add(30*time.Minute), resp.ExpiresAt.UTC())

	w = env.do(http.MethodPost, "/api/v1/sessions/"+id+"/heartbeat", "", asUser("U2"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/sessions/nope/heartbeat", "", asUser("U1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHeartbeat_ExpiredSessionIsGone(t *testing.T) {
	env := newTestEnv(t)
	id := env.login(t, "U1")

	env.clock.Advance(20 * time.Minute)
	w := env.do(http.MethodPost, "/api/v1/sessions/"+id+"/heartbeat", "", asUser("U1"))
	assert.Equal(t, http.StatusGone, w.Code)

	w = env.do(http.MethodGet, "/api/v1/sessions/"+id, "", asUser("U1"))
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[session.Session](t, w)
	assert.False(t, sess.IsActive)
	assert.Equal(t, session.EndExpired, sess.EndReason)
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.login(t, "U1")

	w := env.do(http.MethodDelete, "/api/v1/sessions/"+id, "", asUser("U2"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/sessions/"+id, "", asUser("U1"))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/sessions/"+id, "", asUser("U1"))
	assert.Equal(t, http.StatusNoContent, w.Code, "ending twice succeeds")

	w = env.do(http.MethodPost, "/api/v1/sessions/"+id+"/heartbeat", "", asUser("U1"))
	assert.Equal(t, http.StatusGone, w.Code, "ended sessions are never revived")
}

func TestClientIP(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", http.NoBody)
	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", clientIP(r))

	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(r))
}
