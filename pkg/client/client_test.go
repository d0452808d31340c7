package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/solar-portal/pkg/api"
	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/clock"
	"github.com/txn2/solar-portal/pkg/cooldown"
	"github.com/txn2/solar-portal/pkg/dispatch"
	"github.com/txn2/solar-portal/pkg/inactivity"
	"github.com/txn2/solar-portal/pkg/mailer"
	"github.com/txn2/solar-portal/pkg/notification"
	"github.com/txn2/solar-portal/pkg/session"
)

const (
	adminKey  = "admin-secret-key"
	clientKey = "client-secret-key"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type portal struct {
	server *httptest.Server
	clock  *clock.Fake
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	fake := clock.NewFake(testNow)

	mgr, err := session.NewManager(session.ManagerConfig{
		Store:  session.NewMemoryStore(),
		Policy: session.Policy{InactivityWindow: 20 * time.Minute, MaxDuration: 8 * time.Hour},
		Clock:  fake,
	})
	require.NoError(t, err)

	records := notification.NewMemoryStore()
	slots := cooldown.NewMemoryStore()
	claimer, err := cooldown.NewClaimer(slots, cooldown.Policy{
		CooldownWindow: 5 * time.Minute,
		LeaseDuration:  30 * time.Second,
	}, fake)
	require.NoError(t, err)
	renderer, err := mailer.NewTemplateRenderer(nil)
	require.NoError(t, err)
	d, err := dispatch.New(dispatch.Config{
		Records:     records,
		Claimer:     claimer,
		Transport:   mailer.LogTransport{From: "portal@example.com"},
		Renderer:    renderer,
		Clock:       fake,
		SendTimeout: time.Second,
	})
	require.NoError(t, err)

	adminHash, err := auth.HashAPIKey(adminKey)
	require.NoError(t, err)
	clientHash, err := auth.HashAPIKey(clientKey)
	require.NoError(t, err)
	keys, err := auth.NewAPIKeyAuthenticator([]auth.APIKey{
		{Name: "ops", Hash: adminHash, UserID: "admin-1", Role: auth.RoleAdmin},
		{Name: "alice", Hash: clientHash, UserID: "client-1", Role: auth.RoleClient},
	})
	require.NoError(t, err)

	h := api.NewHandler(api.Deps{
		Sessions:      mgr,
		Notifications: records,
		Dispatcher:    d,
		Slots:         slots,
		Clock:         fake,
		Info:          api.SystemInfo{Name: "test-portal", Storage: "memory", MailMode: "log"},
	}, auth.Middleware(keys))

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &portal{server: srv, clock: fake}
}

func TestNew_Defaults(t *testing.T) {
	c := New("  ")
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.httpClient.Timeout)

	c = New("http://portal.example.com/", WithAPIKey(" k "), WithSessionID("s1"))
	assert.Equal(t, "http://portal.example.com", c.baseURL)
	assert.Equal(t, "k", c.apiKey)
	assert.Equal(t, "s1", c.SessionID())
	assert.Equal(t, "s2", c.WithSession("s2").SessionID())
	assert.Equal(t, "s1", c.SessionID())
}

func TestClient_SessionLifecycle(t *testing.T) {
	p := newPortal(t)
	ctx := context.Background()
	c := New(p.server.URL, WithAPIKey(clientKey))

	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "client-1", sess.UserID)
	assert.True(t, sess.IsActive)

	got, err := c.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	p.clock.Advance(10 * time.Minute)
	hb, err := c.Heartbeat(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, hb.ExpiresAt)
	assert.False(t, hb.Degraded)
	assert.True(t, hb.ExpiresAt.Equal(testNow.Add(30*time.Minute)))

	require.NoError(t, c.EndSession(ctx, sess.ID))

	_, err = c.Heartbeat(ctx, sess.ID)
	assert.Equal(t, http.StatusGone, StatusCode(err))
}

func TestClient_Unauthenticated(t *testing.T) {
	p := newPortal(t)
	_, err := New(p.server.URL).CreateSession(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "authentication required", httpErr.Message)
}

func TestClient_NotificationsAndDispatch(t *testing.T) {
	p := newPortal(t)
	ctx := context.Background()
	admin := New(p.server.URL, WithAPIKey(adminKey))
	alice := New(p.server.URL, WithAPIKey(clientKey))

	ev := dispatch.Event{
		Type:      notification.TypeCommentAdded,
		ProjectID: "proj-1",
		Recipients: []dispatch.Recipient{
			{UserID: "client-1", Email: "alice@example.com", EmailEnabled: true},
		},
	}
	res, err := admin.DispatchEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsCreated)
	assert.Equal(t, 1, res.EmailSent)

	res, err = admin.DispatchEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsCreated)
	assert.Equal(t, 1, res.EmailSkipped)

	_, err = alice.DispatchEvent(ctx, ev)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))

	slots, err := admin.ListSlots(ctx, cooldown.ListFilter{RecipientID: "client-1"})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "proj-1", slots[0].ProjectID)

	_, err = alice.ListNotifications(ctx, notification.Filter{})
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

	sess, err := alice.CreateSession(ctx)
	require.NoError(t, err)
	alice = alice.WithSession(sess.ID)

	page, err := alice.ListNotifications(ctx, notification.Filter{ProjectID: "proj-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 10, page.Limit)

	n, err := alice.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, alice.MarkRead(ctx, page.Data[0].ID))
	n, err = alice.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	changed, err := alice.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	require.NoError(t, alice.DeleteNotification(ctx, page.Data[1].ID))
	err = alice.DeleteNotification(ctx, page.Data[1].ID)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	page, err = alice.ListNotifications(ctx, notification.Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestClient_SystemInfo(t *testing.T) {
	p := newPortal(t)
	info, err := New(p.server.URL).SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-portal", info.Name)
	assert.True(t, info.Features["sessions"])
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"count":4}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithRetries(2, time.Millisecond))
	n, err := c.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithRetries(3, time.Millisecond))
	_, err := c.Heartbeat(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "Bad Gateway", httpErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetryHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.URL, WithRetries(5, time.Hour)).UnreadCount(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStatusCode_NonHTTPError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
	assert.Equal(t, 0, StatusCode(nil))
}

func TestSessionSyncer(t *testing.T) {
	p := newPortal(t)
	ctx := context.Background()
	c := New(p.server.URL, WithAPIKey(clientKey))
	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)

	s := NewSessionSyncer(c, sess.ID)
	p.clock.Advance(5 * time.Minute)
	expiresAt, err := s.Heartbeat(ctx)
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(testNow.Add(25*time.Minute)))

	require.NoError(t, s.End(ctx))
	_, err = s.Heartbeat(ctx)
	assert.ErrorIs(t, err, inactivity.ErrSessionEnded)

	_, err = NewSessionSyncer(c, "missing").Heartbeat(ctx)
	assert.ErrorIs(t, err, inactivity.ErrSessionEnded)
}

func TestSessionSyncer_Degraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"degraded":true}`))
	}))
	t.Cleanup(srv.Close)

	expiresAt, err := NewSessionSyncer(New(srv.URL), "s1").Heartbeat(context.Background())
	require.NoError(t, err)
	assert.True(t, expiresAt.IsZero())
}

func TestSessionSyncer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewSessionSyncer(New(srv.URL), "s1").Heartbeat(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, inactivity.ErrSessionEnded)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}
