// Package client is a typed HTTP client for the portal API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/txn2/solar-portal/pkg/api"
	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/cooldown"
	"github.com/txn2/solar-portal/pkg/dispatch"
	"github.com/txn2/solar-portal/pkg/notification"
	"github.com/txn2/solar-portal/pkg/session"
)

const (
	defaultBaseURL    = "http://127.0.0.1:8080"
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 200 * time.Millisecond
)

// HTTPError is a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey authenticates with an API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithBearerToken authenticates with a JWT.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearer = strings.TrimSpace(token) }
}

// WithSessionID attaches a session to notification requests.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

// WithRetries sets how often idempotent requests are retried after a network
// error or a 5xx/429 response.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max(n, 0)
		c.retryDelay = delay
	}
}

// Client calls the portal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	bearer     string
	sessionID  string
	maxRetries int
	retryDelay time.Duration
}

// New creates a client for the portal at baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSession returns a copy of c that sends the given session ID.
func (c *Client) WithSession(id string) *Client {
	cp := *c
	cp.sessionID = id
	return &cp
}

// SessionID returns the session ID sent with notification requests.
func (c *Client) SessionID() string {
	return c.sessionID
}

// HeartbeatResult is the server's answer to a heartbeat.
type HeartbeatResult struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Degraded  bool       `json:"degraded"`
}

// SystemInfo is returned by GET /system/info.
type SystemInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Storage     string          `json:"storage"`
	MailMode    string          `json:"mail_mode"`
	Version     string          `json:"version"`
	Commit      string          `json:"commit"`
	BuildDate   string          `json:"build_date"`
	Features    map[string]bool `json:"features"`

	SessionPolicy *api.SessionPolicy `json:"session_policy,omitempty"`
}

// NotificationPage is one page of notifications.
type NotificationPage struct {
	Data   []notification.Record `json:"data"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// CreateSession logs in and returns the new session.
func (c *Client) CreateSession(ctx context.Context) (*session.Session, error) {
	var sess session.Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession returns a session record.
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Heartbeat reports activity on a session.
func (c *Client) Heartbeat(ctx context.Context, id string) (HeartbeatResult, error) {
	var res HeartbeatResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/heartbeat", nil, &res)
	return res, err
}

// EndSession logs a session out.
func (c *Client) EndSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// ListNotifications returns a page of the session owner's notifications.
func (c *Client) ListNotifications(ctx context.Context, f notification.Filter) (NotificationPage, error) {
	q := url.Values{}
	if f.ProjectID != "" {
		q.Set("project_id", f.ProjectID)
	}
	if f.UnreadOnly {
		q.Set("unread", "true")
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/api/v1/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page NotificationPage
	err := c.doJSON(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// UnreadCount returns the number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var res countResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/notifications/unread-count", nil, &res)
	return res.Count, err
}

// MarkRead marks one notification read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllRead marks every notification read and returns how many changed.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var res countResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/notifications/read-all", nil, &res)
	return res.Count, err
}

// DeleteNotification hides a notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/notifications/"+url.PathEscape(id), nil, nil)
}

// DispatchEvent sends an event for notification. Requires an admin identity.
func (c *Client) DispatchEvent(ctx context.Context, ev dispatch.Event) (dispatch.Result, error) {
	var res dispatch.Result
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/admin/events", ev, &res)
	return res, err
}

// ListSlots returns cooldown slots. Requires an admin identity.
func (c *Client) ListSlots(ctx context.Context, f cooldown.ListFilter) ([]cooldown.Slot, error) {
	q := url.Values{}
	if f.RecipientID != "" {
		q.Set("recipient_id", f.RecipientID)
	}
	if f.ProjectID != "" {
		q.Set("project_id", f.ProjectID)
	}
	if f.State != "" {
		q.Set("state", string(f.State))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/api/v1/admin/slots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res struct {
		Data []cooldown.Slot `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &res)
	return res.Data, err
}

// SystemInfo returns deployment details.
func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/system/info", nil, &info)
	return info, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet || method == http.MethodDelete {
		retries = c.maxRetries
	}

	for attempt := 0; ; attempt++ {
		status, respBody, err := c.roundTrip(ctx, method, path, payload)
		retryable := err != nil || status == http.StatusTooManyRequests || status >= 500
		if retryable && attempt < retries {
			if waitErr := sleepContext(ctx, c.retryDelay*time.Duration(attempt+1)); waitErr != nil {
				return waitErr
			}
			continue
		}
		if err != nil {
			return err
		}

		if status >= 200 && status <= 299 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			return nil
		}

		var errPayload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errPayload)
		if errPayload.Error == "" {
			errPayload.Error = http.StatusText(status)
		}
		return &HTTPError{StatusCode: status, Message: errPayload.Error}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, c.apiKey)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.sessionID != "" {
		req.Header.Set(session.IDHeader, c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
