// Package postgres provides PostgreSQL storage for portal sessions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/solar-portal/pkg/session"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "user_id", "login_time", "last_activity_time", "expires_at",
	"ip_address", "user_agent", "is_active", "ended_at", "end_reason",
}

// heartbeatQuery moves last activity forward and recomputes the capped
// expiry in one statement. Ended or expired rows are left untouched.
//
// $1 id, $2 now, $3 inactivity window, $4 max duration.
const heartbeatQuery = `
	UPDATE user_sessions
	SET last_activity_time = GREATEST(last_activity_time, $2::timestamptz),
		expires_at = LEAST(
			GREATEST(last_activity_time, $2::timestamptz) + $3::interval,
			login_time + $4::interval
		)
	WHERE id = $1 AND is_active = TRUE AND expires_at > $2::timestamptz
	RETURNING expires_at
`

// Store implements session.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO user_sessions
			(id, user_id, login_time, last_activity_time, expires_at, ip_address, user_agent, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.LoginTime, sess.LastActivityTime, sess.ExpiresAt,
		sess.IPAddress, sess.UserAgent, sess.IsActive,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("user_sessions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return sess, nil
}

// Heartbeat records activity and returns the new expiry.
func (s *Store) Heartbeat(ctx context.Context, id string, now time.Time, p session.Policy) (time.Time, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, heartbeatQuery,
		id,
		now,
		intervalSeconds(p.InactivityWindow),
		intervalSeconds(p.MaxDuration),
	).Scan(&expiresAt)
	if err == nil {
		return expiresAt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("recording heartbeat: %w", err)
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if existing == nil {
		return time.Time{}, session.ErrNotFound
	}
	return time.Time{}, session.ErrNotActive
}

// End marks a session inactive. Ending an ended session is a no-op.
func (s *Store) End(ctx context.Context, id string, reason session.EndReason, at time.Time) error {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = $3, end_reason = $2
		WHERE id = $1 AND is_active = TRUE
	`
	result, err := s.db.ExecContext(ctx, query, id, string(reason), at)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return session.ErrNotFound
	}
	return nil
}

// ExpireStale ends every active session whose expiry has passed. ended_at
// is the expiry itself, not the sweep time.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE user_sessions
		SET is_active = FALSE, ended_at = expires_at, end_reason = 'expired'
		WHERE is_active = TRUE AND expires_at <= $1
	`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expiring sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ListActive returns the user's active sessions, newest login first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("user_sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"is_active": true}).
		OrderBy("login_time DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]session.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*session.Session, error) {
	var (
		sess    session.Session
		endedAt sql.NullTime
		reason  string
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.LoginTime,
		&sess.LastActivityTime,
		&sess.ExpiresAt,
		&sess.IPAddress,
		&sess.UserAgent,
		&sess.IsActive,
		&endedAt,
		&reason,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with query context
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	sess.EndReason = session.EndReason(reason)
	return &sess, nil
}

// intervalSeconds formats d for a PostgreSQL interval parameter.
func intervalSeconds(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
