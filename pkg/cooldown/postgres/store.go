// Package postgres provides PostgreSQL storage for cooldown slots.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/txn2/solar-portal/pkg/cooldown"
)

const defaultListLimit = 100

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// slotColumns lists columns returned by slot SELECT queries.
var slotColumns = []string{
	"recipient_id", "project_id", "state", "claimed_at",
	"last_sent_at", "lease_expires_at", "lease_id", "updated_at",
}

// claimQuery inserts a claimed row or takes over an existing one when the
// grant rule holds. ON CONFLICT DO UPDATE locks the conflicting row, so the
// WHERE clause is evaluated against the latest committed version and at most
// one concurrent caller gets a row back.
//
// $1 recipient, $2 project, $3 now, $4 lease expiry, $5 lease id,
// $6 now minus the cooldown window.
const claimQuery = `
	INSERT INTO notification_slots AS s
		(recipient_id, project_id, state, claimed_at, lease_expires_at, lease_id, updated_at)
	VALUES ($1, $2, 'claimed', $3, $4, $5, $3)
	ON CONFLICT (recipient_id, project_id) DO UPDATE
	SET state = 'claimed',
		claimed_at = EXCLUDED.claimed_at,
		lease_expires_at = EXCLUDED.lease_expires_at,
		lease_id = EXCLUDED.lease_id,
		updated_at = EXCLUDED.updated_at
	WHERE s.state = 'free'
		OR (s.state = 'cooldown' AND (s.last_sent_at IS NULL OR s.last_sent_at <= $6))
		OR (s.state = 'claimed' AND (s.lease_expires_at IS NULL OR s.lease_expires_at <= $3))
	RETURNING lease_id
`

// Store implements cooldown.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL slot store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// TryClaim runs the conditional upsert. When it returns no row the claim was
// denied, and the current slot is read to report how long to wait.
func (s *Store) TryClaim(ctx context.Context, key cooldown.Key, now time.Time, p cooldown.Policy) (cooldown.Decision, error) {
	leaseID := uuid.NewString()

	var granted string
	err := s.db.QueryRowContext(ctx, claimQuery,
		key.RecipientID,
		key.ProjectID,
		now,
		now.Add(p.LeaseDuration),
		leaseID,
		now.Add(-p.CooldownWindow),
	).Scan(&granted)
	if err == nil {
		return cooldown.Decision{Granted: true, LeaseID: granted}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return cooldown.Decision{}, fmt.Errorf("claiming slot: %w", err)
	}

	slot, err := s.Get(ctx, key)
	if err != nil {
		return cooldown.Decision{}, err
	}
	d := cooldown.Evaluate(slot, now, p)
	// The row changed between the upsert and the read; still a denial for
	// this attempt.
	return cooldown.Decision{RetryAfter: d.RetryAfter, Reason: d.Reason}, nil
}

// ConfirmSent moves a slot held by leaseID into cooldown.
func (s *Store) ConfirmSent(ctx context.Context, key cooldown.Key, leaseID string, sentAt time.Time) (bool, error) {
	query := `
		UPDATE notification_slots
		SET state = 'cooldown', last_sent_at = $4,
			claimed_at = NULL, lease_expires_at = NULL, lease_id = NULL, updated_at = $4
		WHERE recipient_id = $1 AND project_id = $2 AND state = 'claimed' AND lease_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, key.RecipientID, key.ProjectID, leaseID, sentAt)
	if err != nil {
		return false, fmt.Errorf("confirming slot: %w", err)
	}
	return affectedOne(result)
}

// ReleaseClaim frees a slot held by leaseID.
func (s *Store) ReleaseClaim(ctx context.Context, key cooldown.Key, leaseID string, at time.Time) (bool, error) {
	query := `
		UPDATE notification_slots
		SET state = 'free', claimed_at = NULL, lease_expires_at = NULL, lease_id = NULL, updated_at = $4
		WHERE recipient_id = $1 AND project_id = $2 AND state = 'claimed' AND lease_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, key.RecipientID, key.ProjectID, leaseID, at)
	if err != nil {
		return false, fmt.Errorf("releasing slot: %w", err)
	}
	return affectedOne(result)
}

// CleanupExpiredLeases frees claimed slots whose lease has expired.
func (s *Store) CleanupExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE notification_slots
		SET state = 'free', claimed_at = NULL, lease_expires_at = NULL, lease_id = NULL, updated_at = $1
		WHERE state = 'claimed' AND lease_expires_at <= $1
	`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired leases: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Get retrieves a slot. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, key cooldown.Key) (*cooldown.Slot, error) {
	query, args, err := psq.Select(slotColumns...).
		From("notification_slots").
		Where(sq.Eq{"recipient_id": key.RecipientID, "project_id": key.ProjectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building slot query: %w", err)
	}

	slot, err := scanSlot(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning slot: %w", err)
	}
	return slot, nil
}

// List returns slots matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter cooldown.ListFilter) ([]cooldown.Slot, error) {
	qb := psq.Select(slotColumns...).From("notification_slots")
	if filter.RecipientID != "" {
		qb = qb.Where(sq.Eq{"recipient_id": filter.RecipientID})
	}
	if filter.ProjectID != "" {
		qb = qb.Where(sq.Eq{"project_id": filter.ProjectID})
	}
	if filter.State != "" {
		qb = qb.Where(sq.Eq{"state": string(filter.State)})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	qb = qb.OrderBy("updated_at DESC").Limit(uint64(limit)) //nolint:gosec // limit is positive

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building slot list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	slots := make([]cooldown.Slot, 0, limit)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning slot row: %w", err)
		}
		slots = append(slots, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slot rows: %w", err)
	}
	return slots, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (*cooldown.Slot, error) {
	var (
		slot                                cooldown.Slot
		state                               string
		claimedAt, lastSentAt, leaseExpires sql.NullTime
		leaseID                             sql.NullString
	)
	err := row.Scan(
		&slot.RecipientID,
		&slot.ProjectID,
		&state,
		&claimedAt,
		&lastSentAt,
		&leaseExpires,
		&leaseID,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with query context
	}

	slot.State = cooldown.State(state)
	slot.ClaimedAt = timePtr(claimedAt)
	slot.LastSentAt = timePtr(lastSentAt)
	slot.LeaseExpiresAt = timePtr(leaseExpires)
	slot.LeaseID = leaseID.String
	return &slot, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// Verify interface compliance.
var _ cooldown.Store = (*Store)(nil)
