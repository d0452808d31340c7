// Package postgres provides PostgreSQL storage for notification records.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/txn2/solar-portal/pkg/notification"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// recordColumns lists columns returned by record SELECT queries.
var recordColumns = []string{
	"id", "recipient_id", "project_id", "type", "payload",
	"sender_id", "sender_role", "read", "read_at", "created_at",
}

// Store implements notification.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL notification store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists a new record.
func (s *Store) Insert(ctx context.Context, rec *notification.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	if rec.Payload == nil {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO notifications
			(id, recipient_id, project_id, type, payload, sender_id, sender_role, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.RecipientID,
		nullString(rec.ProjectID),
		string(rec.Type),
		payload,
		rec.SenderID,
		string(rec.SenderRole),
		rec.Read,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// Get retrieves a record by ID. Returns nil, nil if not found or deleted.
func (s *Store) Get(ctx context.Context, id string) (*notification.Record, error) {
	if !validID(id) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}

	query, args, err := psq.Select(recordColumns...).
		From("notifications").
		Where(sq.Eq{"id": id}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building notification query: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning notification: %w", err)
	}
	return rec, nil
}

// List returns the recipient's records, newest first.
func (s *Store) List(ctx context.Context, filter notification.Filter) ([]notification.Record, error) {
	qb := psq.Select(recordColumns...).
		From("notifications").
		Where(sq.Eq{"recipient_id": filter.RecipientID}).
		Where("deleted_at IS NULL")
	if filter.ProjectID != "" {
		qb = qb.Where(sq.Eq{"project_id": filter.ProjectID})
	}
	if filter.UnreadOnly {
		qb = qb.Where(sq.Eq{"read": false})
	}

	limit := filter.EffectiveLimit()
	qb = qb.OrderBy("created_at DESC", "id DESC").Limit(uint64(limit)) //nolint:gosec // limit is positive
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset)) //nolint:gosec // offset is positive
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building notification list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]notification.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}
	return records, nil
}

// MarkRead sets the read flag. read_at keeps its first value.
func (s *Store) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	if !validID(id) {
		return notification.ErrNotFound
	}

	query := `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, recipientID, at)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return requireOne(result)
}

// MarkAllRead marks every unread record of the recipient as read.
func (s *Store) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND read = FALSE AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Delete hides a record permanently.
func (s *Store) Delete(ctx context.Context, id, recipientID string, at time.Time) error {
	if !validID(id) {
		return notification.ErrNotFound
	}

	query := `
		UPDATE notifications
		SET deleted_at = $3
		WHERE id = $1 AND recipient_id = $2 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, recipientID, at)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	return requireOne(result)
}

// UnreadCount counts the recipient's unread, non-deleted records.
func (s *Store) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	query, args, err := psq.Select("COUNT(*)").
		From("notifications").
		Where(sq.Eq{"recipient_id": recipientID}).
		Where(sq.Eq{"read": false}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building unread count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*notification.Record, error) {
	var (
		rec        notification.Record
		projectID  sql.NullString
		kind, role string
		payload    []byte
		readAt     sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.RecipientID,
		&projectID,
		&kind,
		&payload,
		&rec.SenderID,
		&role,
		&rec.Read,
		&readAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with query context
	}

	rec.ProjectID = projectID.String
	rec.Type = notification.Type(kind)
	rec.SenderRole = notification.SenderRole(role)
	if readAt.Valid {
		t := readAt.Time
		rec.ReadAt = &t
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// validID reports whether id can be compared against the UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func requireOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

// Verify interface compliance.
var _ notification.Store = (*Store)(nil)
