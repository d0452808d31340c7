// Package notification stores the in-app notification records shown to
// portal users. Records are created for every qualifying event, are
// immutable apart from the read flag, and are removed from view by a
// terminal soft delete.
package notification

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist, was deleted, or
// belongs to a different recipient.
var ErrNotFound = errors.New("notification not found")

// Type identifies the business event a record describes.
type Type string

// Notification types.
const (
	TypeCommentAdded     Type = "comment_added"
	TypeDocumentUploaded Type = "document_uploaded"
	TypeStatusChanged    Type = "status_changed"
	TypeInvoiceIssued    Type = "invoice_issued"
	TypeMessageReceived  Type = "message_received"
	TypeSystemNotice     Type = "system_notice"
)

// Types lists every known notification type.
var Types = []Type{
	TypeCommentAdded,
	TypeDocumentUploaded,
	TypeStatusChanged,
	TypeInvoiceIssued,
	TypeMessageReceived,
	TypeSystemNotice,
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// SenderRole is the role of the user whose action produced a record.
type SenderRole string

// Sender roles.
const (
	RoleAdmin  SenderRole = "admin"
	RoleClient SenderRole = "client"
	RoleSystem SenderRole = "system"
)

// Valid reports whether r is a known sender role.
func (r SenderRole) Valid() bool {
	return r == RoleAdmin || r == RoleClient || r == RoleSystem
}

// Record is a single in-app notification.
type Record struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	ProjectID   string         `json:"project_id,omitempty"`
	Type        Type           `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	SenderID    string         `json:"sender_id"`
	SenderRole  SenderRole     `json:"sender_role"`
	Read        bool           `json:"read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   *time.Time     `json:"-"`
}

// Filter narrows a List call. RecipientID is required.
type Filter struct {
	RecipientID string
	ProjectID   string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// Limits applied to List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// EffectiveLimit returns the page size to use for f.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store persists notification records. Deleted records are invisible to
// every method.
type Store interface {
	// Insert persists a new record. ID and CreatedAt must be set.
	Insert(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID. Returns nil, nil if not found or deleted.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns the recipient's records, newest first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// MarkRead sets the read flag. Marking a read record again is a no-op.
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error

	// MarkAllRead marks every unread record of the recipient as read and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)

	// Delete hides a record permanently.
	Delete(ctx context.Context, id, recipientID string, at time.Time) error

	// UnreadCount counts the recipient's unread, non-deleted records.
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}
