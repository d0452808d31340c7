// Package cooldown implements the per-(recipient, project) email cooldown
// slots and the claim protocol that guards them. A sender first reserves a
// slot with TryClaim, performs the send, then either confirms the send
// (starting a new cooldown window) or releases the reservation. Reservations
// carry a lease so that a sender that never confirms or releases stops
// blocking the slot once the lease has expired.
package cooldown

import (
	"context"
	"fmt"
	"time"
)

// State is the lifecycle state of a slot.
type State string

const (
	// StateFree means the slot may be claimed immediately.
	StateFree State = "free"

	// StateClaimed means a sender holds a lease and is attempting a send.
	StateClaimed State = "claimed"

	// StateCooldown means a send was confirmed at LastSentAt and the slot is
	// closed until the cooldown window has elapsed.
	StateCooldown State = "cooldown"
)

// DenyReason explains why a claim was refused.
type DenyReason string

const (
	// DenyCooldown means the previous confirmed send is inside the window.
	DenyCooldown DenyReason = "cooldown"

	// DenyLeaseHeld means another sender holds an unexpired lease.
	DenyLeaseHeld DenyReason = "lease_held"
)

// Key identifies a slot. ProjectID is empty for notifications that are not
// tied to a project.
type Key struct {
	RecipientID string `json:"recipient_id"`
	ProjectID   string `json:"project_id"`
}

// String renders the key for logs.
func (k Key) String() string {
	return k.RecipientID + "/" + k.ProjectID
}

// Slot is the persisted cooldown state for one key.
type Slot struct {
	RecipientID    string     `json:"recipient_id"`
	ProjectID      string     `json:"project_id"`
	State          State      `json:"state"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LeaseID        string     `json:"lease_id,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Key returns the slot's key.
func (s *Slot) Key() Key {
	return Key{RecipientID: s.RecipientID, ProjectID: s.ProjectID}
}

// Policy holds the timing parameters of the claim protocol.
type Policy struct {
	// CooldownWindow is the minimum interval between two confirmed sends
	// for the same key.
	CooldownWindow time.Duration

	// LeaseDuration bounds how long a claim may stay unconfirmed before it
	// is treated as abandoned.
	LeaseDuration time.Duration
}

// Validate checks that both durations are positive.
func (p Policy) Validate() error {
	if p.CooldownWindow <= 0 {
		return fmt.Errorf("cooldown window must be positive, got %s", p.CooldownWindow)
	}
	if p.LeaseDuration <= 0 {
		return fmt.Errorf("lease duration must be positive, got %s", p.LeaseDuration)
	}
	return nil
}

// Decision is the outcome of a claim attempt. A denial is an expected result,
// not an error.
type Decision struct {
	Granted    bool
	LeaseID    string
	RetryAfter time.Duration
	Reason     DenyReason
}

// Evaluate applies the grant rule to the current slot state. A nil slot means
// no row exists yet. When the claim would be granted, the returned Decision
// has no LeaseID; the store assigns one as part of the atomic update.
func Evaluate(slot *Slot, now time.Time, p Policy) Decision {
	if slot == nil {
		return Decision{Granted: true}
	}

	switch slot.State {
	case StateCooldown:
		if slot.LastSentAt == nil {
			return Decision{Granted: true}
		}
		elapsed := now.Sub(*slot.LastSentAt)
		if elapsed >= p.CooldownWindow {
			return Decision{Granted: true}
		}
		return Decision{RetryAfter: p.CooldownWindow - elapsed, Reason: DenyCooldown}
	case StateClaimed:
		if slot.LeaseExpiresAt == nil || !now.Before(*slot.LeaseExpiresAt) {
			return Decision{Granted: true}
		}
		return Decision{RetryAfter: slot.LeaseExpiresAt.Sub(now), Reason: DenyLeaseHeld}
	default:
		return Decision{Granted: true}
	}
}

// ListFilter narrows a slot listing.
type ListFilter struct {
	RecipientID string
	ProjectID   string
	State       State
	Limit       int
}

// Store persists slots. Every state change goes through TryClaim,
// ConfirmSent, ReleaseClaim or CleanupExpiredLeases; nothing else writes a
// slot.
type Store interface {
	// TryClaim atomically evaluates the grant rule and, when granted, moves
	// the slot to StateClaimed under a fresh lease. The evaluation and the
	// write happen in one store operation.
	TryClaim(ctx context.Context, key Key, now time.Time, p Policy) (Decision, error)

	// ConfirmSent moves a slot held by leaseID to StateCooldown with
	// LastSentAt = sentAt. It returns false, nil when the slot is not held by
	// that lease.
	ConfirmSent(ctx context.Context, key Key, leaseID string, sentAt time.Time) (bool, error)

	// ReleaseClaim frees a slot held by leaseID. It returns false, nil when
	// the slot is not held by that lease.
	ReleaseClaim(ctx context.Context, key Key, leaseID string, at time.Time) (bool, error)

	// CleanupExpiredLeases frees every claimed slot whose lease expired at or
	// before now and returns how many were freed.
	CleanupExpiredLeases(ctx context.Context, now time.Time) (int64, error)

	// Get returns the slot for key. Returns nil, nil if no slot exists.
	Get(ctx context.Context, key Key) (*Slot, error)

	// List returns slots matching the filter, most recently updated first.
	List(ctx context.Context, filter ListFilter) ([]Slot, error)
}
