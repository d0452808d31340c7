package cooldown

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with an in-process map. It only coordinates
// claims within one process and is meant for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[Key]*Slot
}

// NewMemoryStore creates an empty in-memory slot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[Key]*Slot)}
}

// TryClaim evaluates and claims the slot under the store lock.
func (s *MemoryStore) TryClaim(_ context.Context, key Key, now time.Time, p Policy) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slots[key]
	d := Evaluate(slot, now, p)
	if !d.Granted {
		return d, nil
	}

	if slot == nil {
		slot = &Slot{RecipientID: key.RecipientID, ProjectID: key.ProjectID}
		s.slots[key] = slot
	}

	claimedAt := now
	leaseExpiresAt := now.Add(p.LeaseDuration)
	slot.State = StateClaimed
	slot.ClaimedAt = &claimedAt
	slot.LeaseExpiresAt = &leaseExpiresAt
	slot.LeaseID = uuid.NewString()
	slot.UpdatedAt = now

	d.LeaseID = slot.LeaseID
	return d, nil
}

// ConfirmSent starts the cooldown window for a slot held by leaseID.
func (s *MemoryStore) ConfirmSent(_ context.Context, key Key, leaseID string, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.heldLocked(key, leaseID)
	if !ok {
		return false, nil
	}

	lastSentAt := sentAt
	slot.State = StateCooldown
	slot.LastSentAt = &lastSentAt
	clearLease(slot)
	slot.UpdatedAt = sentAt
	return true, nil
}

// ReleaseClaim frees a slot held by leaseID.
func (s *MemoryStore) ReleaseClaim(_ context.Context, key Key, leaseID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.heldLocked(key, leaseID)
	if !ok {
		return false, nil
	}

	slot.State = StateFree
	clearLease(slot)
	slot.UpdatedAt = at
	return true, nil
}

// CleanupExpiredLeases frees claimed slots whose lease has expired.
func (s *MemoryStore) CleanupExpiredLeases(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var freed int64
	for _, slot := range s.slots {
		if slot.State != StateClaimed || slot.LeaseExpiresAt == nil || slot.LeaseExpiresAt.After(now) {
			continue
		}
		slot.State = StateFree
		clearLease(slot)
		slot.UpdatedAt = now
		freed++
	}
	return freed, nil
}

// Get returns a copy of the slot for key. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, key Key) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[key]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	cp := *slot
	return &cp, nil
}

// List returns copies of slots matching the filter.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		if filter.RecipientID != "" && slot.RecipientID != filter.RecipientID {
			continue
		}
		if filter.ProjectID != "" && slot.ProjectID != filter.ProjectID {
			continue
		}
		if filter.State != "" && slot.State != filter.State {
			continue
		}
		result = append(result, *slot)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *MemoryStore) heldLocked(key Key, leaseID string) (*Slot, bool) {
	slot, ok := s.slots[key]
	if !ok || slot.State != StateClaimed || slot.LeaseID != leaseID {
		return nil, false
	}
	return slot, true
}

func clearLease(slot *Slot) {
	slot.ClaimedAt = nil
	slot.LeaseExpiresAt = nil
	slot.LeaseID = ""
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
