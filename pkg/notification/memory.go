package notification

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Insert persists a copy of rec.
func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get retrieves a record by ID. Returns nil, nil if not found or deleted.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.DeletedAt != nil {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return cloneRecord(rec), nil
}

// List returns the recipient's records, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Record
	for _, rec := range s.records {
		if !visibleTo(rec, filter.RecipientID) {
			continue
		}
		if filter.ProjectID != "" && rec.ProjectID != filter.ProjectID {
			continue
		}
		if filter.UnreadOnly && rec.Read {
			continue
		}
		matched = append(matched, *cloneRecord(rec))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []Record{}, nil
	}
	if filter.Offset > 0 {
		matched = matched[filter.Offset:]
	}
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// MarkRead sets the read flag, keeping the first ReadAt.
func (s *MemoryStore) MarkRead(_ context.Context, id, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || !visibleTo(rec, recipientID) {
		return ErrNotFound
	}
	if !rec.Read {
		rec.Read = true
		rec.ReadAt = &at
	}
	return nil
}

// MarkAllRead marks every unread record of the recipient as read.
func (s *MemoryStore) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if !visibleTo(rec, recipientID) || rec.Read {
			continue
		}
		readAt := at
		rec.Read = true
		rec.ReadAt = &readAt
		n++
	}
	return n, nil
}

// Delete hides a record permanently.
func (s *MemoryStore) Delete(_ context.Context, id, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || !visibleTo(rec, recipientID) {
		return ErrNotFound
	}
	deletedAt := at
	rec.DeletedAt = &deletedAt
	return nil
}

// UnreadCount counts the recipient's unread, non-deleted records.
func (s *MemoryStore) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if visibleTo(rec, recipientID) && !rec.Read {
			count++
		}
	}
	return count, nil
}

func visibleTo(rec *Record, recipientID string) bool {
	return rec.DeletedAt == nil && rec.RecipientID == recipientID
}

func cloneRecord(rec *Record) *Record {
	c := *rec
	if rec.Payload != nil {
		c.Payload = maps.Clone(rec.Payload)
	}
	if rec.ReadAt != nil {
		t := *rec.ReadAt
		c.ReadAt = &t
	}
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
