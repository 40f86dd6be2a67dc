package memory

import (
	"context"
	"sort"
	"sync"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.EventRecord
	keys map[string]bool
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make([]*domain.EventRecord, 0),
		keys: make(map[string]bool),
	}
}

// Append adds events atomically. Fails entire batch on any duplicate.
func (s *EventStore) Append(_ context.Context, events []*domain.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates (both existing and intra-batch)
	batchKeys := make(map[string]bool)
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if s.keys[e.ID] || batchKeys[e.ID] {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.ID] = true
	}

	for _, e := range events {
		s.data = append(s.data, cloneEvent(e))
		s.keys[e.ID] = true
	}

	return nil
}

// GetByID retrieves an event by its ID.
func (s *EventStore) GetByID(_ context.Context, eventID string) (*domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.ID == eventID {
			return cloneEvent(e), nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetBySubject retrieves all events about one identity.
func (s *EventStore) GetBySubject(_ context.Context, subject string) ([]*domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EventRecord
	for _, e := range s.data {
		if e.Subject == subject {
			result = append(result, cloneEvent(e))
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EventRecord
	for _, e := range s.data {
		if e.Timestamp >= start && e.Timestamp <= end {
			result = append(result, cloneEvent(e))
		}
	}

	sortEvents(result)
	return result, nil
}

func cloneEvent(e *domain.EventRecord) *domain.EventRecord {
	c := *e
	c.Data = append([]byte(nil), e.Data...)
	return &c
}

// sortEvents sorts events by (timestamp, source, index).
func sortEvents(events []*domain.EventRecord) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		if events[i].Source != events[j].Source {
			return events[i].Source < events[j].Source
		}
		return events[i].Index < events[j].Index
	})
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
