package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// ledger_events is a ReplacingMergeTree; uniqueness of event_id is checked
// before insert and reads use FINAL.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append adds events. Fails entire batch on duplicate event_id.
func (s *EventStore) Append(ctx context.Context, events []*domain.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, e := range events {
		exists, err := s.exists(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			event_id, name, subject, source, event_index, slot, timestamp, data
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ID, e.Name, e.Subject, e.Source,
			uint32(e.Index), uint64(e.Slot), e.Timestamp, string(e.Data),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its ID.
func (s *EventStore) GetByID(ctx context.Context, eventID string) (*domain.EventRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, name, subject, source, event_index, slot, timestamp, data
		FROM ledger_events FINAL
		WHERE event_id = ?
		LIMIT 1
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query by id: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return events[0], nil
}

// GetBySubject retrieves all events about one identity.
func (s *EventStore) GetBySubject(ctx context.Context, subject string) ([]*domain.EventRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, name, subject, source, event_index, slot, timestamp, data
		FROM ledger_events FINAL
		WHERE subject = ?
		ORDER BY timestamp ASC, source ASC, event_index ASC
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("query by subject: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.EventRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, name, subject, source, event_index, slot, timestamp, data
		FROM ledger_events FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, source ASC, event_index ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DailyCount is the number of events of one name on one UTC day.
type DailyCount struct {
	Day    string
	Name   string
	Events uint64
}

// DailyCounts returns per-day event counts from the daily_event_counts rollup.
func (s *EventStore) DailyCounts(ctx context.Context) ([]DailyCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT toString(day), name, sum(events)
		FROM daily_event_counts
		GROUP BY day, name
		ORDER BY day ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	var result []DailyCount
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Day, &c.Name, &c.Events); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// exists checks if an event with the given ID exists.
func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM ledger_events WHERE event_id = ?
	`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanEvents(rows driver.Rows) ([]*domain.EventRecord, error) {
	var result []*domain.EventRecord
	for rows.Next() {
		var (
			e     domain.EventRecord
			index uint32
			slot  uint64
			data  string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Subject, &e.Source, &index, &slot, &e.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Index = int(index)
		e.Slot = int64(slot)
		e.Data = []byte(data)
		result = append(result, &e)
	}
	return result, rows.Err()
}
