package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

// EventStore is a PostgreSQL implementation of storage.EventStore.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new PostgreSQL event store.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append adds events atomically. Fails entire batch on any duplicate.
func (s *EventStore) Append(ctx context.Context, events []*domain.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				event_id, name, subject, source, event_index, slot, timestamp, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, e.Name, e.Subject, e.Source, e.Index, e.Slot, e.Timestamp, []byte(e.Data))
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return translate(err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID retrieves an event by its ID.
func (s *EventStore) GetByID(ctx context.Context, eventID string) (*domain.EventRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT event_id, name, subject, source, event_index, slot, timestamp, data
		FROM ledger_events
		WHERE event_id = $1
	`, eventID)

	e, err := scanEvent(row)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// GetBySubject retrieves all events about one identity.
func (s *EventStore) GetBySubject(ctx context.Context, subject string) ([]*domain.EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, name, subject, source, event_index, slot, timestamp, data
		FROM ledger_events
		WHERE subject = $1
		ORDER BY timestamp ASC, source ASC, event_index ASC
	`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, name, subject, source, event_index, slot, timestamp, data
		FROM ledger_events
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, source ASC, event_index ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvent(row pgx.Row) (*domain.EventRecord, error) {
	var (
		e    domain.EventRecord
		data []byte
	)
	err := row.Scan(&e.ID, &e.Name, &e.Subject, &e.Source, &e.Index, &e.Slot, &e.Timestamp, &data)
	if err != nil {
		return nil, err
	}
	e.Data = data
	return &e, nil
}

func scanEvents(rows pgx.Rows) ([]*domain.EventRecord, error) {
	var result []*domain.EventRecord
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

var _ storage.EventStore = (*EventStore)(nil)
