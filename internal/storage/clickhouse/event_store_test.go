package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

func testEvent(id, name, subject string, index int, ts int64) *domain.EventRecord {
	return &domain.EventRecord{
		ID:        id,
		Name:      name,
		Subject:   subject,
		Source:    "op-" + id,
		Index:     index,
		Slot:      0,
		Timestamp: ts,
		Data:      []byte(`{}`),
	}
}

func TestEventStore_AppendAndQuery(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewEventStore(conn)

	require.NoError(t, store.Append(ctx, []*domain.EventRecord{
		testEvent("e1", domain.EventStaked, "mint1", 0, 1700000000),
		testEvent("e2", domain.EventProjectVerified, "mint1", 1, 1700000100),
		testEvent("e3", domain.EventStaked, "mint2", 0, 1700086400),
	}))

	got, err := store.GetByID(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, domain.EventProjectVerified, got.Name)
	assert.Equal(t, 1, got.Index)

	bySubject, err := store.GetBySubject(ctx, "mint1")
	require.NoError(t, err)
	require.Len(t, bySubject, 2)
	assert.Equal(t, "e1", bySubject[0].ID)

	byTime, err := store.GetByTimeRange(ctx, 1700000000, 1700000100)
	require.NoError(t, err)
	assert.Len(t, byTime, 2)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEventStore_AppendDuplicate(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewEventStore(conn)

	require.NoError(t, store.Append(ctx, []*domain.EventRecord{
		testEvent("e1", domain.EventStaked, "mint1", 0, 1700000000),
	}))

	err := store.Append(ctx, []*domain.EventRecord{
		testEvent("e1", domain.EventStaked, "mint1", 0, 1700000000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.Append(ctx, []*domain.EventRecord{
		testEvent("e9", domain.EventStaked, "mint1", 0, 1),
		testEvent("e9", domain.EventStaked, "mint1", 0, 1),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestEventStore_DailyCounts(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewEventStore(conn)

	require.NoError(t, store.Append(ctx, []*domain.EventRecord{
		testEvent("e1", domain.EventStaked, "mint1", 0, 1700000000),
		testEvent("e2", domain.EventStaked, "mint2", 0, 1700000500),
		testEvent("e3", domain.EventUnstaked, "mint1", 0, 1700000600),
	}))

	counts, err := store.DailyCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "2023-11-14", counts[0].Day)
	assert.Equal(t, domain.EventStaked, counts[0].Name)
	assert.Equal(t, uint64(2), counts[0].Events)
}
