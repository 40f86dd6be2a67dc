package postgres

import (
	"context"

	"chainproof-ledger/internal/storage"
)

// SyncProgressStore keeps mirror progress in the single-row sync_progress table.
type SyncProgressStore struct {
	pool *Pool
}

func NewSyncProgressStore(pool *Pool) *SyncProgressStore {
	return &SyncProgressStore{pool: pool}
}

func (s *SyncProgressStore) GetLastProcessed(ctx context.Context) (*storage.SyncProgress, error) {
	var p storage.SyncProgress
	err := s.pool.QueryRow(ctx, `SELECT slot, signature FROM sync_progress WHERE id = 1`).
		Scan(&p.Slot, &p.Signature)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// SetLastProcessed upserts the row; the WHERE clause keeps an older slot
// from overwriting newer progress.
func (s *SyncProgressStore) SetLastProcessed(ctx context.Context, progress *storage.SyncProgress) error {
	if progress == nil || progress.Signature == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_progress AS p (id, slot, signature, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET slot = EXCLUDED.slot, signature = EXCLUDED.signature, updated_at = NOW()
		WHERE p.slot <= EXCLUDED.slot
	`, progress.Slot, progress.Signature)
	return err
}

var _ storage.SyncProgressStore = (*SyncProgressStore)(nil)
