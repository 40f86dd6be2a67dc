package memory

import (
	"context"
	"sync"

	"chainproof-ledger/internal/storage"
)

// SyncProgressStore keeps mirror progress for the lifetime of the process.
type SyncProgressStore struct {
	mu      sync.Mutex
	current storage.SyncProgress
	saved   bool
}

func NewSyncProgressStore() *SyncProgressStore {
	return &SyncProgressStore{}
}

func (s *SyncProgressStore) GetLastProcessed(context.Context) (*storage.SyncProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return nil, storage.ErrNotFound
	}
	p := s.current
	return &p, nil
}

func (s *SyncProgressStore) SetLastProcessed(_ context.Context, progress *storage.SyncProgress) error {
	if progress == nil || progress.Signature == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved && progress.Slot < s.current.Slot {
		return nil
	}
	s.current, s.saved = *progress, true
	return nil
}

var _ storage.SyncProgressStore = (*SyncProgressStore)(nil)
