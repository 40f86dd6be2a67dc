package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
// Units of work are serialized by a single writer lock.
type AccountStore struct {
	mu   sync.RWMutex
	data map[domain.Address]*storage.Account
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[domain.Address]*storage.Account),
	}
}

// Update runs fn under the writer lock and applies its writes only when fn succeeds.
func (s *AccountStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &accountTx{
		committed: s.data,
		pending:   make(map[domain.Address]*storage.Account),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for addr, a := range tx.pending {
		s.data[addr] = a
	}
	return nil
}

// Get retrieves a committed account. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, addr domain.Address) (*storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

// GetByKind retrieves all accounts of one kind, ordered by address.
func (s *AccountStore) GetByKind(_ context.Context, kind string) ([]*storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Account
	for _, a := range s.data {
		if a.Kind == kind {
			result = append(result, a.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})

	return result, nil
}

// accountTx buffers writes over the committed map. Only used while the
// store's writer lock is held.
type accountTx struct {
	committed map[domain.Address]*storage.Account
	pending   map[domain.Address]*storage.Account
}

func (t *accountTx) lookup(addr domain.Address) (*storage.Account, bool) {
	if a, ok := t.pending[addr]; ok {
		return a, true
	}
	a, ok := t.committed[addr]
	return a, ok
}

func (t *accountTx) Get(ctx context.Context, addr domain.Address) (*storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := t.lookup(addr)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

func (t *accountTx) Create(ctx context.Context, a *storage.Account) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.lookup(a.Address); ok {
		return storage.ErrDuplicateKey
	}
	t.pending[a.Address] = a.Clone()
	return nil
}

func (t *accountTx) Put(ctx context.Context, a *storage.Account) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.lookup(a.Address); !ok {
		return storage.ErrNotFound
	}
	t.pending[a.Address] = a.Clone()
	return nil
}

// Verify interface compliance at compile time.
var _ storage.AccountStore = (*AccountStore)(nil)
