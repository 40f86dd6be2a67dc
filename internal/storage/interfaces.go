package storage

import (
	"context"

	"chainproof-ledger/internal/domain"
)

// Account is a stored record keyed by its derived address.
// Data holds the record in its on-chain byte layout.
type Account struct {
	Address   domain.Address
	Owner     domain.Address // program that controls the record
	Kind      string         // layout kind, e.g. "UserStake" or "TokenAccount"
	Data      []byte
	UpdatedAt int64 // unix seconds of the last write
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// Tx is a unit of work over accounts. Writes become visible only when the
// enclosing Update returns nil.
type Tx interface {
	// Get returns the account at addr, including writes made earlier in this
	// unit of work. Returns ErrNotFound if absent.
	Get(ctx context.Context, addr domain.Address) (*Account, error)

	// Create adds a new account. Returns ErrDuplicateKey if addr exists.
	Create(ctx context.Context, a *Account) error

	// Put overwrites an existing account. Returns ErrNotFound if absent.
	Put(ctx context.Context, a *Account) error
}

// AccountStore provides atomic access to accounts storage.
type AccountStore interface {
	// Update runs fn as one all-or-nothing unit of work. Any error returned
	// by fn discards every write made through tx.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Get retrieves a committed account. Returns ErrNotFound if not exists.
	Get(ctx context.Context, addr domain.Address) (*Account, error)

	// GetByKind retrieves all accounts of one kind, ordered by address.
	GetByKind(ctx context.Context, kind string) ([]*Account, error)
}

// EventStore provides access to ledger_events storage. Append-only.
type EventStore interface {
	// Append adds events atomically. Fails entire batch with ErrDuplicateKey
	// if any event_id exists.
	Append(ctx context.Context, events []*domain.EventRecord) error

	// GetByID retrieves an event by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, eventID string) (*domain.EventRecord, error)

	// GetBySubject retrieves all events about one identity, ordered by
	// (timestamp, source, index) ASC.
	GetBySubject(ctx context.Context, subject string) ([]*domain.EventRecord, error)

	// GetByTimeRange retrieves events with timestamp in [start, end] (inclusive),
	// ordered by (timestamp, source, index) ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.EventRecord, error)
}
