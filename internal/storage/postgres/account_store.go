package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

// maxSerializationRetries bounds re-runs of a unit of work that lost a
// serialization conflict.
const maxSerializationRetries = 8

// AccountStore is a PostgreSQL implementation of storage.AccountStore.
// Each unit of work is one SERIALIZABLE transaction; rows read through the
// transaction are locked with SELECT ... FOR UPDATE.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new PostgreSQL account store.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Update runs fn in a serializable transaction, retrying on serialization failure.
// fn may therefore run more than once and must not keep state across runs.
func (s *AccountStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err = s.update(ctx, fn)
		if !isSerializationError(err) {
			return err
		}
	}
	return err
}

func (s *AccountStore) update(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&accountTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Get retrieves a committed account. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, addr domain.Address) (*storage.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address, owner, kind, data, updated_at
		FROM accounts
		WHERE address = $1
	`, addr.String())

	a, err := scanAccount(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// GetByKind retrieves all accounts of one kind, ordered by address.
func (s *AccountStore) GetByKind(ctx context.Context, kind string) ([]*storage.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, owner, kind, data, updated_at
		FROM accounts
		WHERE kind = $1
		ORDER BY address ASC
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*storage.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

type accountTx struct {
	tx pgx.Tx
}

func (t *accountTx) Get(ctx context.Context, addr domain.Address) (*storage.Account, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT address, owner, kind, data, updated_at
		FROM accounts
		WHERE address = $1
		FOR UPDATE
	`, addr.String())

	a, err := scanAccount(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (t *accountTx) Create(ctx context.Context, a *storage.Account) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (address, owner, kind, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.Address.String(), a.Owner.String(), a.Kind, a.Data, a.UpdatedAt)

	if err != nil {
		return translate(err)
	}
	return nil
}

func (t *accountTx) Put(ctx context.Context, a *storage.Account) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET owner = $2, kind = $3, data = $4, updated_at = $5
		WHERE address = $1
	`, a.Address.String(), a.Owner.String(), a.Kind, a.Data, a.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*storage.Account, error) {
	var (
		a              storage.Account
		address, owner string
	)
	if err := row.Scan(&address, &owner, &a.Kind, &a.Data, &a.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.Address, err = domain.ParseAddress(address); err != nil {
		return nil, fmt.Errorf("scan address: %w", err)
	}
	if a.Owner, err = domain.ParseAddress(owner); err != nil {
		return nil, fmt.Errorf("scan owner: %w", err)
	}
	return &a, nil
}

// isSerializationError reports a lost serializable transaction.
func isSerializationError(err error) bool {
	return sqlState(err) == codeSerializationFailure
}

var _ storage.AccountStore = (*AccountStore)(nil)
