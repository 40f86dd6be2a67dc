package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

var (
	testAddrA = domain.MustParseAddress("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testAddrB = domain.MustParseAddress(domain.StakeTokenMint)
	testOwner = domain.MustParseAddress(domain.ChainProofProgramID)
)

func testAccount(addr domain.Address, kind, data string) *storage.Account {
	return &storage.Account{
		Address:   addr,
		Owner:     testOwner,
		Kind:      kind,
		Data:      []byte(data),
		UpdatedAt: 1700000000,
	}
}

func TestAccountStore_CreateAndGet(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	store := NewAccountStore(pool)

	err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, testAccount(testAddrA, "UserStake", "v1"))
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, testAddrA)
	require.NoError(t, err)
	assert.Equal(t, testAddrA, got.Address)
	assert.Equal(t, testOwner, got.Owner)
	assert.Equal(t, "UserStake", got.Kind)
	assert.Equal(t, []byte("v1"), got.Data)
	assert.Equal(t, int64(1700000000), got.UpdatedAt)

	_, err = store.Get(ctx, testAddrB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_CreateDuplicate(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	store := NewAccountStore(pool)

	create := func(tx storage.Tx) error {
		return tx.Create(ctx, testAccount(testAddrA, "UserStake", "v1"))
	}
	require.NoError(t, store.Update(ctx, create))

	err := store.Update(ctx, create)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAccountStore_PutAndRollback(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	store := NewAccountStore(pool)

	err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.Put(ctx, testAccount(testAddrA, "UserStake", "v1"))
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, testAccount(testAddrA, "UserStake", "v1"))
	}))

	boom := errors.New("boom")
	err = store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.Put(ctx, testAccount(testAddrA, "UserStake", "v2")); err != nil {
			return err
		}
		got, err := tx.Get(ctx, testAddrA)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("v2"), got.Data)
		if err := tx.Create(ctx, testAccount(testAddrB, "TokenAccount", "b")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, testAddrA)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Data)

	_, err = store.Get(ctx, testAddrB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_GetByKind(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	store := NewAccountStore(pool)

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.Create(ctx, testAccount(testAddrA, "UserStake", "a")); err != nil {
			return err
		}
		return tx.Create(ctx, testAccount(testAddrB, "TokenAccount", "b"))
	}))

	stakes, err := store.GetByKind(ctx, "UserStake")
	require.NoError(t, err)
	require.Len(t, stakes, 1)
	assert.Equal(t, testAddrA, stakes[0].Address)
}

func TestAccountStore_ConcurrentUpdatesSerialize(t *testing.T) {
	pool := setupTestDB(t)

	ctx := context.Background()
	store := NewAccountStore(pool)

	require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, testAccount(testAddrA, "UserStake", ""))
	}))

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Update(ctx, func(tx storage.Tx) error {
				a, err := tx.Get(ctx, testAddrA)
				if err != nil {
					return err
				}
				a.Data = append(a.Data, '+')
				return tx.Put(ctx, a)
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, testAddrA)
	require.NoError(t, err)
	assert.Len(t, got.Data, workers)
}

// failingTx fails every Exec with err; other pgx.Tx methods are unused.
type failingTx struct {
	pgx.Tx
	err error
}

func (f failingTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, f.err
}

func TestAccountTx_WriteErrorsTranslated(t *testing.T) {
	ctx := context.Background()
	dup := &pgconn.PgError{Code: codeUniqueViolation}
	tx := &accountTx{tx: failingTx{err: dup}}

	assert.ErrorIs(t, tx.Create(ctx, testAccount(testAddrA, "UserStake", "v1")), storage.ErrDuplicateKey)
	assert.ErrorIs(t, tx.Put(ctx, testAccount(testAddrA, "UserStake", "v1")), storage.ErrDuplicateKey)

	other := errors.New("conn reset")
	tx = &accountTx{tx: failingTx{err: other}}
	assert.ErrorIs(t, tx.Put(ctx, testAccount(testAddrA, "UserStake", "v1")), other)
}
