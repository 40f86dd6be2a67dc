package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/layout"
	"chainproof-ledger/internal/solana/stub"
	"chainproof-ledger/internal/storage"
	"chainproof-ledger/internal/storage/memory"
)

var (
	program     = domain.MustParseAddress(domain.ChainProofProgramID)
	projectMint = domain.MustParseAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	staker      = domain.MustParseAddress("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	fixedNow    = time.Unix(1700000000, 0)
)

func newSyncer(rpc *stub.RPCClient, store storage.AccountStore) *AccountSyncer {
	return NewAccountSyncer(AccountSyncerOptions{
		RPC:     rpc,
		Store:   store,
		Program: program,
		NowFn:   func() time.Time { return fixedNow },
	})
}

func seedChain(t *testing.T, rpc *stub.RPCClient) (projectAddr, stakeAddr domain.Address) {
	t.Helper()
	d := idhash.DefaultDeriver()

	ps := d.ProjectStakes(projectMint)
	psData, err := layout.EncodeProjectStakes(&domain.ProjectStakes{
		ProjectMint: projectMint,
		TotalStakes: 12,
		IsVerified:  true,
		Bump:        ps.Bump,
	})
	require.NoError(t, err)
	rpc.AddAccount(ps.Address.String(), program.String(), psData)

	us := d.UserStake(staker, projectMint)
	usData, err := layout.EncodeUserStake(&domain.UserStake{
		User:        staker,
		ProjectMint: projectMint,
		Amount:      500,
		StakedAt:    fixedNow.Unix(),
		Bump:        us.Bump,
	})
	require.NoError(t, err)
	rpc.AddAccount(us.Address.String(), program.String(), usData)

	return ps.Address, us.Address
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	store := memory.NewAccountStore()
	psAddr, usAddr := seedChain(t, rpc)

	// foreign program and garbage data are ignored
	rpc.AddAccount("11111111111111111111111111111111", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", []byte{1, 2, 3})

	result, err := newSyncer(rpc, store).SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total())
	assert.Equal(t, 1, result.Imported[layout.KindProjectStakes])
	assert.Equal(t, 1, result.Imported[layout.KindUserStake])
	assert.Equal(t, len(ProgramKinds), rpc.ProgramAccountCalls)

	acct, err := store.Get(ctx, psAddr)
	require.NoError(t, err)
	assert.Equal(t, string(layout.KindProjectStakes), acct.Kind)
	assert.Equal(t, program, acct.Owner)
	assert.Equal(t, fixedNow.Unix(), acct.UpdatedAt)
	ps, err := layout.DecodeProjectStakes(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), ps.TotalStakes)
	assert.True(t, ps.IsVerified)

	acct, err = store.Get(ctx, usAddr)
	require.NoError(t, err)
	us, err := layout.DecodeUserStake(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), us.Amount)
}

func TestSyncAll_OverwritesExisting(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	store := memory.NewAccountStore()
	psAddr, _ := seedChain(t, rpc)
	syncer := newSyncer(rpc, store)

	_, err := syncer.SyncAll(ctx)
	require.NoError(t, err)

	data, err := layout.EncodeProjectStakes(&domain.ProjectStakes{ProjectMint: projectMint, TotalStakes: 3})
	require.NoError(t, err)
	rpc.AddAccount(psAddr.String(), program.String(), data)

	_, err = syncer.SyncAll(ctx)
	require.NoError(t, err)

	acct, err := store.Get(ctx, psAddr)
	require.NoError(t, err)
	ps, err := layout.DecodeProjectStakes(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ps.TotalStakes)
	assert.False(t, ps.IsVerified)
}

func TestSyncKind_SkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	store := memory.NewAccountStore()

	disc := layout.AccountDiscriminator(layout.KindUserStake)
	rpc.AddAccount(staker.String(), program.String(), disc[:]) // truncated record

	n, skipped, err := newSyncer(rpc, store).SyncKind(ctx, layout.KindUserStake)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, skipped)

	accts, err := store.GetByKind(ctx, string(layout.KindUserStake))
	require.NoError(t, err)
	assert.Empty(t, accts)
}

func TestSyncAccount(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	store := memory.NewAccountStore()
	_, usAddr := seedChain(t, rpc)
	syncer := newSyncer(rpc, store)

	kind, err := syncer.SyncAccount(ctx, usAddr)
	require.NoError(t, err)
	assert.Equal(t, layout.KindUserStake, kind)

	_, err = store.Get(ctx, usAddr)
	assert.NoError(t, err)

	_, err = syncer.SyncAccount(ctx, projectMint)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
