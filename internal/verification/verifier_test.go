package verification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/events"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/replay"
	"chainproof-ledger/internal/storage/memory"
)

const t0 int64 = 1700000000

var (
	operator = domain.Address{0xA0, 1}
	alice    = domain.Address{0xA1, 1}
	bob      = domain.Address{0xA2, 1}
	dev      = domain.Address{0xA3, 1}
	projectP = domain.Address{0xB0, 1}
)

type harness struct {
	ctx      context.Context
	engine   *ledger.Engine
	recorder *events.Recorder
	now      int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ctx: context.Background(), recorder: &events.Recorder{}, now: t0}

	params := domain.DefaultParams()
	params.VerificationThreshold = 2

	stakeMint := domain.MustParseAddress(domain.StakeTokenMint)
	tokens := custody.NewTokenProgram(stakeMint, domain.MustParseAddress(domain.TokenProgramID))
	tokens.SetNowFunc(func() int64 { return h.now })
	h.engine = ledger.NewEngine(memory.NewAccountStore(), idhash.DefaultDeriver(), tokens, params)
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.engine.SetEmitter(h.recorder)
	return h
}

// history drives a full lifecycle: profiles, registry, stakes that verify and
// then revoke a project, and one pool cycle.
func (h *harness) history(t *testing.T) {
	t.Helper()
	e := h.engine
	code := e.Params().DeveloperReferralCode

	for _, w := range []domain.Address{alice, bob, dev} {
		_, err := e.Faucet(h.ctx, w, 1000)
		require.NoError(t, err)
	}
	_, err := e.CreateProfile(h.ctx, alice, "alice", nil)
	require.NoError(t, err)
	_, err = e.CreateProfile(h.ctx, bob, "bob", nil)
	require.NoError(t, err)
	_, err = e.CreateProfile(h.ctx, dev, "dev", &code)
	require.NoError(t, err)

	_, err = e.InitializeDeveloperRegistry(h.ctx, operator)
	require.NoError(t, err)
	_, err = e.RegisterDeveloper(h.ctx, dev)
	require.NoError(t, err)

	_, err = e.InitializeProjectStakes(h.ctx, operator, projectP)
	require.NoError(t, err)
	h.now += 10
	_, err = e.Stake(h.ctx, alice, projectP, 100)
	require.NoError(t, err)
	h.now += 10
	_, err = e.Stake(h.ctx, bob, projectP, 50)
	require.NoError(t, err)

	h.now += 10
	_, err = e.RequestUnstake(h.ctx, alice, projectP)
	require.NoError(t, err)
	h.now += e.Params().UnstakeCooldownSeconds
	_, err = e.CompleteUnstake(h.ctx, alice, projectP)
	require.NoError(t, err)

	_, err = e.InitializeRewardPool(h.ctx, operator)
	require.NoError(t, err)
	_, err = e.Faucet(h.ctx, operator, 500)
	require.NoError(t, err)
	_, err = e.Deposit(h.ctx, operator, 500)
	require.NoError(t, err)
	h.now += e.Params().DistributionIntervalSeconds
	_, err = e.Distribute(h.ctx, operator)
	require.NoError(t, err)
}

// store copies the recorded events into an event store, leaving out dropped ones.
func (h *harness) store(t *testing.T, drop func(*domain.Event) bool) *memory.EventStore {
	t.Helper()
	store := memory.NewEventStore()
	for _, evt := range h.recorder.Events() {
		if drop != nil && drop(evt) {
			continue
		}
		rec, err := evt.Record()
		require.NoError(t, err)
		require.NoError(t, store.Append(h.ctx, []*domain.EventRecord{rec}))
	}
	return store
}

func TestProjection_RevokeThenUnstakeDecrementsOnce(t *testing.T) {
	h := newHarness(t)
	h.history(t)

	proj := NewProjection()
	_, err := replay.NewRunner(h.store(t, nil)).Run(h.ctx, 0, h.now, proj)
	require.NoError(t, err)

	ps := proj.Projects[projectP]
	require.NotNil(t, ps)
	assert.Equal(t, uint64(1), ps.TotalStakes)
	assert.False(t, ps.Verified)
	assert.Equal(t, uint64(50), ps.NetStaked)

	assert.Equal(t, StakeState{}, *proj.Stakes[StakeKey{User: alice, ProjectMint: projectP}])
	assert.Equal(t, StakeState{Amount: 50}, *proj.Stakes[StakeKey{User: bob, ProjectMint: projectP}])

	assert.True(t, proj.Profiles[dev])
	assert.False(t, proj.Profiles[alice])
	assert.Equal(t, uint64(1), proj.TotalDevelopers)
	assert.Equal(t, 1, proj.Pool.Distributions)
	assert.Equal(t, uint64(500), proj.Pool.TotalDeposited)
	assert.Equal(t, uint64(500), proj.Pool.TotalDistributed)
}

func TestVerifyAll_Match(t *testing.T) {
	h := newHarness(t)
	h.history(t)

	v := NewVerifier(replay.NewRunner(h.store(t, nil)), h.engine)
	report, err := v.VerifyAll(h.ctx, 0, h.now)
	require.NoError(t, err)

	assert.True(t, report.Match(), "unexpected divergences: %v", report.Divergences)
	assert.Equal(t, len(h.recorder.Events()), report.EventsReplayed)
	assert.Zero(t, report.EventsSkipped)
	// project, two stakes, three profiles, registry, pool
	assert.Equal(t, 8, report.RecordsChecked)
}

func TestVerifyAll_MissingEvent(t *testing.T) {
	h := newHarness(t)
	h.history(t)

	dropBobStake := func(evt *domain.Event) bool {
		s, ok := evt.Payload.(domain.Staked)
		return ok && s.User == bob
	}
	v := NewVerifier(replay.NewRunner(h.store(t, dropBobStake)), h.engine)
	report, err := v.VerifyAll(h.ctx, 0, h.now)
	require.NoError(t, err)

	require.False(t, report.Match())
	assert.Contains(t, report.Divergences, FieldDivergence{
		Record:   "project:" + projectP.String(),
		Field:    "vaultBalance",
		Expected: uint64(0),
		Actual:   uint64(50),
	})
}

func TestVerifyAll_UnrecordedMutation(t *testing.T) {
	h := newHarness(t)
	h.history(t)
	store := h.store(t, nil)

	// A deposit whose event never reaches the store.
	h.engine.SetEmitter(&events.Recorder{})
	_, err := h.engine.Faucet(h.ctx, operator, 40)
	require.NoError(t, err)
	_, err = h.engine.Deposit(h.ctx, operator, 40)
	require.NoError(t, err)

	report, err := NewVerifier(replay.NewRunner(store), h.engine).VerifyAll(h.ctx, 0, h.now)
	require.NoError(t, err)

	assert.Equal(t, []FieldDivergence{
		{Record: "pool", Field: "balance", Expected: uint64(500), Actual: uint64(540)},
		{Record: "pool", Field: "totalDeposited", Expected: uint64(500), Actual: uint64(540)},
	}, report.Divergences)
}

func TestVerifyAll_ProjectWithoutHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.InitializeProjectStakes(h.ctx, operator, projectP)
	require.NoError(t, err)

	report, err := NewVerifier(replay.NewRunner(memory.NewEventStore()), h.engine).VerifyAll(h.ctx, 0, h.now)
	require.NoError(t, err)
	assert.True(t, report.Match(), "an empty project replays to zero: %v", report.Divergences)
	assert.Equal(t, 1, report.RecordsChecked)
}

func TestVerifyProject(t *testing.T) {
	h := newHarness(t)
	h.history(t)

	report, err := NewVerifier(replay.NewRunner(h.store(t, nil)), h.engine).VerifyProject(h.ctx, projectP)
	require.NoError(t, err)
	assert.True(t, report.Match(), "unexpected divergences: %v", report.Divergences)
	// Staked x2, ProjectVerified, UnstakeRequested, ProjectVerificationRevoked, Unstaked
	assert.Equal(t, 6, report.EventsReplayed)
	assert.Equal(t, 3, report.RecordsChecked)
}

func TestFieldDivergence_String(t *testing.T) {
	d := FieldDivergence{Record: "pool", Field: "balance", Expected: uint64(1), Actual: uint64(2)}
	assert.Equal(t, "pool.balance: replayed 1, stored 2", d.String())
}
