package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof-ledger/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestCreateProfile_UsernameBounds(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateProfile(f.ctx, wallet(1), "ab", nil)
	assert.ErrorIs(t, err, ErrUsernameTooShort)

	_, err = f.engine.CreateProfile(f.ctx, wallet(1), strings.Repeat("a", 33), nil)
	assert.ErrorIs(t, err, ErrUsernameTooLong)

	_, err = f.engine.CreateProfile(f.ctx, wallet(1), "abc", nil)
	assert.NoError(t, err)
	_, err = f.engine.CreateProfile(f.ctx, wallet(2), strings.Repeat("a", 32), nil)
	assert.NoError(t, err)
}

func TestCreateProfile_DeveloperReferral(t *testing.T) {
	f := newFixture(t)

	p, err := f.engine.CreateProfile(f.ctx, wallet(1), "validname", strPtr("CHAINPROOFDEV"))
	require.NoError(t, err)
	assert.True(t, p.IsDeveloper)
	require.NotNil(t, p.ReferralCode)
	assert.Equal(t, "CHAINPROOFDEV", *p.ReferralCode)

	p, err = f.engine.CreateProfile(f.ctx, wallet(2), "validname", strPtr("chainproofdev"))
	require.NoError(t, err)
	assert.False(t, p.IsDeveloper)

	p, err = f.engine.CreateProfile(f.ctx, wallet(3), "validname", nil)
	require.NoError(t, err)
	assert.False(t, p.IsDeveloper)
	assert.Nil(t, p.ReferralCode)

	_, err = f.engine.CreateProfile(f.ctx, wallet(4), "validname", strPtr(strings.Repeat("x", 33)))
	assert.ErrorIs(t, err, ErrReferralCodeTooLong)
}

func TestCreateProfile_StoredState(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateProfile(f.ctx, wallet(1), "alice", strPtr("CHAINPROOFDEV"))
	require.NoError(t, err)

	p, err := f.engine.GetProfile(f.ctx, wallet(1))
	require.NoError(t, err)
	assert.Equal(t, wallet(1), p.Wallet)
	assert.Equal(t, "alice", p.Username)
	assert.True(t, p.IsDeveloper)
	assert.Zero(t, p.TotalStakes)
	assert.Zero(t, p.RewardPoints)
	assert.Equal(t, t0, p.CreatedAt)
	assert.Equal(t, f.engine.Deriver().UserProfile(wallet(1)).Bump, p.Bump)

	assert.Equal(t, []string{domain.EventProfileCreated}, f.recorder.Names())
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.UpdateProfile(f.ctx, wallet(1), "bob")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = f.engine.CreateProfile(f.ctx, wallet(1), "alice", strPtr("CHAINPROOFDEV"))
	require.NoError(t, err)

	_, err = f.engine.UpdateProfile(f.ctx, wallet(1), "b")
	assert.ErrorIs(t, err, ErrUsernameTooShort)

	p, err := f.engine.UpdateProfile(f.ctx, wallet(1), "alice2")
	require.NoError(t, err)
	assert.Equal(t, "alice2", p.Username)
	assert.True(t, p.IsDeveloper, "developer status is permanent")
	assert.Equal(t, t0, p.CreatedAt)
}

func TestRegisterDeveloper(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateProfile(f.ctx, wallet(1), "dev", strPtr("CHAINPROOFDEV"))
	require.NoError(t, err)
	_, err = f.engine.CreateProfile(f.ctx, wallet(2), "user", nil)
	require.NoError(t, err)

	_, err = f.engine.RegisterDeveloper(f.ctx, wallet(1))
	assert.ErrorIs(t, err, ErrNotInitialized, "registry missing")

	_, err = f.engine.InitializeDeveloperRegistry(f.ctx, operator)
	require.NoError(t, err)
	_, err = f.engine.InitializeDeveloperRegistry(f.ctx, operator)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = f.engine.RegisterDeveloper(f.ctx, wallet(2))
	assert.ErrorIs(t, err, ErrNotADeveloper)

	reg, err := f.engine.RegisterDeveloper(f.ctx, wallet(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.TotalDevelopers)

	// No duplicate guard: the same developer counts again.
	reg, err = f.engine.RegisterDeveloper(f.ctx, wallet(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reg.TotalDevelopers)

	stored, err := f.engine.GetDeveloperRegistry(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, operator, stored.Authority)
	assert.Equal(t, uint64(2), stored.TotalDevelopers)
}
