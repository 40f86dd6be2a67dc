package ledger

import (
	"context"
	"fmt"

	"chainproof-ledger/internal/domain"
)

// PoolView is the reward pool with its custodial balance.
type PoolView struct {
	Address            domain.Address     `json:"address"`
	TokenAccount       domain.Address     `json:"tokenAccount"`
	Pool               *domain.RewardPool `json:"pool"`
	Balance            uint64             `json:"balance"`
	NextDistributionAt int64              `json:"nextDistributionAt"`
}

// StakeView is a user stake with its derived lifecycle phase.
type StakeView struct {
	Address  domain.Address    `json:"address"`
	Stake    *domain.UserStake `json:"stake"`
	Phase    domain.StakePhase `json:"phase"`
	UnlockAt *int64            `json:"unlockAt,omitempty"`
}

// GetTokenEntry returns the registry entry of mint.
func (e *Engine) GetTokenEntry(ctx context.Context, mint domain.Address) (*domain.TokenEntry, error) {
	return load(ctx, e.store, tokenEntries, e.deriver.TokenEntry(mint).Address)
}

// GetRewardPool returns the reward pool and its balance.
func (e *Engine) GetRewardPool(ctx context.Context) (*PoolView, error) {
	addr := e.deriver.RewardPool().Address
	pool, err := load(ctx, e.store, rewardPools, addr)
	if err != nil {
		return nil, err
	}
	tokenAccount := e.PoolTokenAccount()
	balance, err := e.tokens.Balance(ctx, e.store, tokenAccount)
	if err != nil {
		return nil, fmt.Errorf("pool balance: %w", err)
	}
	return &PoolView{
		Address:            addr,
		TokenAccount:       tokenAccount,
		Pool:               pool,
		Balance:            balance,
		NextDistributionAt: pool.NextDistributionAt(),
	}, nil
}

// GetProfile returns the profile of wallet.
func (e *Engine) GetProfile(ctx context.Context, wallet domain.Address) (*domain.UserProfile, error) {
	return load(ctx, e.store, profiles, e.deriver.UserProfile(wallet).Address)
}

// GetDeveloperRegistry returns the developer registry.
func (e *Engine) GetDeveloperRegistry(ctx context.Context) (*domain.DeveloperRegistry, error) {
	return load(ctx, e.store, registries, e.deriver.DeveloperRegistry().Address)
}

// GetProjectStakes returns the stake aggregate of projectMint.
func (e *Engine) GetProjectStakes(ctx context.Context, projectMint domain.Address) (*domain.ProjectStakes, error) {
	return load(ctx, e.store, projects, e.deriver.ProjectStakes(projectMint).Address)
}

// ListProjects returns every project stake aggregate, ordered by record address.
func (e *Engine) ListProjects(ctx context.Context) ([]*domain.ProjectStakes, error) {
	accounts, err := e.store.GetByKind(ctx, string(projects.kind))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	result := make([]*domain.ProjectStakes, 0, len(accounts))
	for _, a := range accounts {
		ps, err := projects.decode(a.Data)
		if err != nil {
			return nil, fmt.Errorf("decode project stakes %s: %w", a.Address, err)
		}
		result = append(result, ps)
	}
	return result, nil
}

// GetUserStake returns the stake of wallet on projectMint. A wallet that never
// staked gets ErrNotInitialized.
func (e *Engine) GetUserStake(ctx context.Context, wallet, projectMint domain.Address) (*StakeView, error) {
	addr := e.deriver.UserStake(wallet, projectMint).Address
	stake, err := load(ctx, e.store, userStakes, addr)
	if err != nil {
		return nil, err
	}
	view := &StakeView{Address: addr, Stake: stake, Phase: stake.Phase()}
	if at, ok := stake.UnlockAt(e.params.UnstakeCooldownSeconds); ok {
		view.UnlockAt = &at
	}
	return view, nil
}

// Balance returns the stake-mint balance held by owner's token account.
func (e *Engine) Balance(ctx context.Context, owner domain.Address) (uint64, error) {
	return e.tokens.Balance(ctx, e.store, e.TokenAccount(owner))
}

// VaultBalance returns the amount custodied for projectMint.
func (e *Engine) VaultBalance(ctx context.Context, projectMint domain.Address) (uint64, error) {
	return e.tokens.Balance(ctx, e.store, e.deriver.StakeVault(projectMint).Address)
}
