package ledger

import (
	"context"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/observability"
)

// Distribution is the outcome of a successful Distribute call.
type Distribution struct {
	Pool            *domain.RewardPool `json:"pool"`
	Balance         uint64             `json:"balance"`
	Split           Split              `json:"split"`
	TotalDevelopers uint64             `json:"totalDevelopers"`
}

// PoolTokenAccount returns the custodial token account of the reward pool.
func (e *Engine) PoolTokenAccount() domain.Address {
	return e.deriver.AssociatedTokenAccount(e.deriver.RewardPool().Address, e.tokens.Mint())
}

// InitializeRewardPool creates the singleton reward pool and its token
// account. The first distribution becomes possible one interval from now.
func (e *Engine) InitializeRewardPool(ctx context.Context, authority domain.Address) (*domain.RewardPool, error) {
	var pool *domain.RewardPool
	err := e.run(ctx, "initialize_reward_pool", func(u *unit) error {
		d := e.deriver.RewardPool()
		pool = &domain.RewardPool{
			Authority:                   authority,
			LastDistributionAt:          u.now,
			DistributionIntervalSeconds: e.params.DistributionIntervalSeconds,
			DeveloperShareBps:           e.params.DeveloperShareBps,
			UserShareBps:                e.params.UserShareBps,
			Bump:                        d.Bump,
		}
		if err := create(u, rewardPools, e.program(), d.Address, pool); err != nil {
			return err
		}
		if err := e.tokens.OpenAccount(u.ctx, u.tx, e.PoolTokenAccount(), d.Address); err != nil {
			return err
		}
		u.emit(domain.RewardPoolInitialized{Authority: authority, Timestamp: u.now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Deposit moves amount from depositor's token account into the pool.
func (e *Engine) Deposit(ctx context.Context, depositor domain.Address, amount uint64) (*domain.RewardPool, error) {
	var pool *domain.RewardPool
	err := e.run(ctx, "deposit", func(u *unit) error {
		poolAddr := e.deriver.RewardPool().Address
		p, err := load(u.ctx, u.tx, rewardPools, poolAddr)
		if err != nil {
			return err
		}
		poolAccount := e.PoolTokenAccount()
		if err := e.transfer.Transfer(u.ctx, u.tx,
			e.deriver.AssociatedTokenAccount(depositor, e.tokens.Mint()),
			poolAccount,
			amount, custody.WalletAuthority(depositor)); err != nil {
			return err
		}
		if p.TotalDeposited, err = checkedAdd(p.TotalDeposited, amount); err != nil {
			return err
		}
		if err := save(u, rewardPools, e.program(), poolAddr, p); err != nil {
			return err
		}
		balance, err := e.tokens.Balance(u.ctx, u.tx, poolAccount)
		if err != nil {
			return err
		}

		u.emit(domain.PoolDeposit{Depositor: depositor, Amount: amount, TotalDeposited: p.TotalDeposited})
		deposited := p.TotalDeposited
		u.onCommit(func() { observability.UpdatePool(balance, deposited) })
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Distribute computes the developer/user split of the pool balance and
// starts a new interval. It records the split only; no tokens leave the pool.
func (e *Engine) Distribute(ctx context.Context, authority domain.Address) (*Distribution, error) {
	var dist *Distribution
	err := e.run(ctx, "distribute", func(u *unit) error {
		poolAddr := e.deriver.RewardPool().Address
		p, err := load(u.ctx, u.tx, rewardPools, poolAddr)
		if err != nil {
			return err
		}
		if p.Authority != authority {
			return ErrUnauthorized.withDetail("pool authority is %s", p.Authority)
		}
		if next := p.NextDistributionAt(); u.now < next {
			return ErrDistributionTooEarly.withDetail("next distribution at %d, now %d", next, u.now)
		}
		balance, err := e.tokens.Balance(u.ctx, u.tx, e.PoolTokenAccount())
		if err != nil {
			return err
		}
		if balance == 0 {
			return ErrInsufficientPoolBalance
		}
		reg, err := load(u.ctx, u.tx, registries, e.deriver.DeveloperRegistry().Address)
		if err != nil {
			return err
		}

		split, err := ComputeSplit(balance, p.DeveloperShareBps, p.UserShareBps)
		if err != nil {
			return err
		}
		total, err := split.Total()
		if err != nil {
			return err
		}
		if p.TotalDistributed, err = checkedAdd(p.TotalDistributed, total); err != nil {
			return err
		}
		p.LastDistributionAt = u.now
		if err := save(u, rewardPools, e.program(), poolAddr, p); err != nil {
			return err
		}

		u.emit(domain.RewardsDistributed{
			Authority:       authority,
			CycleTimestamp:  u.now,
			DeveloperShare:  split.DeveloperShare,
			UserShare:       split.UserShare,
			TotalDevelopers: reg.TotalDevelopers,
		})
		deposited := p.TotalDeposited
		u.onCommit(func() { observability.UpdatePool(balance, deposited) })
		dist = &Distribution{Pool: p, Balance: balance, Split: split, TotalDevelopers: reg.TotalDevelopers}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}
