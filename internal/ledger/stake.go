package ledger

import (
	"context"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
)

// StakeReceipt is the state of every record a stake operation touched, as committed.
type StakeReceipt struct {
	Stake   *domain.UserStake     `json:"stake"`
	Project *domain.ProjectStakes `json:"project"`
	Profile *domain.UserProfile   `json:"profile"`
}

// InitializeProjectStakes creates the stake aggregate of projectMint and the
// vault token account that custodies its stakes. The vault is owned by the
// aggregate record, so only the ledger can move funds out of it.
func (e *Engine) InitializeProjectStakes(ctx context.Context, payer, projectMint domain.Address) (*domain.ProjectStakes, error) {
	var ps *domain.ProjectStakes
	err := e.run(ctx, "initialize_project_stakes", func(u *unit) error {
		d := e.deriver.ProjectStakes(projectMint)
		ps = &domain.ProjectStakes{ProjectMint: projectMint, Bump: d.Bump}
		if err := create(u, projects, e.program(), d.Address, ps); err != nil {
			return err
		}
		vault := e.deriver.StakeVault(projectMint).Address
		return e.tokens.OpenAccount(u.ctx, u.tx, vault, d.Address)
	})
	if err != nil {
		return nil, err
	}
	e.log.WithField("project", projectMint.String()).WithField("payer", payer.String()).Info("project stakes initialized")
	return ps, nil
}

// Stake moves amount from user's token account into the project vault and
// records it. A new stake cancels any pending unstake request.
func (e *Engine) Stake(ctx context.Context, user, projectMint domain.Address, amount uint64) (*StakeReceipt, error) {
	if amount == 0 {
		return nil, ErrInvalidStakeAmount
	}

	var receipt *StakeReceipt
	err := e.run(ctx, "stake", func(u *unit) error {
		projectAddr := e.deriver.ProjectStakes(projectMint).Address
		ps, err := load(u.ctx, u.tx, projects, projectAddr)
		if err != nil {
			return err
		}
		profileAddr := e.deriver.UserProfile(user).Address
		profile, err := load(u.ctx, u.tx, profiles, profileAddr)
		if err != nil {
			return err
		}
		stakeID := e.deriver.UserStake(user, projectMint)
		stake, found, err := find(u.ctx, u.tx, userStakes, stakeID.Address)
		if err != nil {
			return err
		}

		if err := e.transfer.Transfer(u.ctx, u.tx,
			e.deriver.AssociatedTokenAccount(user, e.tokens.Mint()),
			e.deriver.StakeVault(projectMint).Address,
			amount, custody.WalletAuthority(user)); err != nil {
			return err
		}

		if !found {
			stake = &domain.UserStake{User: user, ProjectMint: projectMint, Bump: stakeID.Bump}
		}
		if stake.Amount, err = checkedAdd(stake.Amount, amount); err != nil {
			return err
		}
		stake.StakedAt = u.now
		stake.UnstakeRequestedAt = nil

		if ps.TotalStakes, err = checkedAdd(ps.TotalStakes, 1); err != nil {
			return err
		}
		if ps.TotalStakes >= e.params.VerificationThreshold && !ps.IsVerified {
			ps.IsVerified = true
			u.emit(domain.ProjectVerified{ProjectMint: projectMint, TotalStakes: ps.TotalStakes})
		}

		if profile.TotalStakes, err = checkedAdd(profile.TotalStakes, 1); err != nil {
			return err
		}
		if profile.RewardPoints, err = checkedAdd(profile.RewardPoints, amount); err != nil {
			return err
		}

		if found {
			err = save(u, userStakes, e.program(), stakeID.Address, stake)
		} else {
			err = create(u, userStakes, e.program(), stakeID.Address, stake)
		}
		if err != nil {
			return err
		}
		if err := save(u, projects, e.program(), projectAddr, ps); err != nil {
			return err
		}
		if err := save(u, profiles, e.program(), profileAddr, profile); err != nil {
			return err
		}

		u.emit(domain.Staked{
			User:        user,
			ProjectMint: projectMint,
			Amount:      amount,
			TotalStakes: ps.TotalStakes,
		})
		receipt = &StakeReceipt{Stake: stake, Project: ps, Profile: profile}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RequestUnstake starts the cooldown of user's stake on projectMint. No funds
// move and no counters change.
func (e *Engine) RequestUnstake(ctx context.Context, user, projectMint domain.Address) (*domain.UserStake, error) {
	var stake *domain.UserStake
	err := e.run(ctx, "request_unstake", func(u *unit) error {
		addr := e.deriver.UserStake(user, projectMint).Address
		s, found, err := find(u.ctx, u.tx, userStakes, addr)
		if err != nil {
			return err
		}
		if !found || s.Amount == 0 {
			return ErrNoStakeFound.withDetail("%s on %s", user, projectMint)
		}
		if s.UnstakeRequestedAt != nil {
			return ErrUnstakeAlreadyRequested.withDetail("requested at %d", *s.UnstakeRequestedAt)
		}
		requestedAt := u.now
		s.UnstakeRequestedAt = &requestedAt
		if err := save(u, userStakes, e.program(), addr, s); err != nil {
			return err
		}
		u.emit(domain.UnstakeRequested{
			User:         user,
			ProjectMint:  projectMint,
			CooldownEnds: u.now + e.params.UnstakeCooldownSeconds,
		})
		stake = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stake, nil
}

// CompleteUnstake returns the full stake to user once the cooldown has
// elapsed. The vault transfer happens before any counter changes.
func (e *Engine) CompleteUnstake(ctx context.Context, user, projectMint domain.Address) (*StakeReceipt, error) {
	var receipt *StakeReceipt
	err := e.run(ctx, "complete_unstake", func(u *unit) error {
		stakeAddr := e.deriver.UserStake(user, projectMint).Address
		stake, found, err := find(u.ctx, u.tx, userStakes, stakeAddr)
		if err != nil {
			return err
		}
		if !found || stake.UnstakeRequestedAt == nil {
			return ErrUnstakeNotRequested.withDetail("%s on %s", user, projectMint)
		}
		unlockAt := *stake.UnstakeRequestedAt + e.params.UnstakeCooldownSeconds
		if u.now < unlockAt {
			return ErrCooldownNotComplete.withDetail("unlocks at %d, now %d", unlockAt, u.now)
		}

		projectAddr := e.deriver.ProjectStakes(projectMint).Address
		ps, err := load(u.ctx, u.tx, projects, projectAddr)
		if err != nil {
			return err
		}
		profileAddr := e.deriver.UserProfile(user).Address
		profile, err := load(u.ctx, u.tx, profiles, profileAddr)
		if err != nil {
			return err
		}

		amount := stake.Amount
		if err := e.transfer.Transfer(u.ctx, u.tx,
			e.deriver.StakeVault(projectMint).Address,
			e.deriver.AssociatedTokenAccount(user, e.tokens.Mint()),
			amount, custody.NewVaultAuthority(e.deriver, projectMint)); err != nil {
			return err
		}

		ps.TotalStakes = saturatingSub(ps.TotalStakes, 1)
		profile.TotalStakes = saturatingSub(profile.TotalStakes, 1)
		profile.RewardPoints = saturatingSub(profile.RewardPoints, amount)
		if ps.TotalStakes < e.params.VerificationThreshold && ps.IsVerified {
			ps.IsVerified = false
			u.emit(domain.ProjectVerificationRevoked{ProjectMint: projectMint, TotalStakes: ps.TotalStakes})
		}
		stake.Amount = 0
		stake.UnstakeRequestedAt = nil

		if err := save(u, userStakes, e.program(), stakeAddr, stake); err != nil {
			return err
		}
		if err := save(u, projects, e.program(), projectAddr, ps); err != nil {
			return err
		}
		if err := save(u, profiles, e.program(), profileAddr, profile); err != nil {
			return err
		}

		u.emit(domain.Unstaked{User: user, ProjectMint: projectMint, Amount: amount})
		receipt = &StakeReceipt{Stake: stake, Project: ps, Profile: profile}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
