package ledger

import (
	"context"

	"chainproof-ledger/internal/domain"
)

// TokenAccount returns the stake-mint token account of owner.
func (e *Engine) TokenAccount(owner domain.Address) domain.Address {
	return e.deriver.AssociatedTokenAccount(owner, e.tokens.Mint())
}

// OpenTokenAccount opens owner's stake-mint token account if it does not exist yet.
func (e *Engine) OpenTokenAccount(ctx context.Context, owner domain.Address) (domain.Address, error) {
	addr := e.TokenAccount(owner)
	err := e.run(ctx, "open_token_account", func(u *unit) error {
		return e.tokens.OpenAccount(u.ctx, u.tx, addr, owner)
	})
	return addr, err
}

// Faucet credits amount of the stake mint to owner, opening the account first
// when needed. It is an operator tool for local and test deployments.
func (e *Engine) Faucet(ctx context.Context, owner domain.Address, amount uint64) (uint64, error) {
	addr := e.TokenAccount(owner)
	var balance uint64
	err := e.run(ctx, "faucet", func(u *unit) error {
		if err := e.tokens.OpenAccount(u.ctx, u.tx, addr, owner); err != nil {
			return err
		}
		if err := e.tokens.MintTo(u.ctx, u.tx, addr, amount); err != nil {
			return err
		}
		var err error
		balance, err = e.tokens.Balance(u.ctx, u.tx, addr)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
