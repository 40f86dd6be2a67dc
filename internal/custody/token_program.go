// Package custody keeps custodial token balances as SPL token accounts in
// the account store, so transfers commit atomically with ledger records.
package custody

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/layout"
	"chainproof-ledger/internal/storage"
)

var (
	ErrAccountNotFound   = errors.New("custody: token account not found")
	ErrAccountExists     = errors.New("custody: token account owned by another authority")
	ErrNotTokenAccount   = errors.New("custody: not a token account")
	ErrOwnerMismatch     = errors.New("custody: authority does not own source account")
	ErrMintMismatch      = errors.New("custody: mint mismatch")
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrBalanceOverflow   = errors.New("custody: balance overflow")
	ErrMissingAuthority  = errors.New("custody: authority required")
)

// Reader reads accounts. Both storage.Tx and storage.AccountStore satisfy it.
type Reader interface {
	Get(ctx context.Context, addr domain.Address) (*storage.Account, error)
}

// Transferer moves value between custodial token accounts inside a unit of work.
type Transferer interface {
	Transfer(ctx context.Context, tx storage.Tx, from, to domain.Address, amount uint64, authority Authority) error
}

// TokenProgram manages token accounts of a single mint.
type TokenProgram struct {
	mint      domain.Address
	programID domain.Address
	nowFn     func() int64
}

// NewTokenProgram returns a token program for mint. programID is recorded as
// the owner of every token account it creates.
func NewTokenProgram(mint, programID domain.Address) *TokenProgram {
	return &TokenProgram{
		mint:      mint,
		programID: programID,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source stamped on written accounts.
func (p *TokenProgram) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	p.nowFn = now
}

// Mint returns the mint this program manages.
func (p *TokenProgram) Mint() domain.Address { return p.mint }

// OpenAccount creates an empty token account at addr controlled by owner.
// Opening an existing account with the same owner is a no-op.
func (p *TokenProgram) OpenAccount(ctx context.Context, tx storage.Tx, addr, owner domain.Address) error {
	existing, err := p.load(ctx, tx, addr)
	switch {
	case err == nil:
		if existing.Owner != owner {
			return fmt.Errorf("%w: %s", ErrAccountExists, addr)
		}
		return nil
	case !errors.Is(err, ErrAccountNotFound):
		return err
	}

	return tx.Create(ctx, p.account(addr, &domain.TokenAccount{Mint: p.mint, Owner: owner}))
}

// MintTo credits amount to addr. Used by the operator faucet.
func (p *TokenProgram) MintTo(ctx context.Context, tx storage.Tx, addr domain.Address, amount uint64) error {
	acct, err := p.load(ctx, tx, addr)
	if err != nil {
		return err
	}
	if acct.Mint != p.mint {
		return ErrMintMismatch
	}
	sum, carry := bits.Add64(acct.Amount, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	acct.Amount = sum
	return tx.Put(ctx, p.account(addr, acct))
}

// Balance returns the amount held at addr.
func (p *TokenProgram) Balance(ctx context.Context, r Reader, addr domain.Address) (uint64, error) {
	acct, err := p.load(ctx, r, addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// Account returns the token account at addr.
func (p *TokenProgram) Account(ctx context.Context, r Reader, addr domain.Address) (*domain.TokenAccount, error) {
	return p.load(ctx, r, addr)
}

// Transfer moves amount from one token account to another. authority must
// own the source account and both accounts must hold this program's mint.
// Nothing is written unless every check passes.
func (p *TokenProgram) Transfer(ctx context.Context, tx storage.Tx, from, to domain.Address, amount uint64, authority Authority) error {
	if authority == nil {
		return ErrMissingAuthority
	}

	src, err := p.load(ctx, tx, from)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := p.load(ctx, tx, to)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if src.Owner != authority.Address() {
		return ErrOwnerMismatch
	}
	if src.Mint != p.mint || dst.Mint != p.mint {
		return ErrMintMismatch
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if from == to {
		return nil
	}

	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	src.Amount -= amount
	dst.Amount = sum

	if err := tx.Put(ctx, p.account(from, src)); err != nil {
		return err
	}
	return tx.Put(ctx, p.account(to, dst))
}

func (p *TokenProgram) load(ctx context.Context, r Reader, addr domain.Address) (*domain.TokenAccount, error) {
	a, err := r.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
		}
		return nil, err
	}
	if a.Kind != string(layout.KindTokenAccount) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotTokenAccount, addr, a.Kind)
	}
	return layout.DecodeTokenAccount(a.Data)
}

func (p *TokenProgram) account(addr domain.Address, acct *domain.TokenAccount) *storage.Account {
	return &storage.Account{
		Address:   addr,
		Owner:     p.programID,
		Kind:      string(layout.KindTokenAccount),
		Data:      layout.EncodeTokenAccount(acct),
		UpdatedAt: p.nowFn(),
	}
}

var _ Transferer = (*TokenProgram)(nil)
