package ledger

import (
	"context"

	"chainproof-ledger/internal/domain"
)

// TokenFields are the editable metadata of a registered token.
type TokenFields struct {
	Name     string
	Symbol   string
	IpfsHash string
}

// RegisterToken creates the registry entry for mint, owned by authority.
func (e *Engine) RegisterToken(ctx context.Context, authority, mint domain.Address, f TokenFields) (*domain.TokenEntry, error) {
	if err := validateTokenFields(f.Name, f.Symbol, f.IpfsHash); err != nil {
		return nil, err
	}

	var entry *domain.TokenEntry
	err := e.run(ctx, "register_token", func(u *unit) error {
		d := e.deriver.TokenEntry(mint)
		entry = &domain.TokenEntry{
			Authority: authority,
			Mint:      mint,
			Name:      f.Name,
			Symbol:    f.Symbol,
			IpfsHash:  f.IpfsHash,
			UpdatedAt: u.now,
			Bump:      d.Bump,
		}
		if err := create(u, tokenEntries, e.program(), d.Address, entry); err != nil {
			return err
		}
		u.emit(domain.TokenRegistered{
			Mint:      mint,
			Authority: authority,
			Name:      f.Name,
			Timestamp: u.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateTokenEntry replaces the metadata of mint. Only the registering
// authority may update it.
func (e *Engine) UpdateTokenEntry(ctx context.Context, authority, mint domain.Address, f TokenFields) (*domain.TokenEntry, error) {
	if err := validateTokenFields(f.Name, f.Symbol, f.IpfsHash); err != nil {
		return nil, err
	}

	var entry *domain.TokenEntry
	err := e.run(ctx, "update_token_entry", func(u *unit) error {
		addr := e.deriver.TokenEntry(mint).Address
		cur, err := load(u.ctx, u.tx, tokenEntries, addr)
		if err != nil {
			return err
		}
		if cur.Authority != authority {
			return ErrUnauthorized.withDetail("token entry %s belongs to %s", mint, cur.Authority)
		}
		cur.Name = f.Name
		cur.Symbol = f.Symbol
		cur.IpfsHash = f.IpfsHash
		cur.UpdatedAt = u.now
		if err := save(u, tokenEntries, e.program(), addr, cur); err != nil {
			return err
		}
		u.emit(domain.TokenUpdated{
			Mint:      mint,
			Authority: authority,
			Name:      f.Name,
			Timestamp: u.now,
		})
		entry = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
