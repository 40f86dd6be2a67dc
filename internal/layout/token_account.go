package layout

import (
	"chainproof-ledger/internal/domain"
)

// TokenAccountSpace is the size of an SPL token account.
// Layout: mint(32) | owner(32) | amount(8) | delegate COption(36) | state(1) |
// is_native COption(12) | delegated_amount(8) | close_authority COption(36)
const TokenAccountSpace = 165

const tokenAccountStateInitialized = 1

// EncodeTokenAccount encodes an initialized token account with no delegate,
// not native and no close authority.
func EncodeTokenAccount(a *domain.TokenAccount) []byte {
	e := newEncoder(TokenAccountSpace)
	e.address(a.Mint)
	e.address(a.Owner)
	e.u64(a.Amount)
	e.u32(0) // delegate: None
	e.raw(make([]byte, 32))
	e.u8(tokenAccountStateInitialized)
	out := make([]byte, TokenAccountSpace)
	copy(out, e.buf)
	return out
}

// DecodeTokenAccount decodes the mint, owner and amount of a token account.
func DecodeTokenAccount(data []byte) (*domain.TokenAccount, error) {
	if len(data) < 72 {
		return nil, ErrShortBuffer
	}
	d := newDecoder(data)
	a := &domain.TokenAccount{
		Mint:   d.address(),
		Owner:  d.address(),
		Amount: d.u64(),
	}
	return finish(KindTokenAccount, a, d)
}
