package custody

import (
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/idhash"
)

// Authority is the right to move funds out of token accounts owned by Address.
type Authority interface {
	Address() domain.Address
}

// WalletAuthority is the authority of a wallet whose signature the caller
// has already verified.
type WalletAuthority domain.Address

// Address returns the wallet.
func (w WalletAuthority) Address() domain.Address { return domain.Address(w) }

// VaultAuthority lets the ledger move funds out of a project's stake vault.
// The zero value authorizes nothing; build it with NewVaultAuthority.
type VaultAuthority struct {
	projectMint   domain.Address
	projectStakes domain.Address
}

// NewVaultAuthority re-derives the ProjectStakes address that owns the vault
// of projectMint.
func NewVaultAuthority(d *idhash.Deriver, projectMint domain.Address) VaultAuthority {
	return VaultAuthority{
		projectMint:   projectMint,
		projectStakes: d.ProjectStakes(projectMint).Address,
	}
}

// Address returns the ProjectStakes record address.
func (v VaultAuthority) Address() domain.Address { return v.projectStakes }

// ProjectMint returns the project the vault belongs to.
func (v VaultAuthority) ProjectMint() domain.Address { return v.projectMint }
