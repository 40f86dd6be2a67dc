package idhash

import (
	"fmt"

	"chainproof-ledger/internal/domain"
)

// Namespace tags. These are part of the persisted address scheme and must not change.
const (
	NamespaceTokenEntry        = "token_entry"
	NamespaceRewardPool        = "reward_pool"
	NamespaceUserProfile       = "user_profile"
	NamespaceDeveloperRegistry = "developer_registry"
	NamespaceProjectStakes     = "project_stakes"
	NamespaceUserStake         = "user_stake"
	NamespaceStakeVault        = "stake_vault"
)

// Derived is a program-derived address together with its bump seed.
type Derived struct {
	Address domain.Address
	Bump    uint8
}

// Deriver computes record addresses for one deployment of the program.
type Deriver struct {
	program      domain.Address
	tokenProgram domain.Address
	ataProgram   domain.Address
}

// NewDeriver creates a Deriver for the given program and token program ids.
func NewDeriver(program, tokenProgram, ataProgram domain.Address) *Deriver {
	return &Deriver{
		program:      program,
		tokenProgram: tokenProgram,
		ataProgram:   ataProgram,
	}
}

// DefaultDeriver returns a Deriver for the deployed ChainProof program.
func DefaultDeriver() *Deriver {
	return NewDeriver(
		domain.MustParseAddress(domain.ChainProofProgramID),
		domain.MustParseAddress(domain.TokenProgramID),
		domain.MustParseAddress(domain.AssociatedTokenProgramID),
	)
}

// Program returns the owning program id.
func (d *Deriver) Program() domain.Address {
	return d.program
}

// Derive returns the address of (namespace, parts...). Identical inputs always
// resolve to the same address.
//
// Derive panics if no bump yields an off-curve address. With 256 candidate
// bumps this does not happen for well-formed inputs; a seed over 32 bytes is
// a caller bug and panics as well.
func (d *Deriver) Derive(namespace string, parts ...domain.Address) Derived {
	seeds := make([][]byte, 0, len(parts)+1)
	seeds = append(seeds, []byte(namespace))
	for _, p := range parts {
		seeds = append(seeds, p.Bytes())
	}
	addr, bump, err := FindProgramAddress(seeds, d.program)
	if err != nil {
		panic(fmt.Sprintf("derive %s: %v", namespace, err))
	}
	return Derived{Address: addr, Bump: bump}
}

// TokenEntry derives the registry record of a mint.
func (d *Deriver) TokenEntry(mint domain.Address) Derived {
	return d.Derive(NamespaceTokenEntry, mint)
}

// RewardPool derives the singleton reward pool.
func (d *Deriver) RewardPool() Derived {
	return d.Derive(NamespaceRewardPool)
}

// UserProfile derives a wallet's profile.
func (d *Deriver) UserProfile(wallet domain.Address) Derived {
	return d.Derive(NamespaceUserProfile, wallet)
}

// DeveloperRegistry derives the singleton developer registry.
func (d *Deriver) DeveloperRegistry() Derived {
	return d.Derive(NamespaceDeveloperRegistry)
}

// ProjectStakes derives the aggregate stake record of a project mint.
func (d *Deriver) ProjectStakes(projectMint domain.Address) Derived {
	return d.Derive(NamespaceProjectStakes, projectMint)
}

// UserStake derives the stake of wallet on projectMint.
func (d *Deriver) UserStake(wallet, projectMint domain.Address) Derived {
	return d.Derive(NamespaceUserStake, wallet, projectMint)
}

// StakeVault derives the token account that custodies a project's stakes.
func (d *Deriver) StakeVault(projectMint domain.Address) Derived {
	return d.Derive(NamespaceStakeVault, projectMint)
}

// AssociatedTokenAccount derives the canonical token account of owner for mint,
// as the associated token account program does.
func (d *Deriver) AssociatedTokenAccount(owner, mint domain.Address) domain.Address {
	seeds := [][]byte{owner.Bytes(), d.tokenProgram.Bytes(), mint.Bytes()}
	addr, _, err := FindProgramAddress(seeds, d.ataProgram)
	if err != nil {
		panic(fmt.Sprintf("derive associated token account: %v", err))
	}
	return addr
}
