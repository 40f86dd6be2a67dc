// Package layout encodes program records in the byte layout of the deployed
// Anchor program, so records can be exchanged with on-chain accounts.
//
// Account layout: 8-byte discriminator sha256("account:<Name>")[:8], then the
// fields in declaration order, Borsh encoded, zero padded to the account space.
package layout

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"chainproof-ledger/internal/domain"
)

// Kind names a record type. It doubles as the Anchor account name.
type Kind string

const (
	KindTokenEntry        Kind = "TokenEntry"
	KindRewardPool        Kind = "RewardPool"
	KindUserProfile       Kind = "UserProfile"
	KindDeveloperRegistry Kind = "DeveloperRegistry"
	KindProjectStakes     Kind = "ProjectStakes"
	KindUserStake         Kind = "UserStake"
	KindTokenAccount      Kind = "TokenAccount"
)

// Account space in bytes, discriminator included.
const (
	TokenEntrySpace        = 8 + 32 + 32 + (4 + 50) + (4 + 10) + (4 + 100) + 8 + 1
	RewardPoolSpace        = 8 + 32 + 8 + 8 + 8 + 8 + 2 + 2 + 1
	UserProfileSpace       = 8 + 32 + (4 + 32) + (1 + 4 + 32) + 1 + 8 + 8 + 8 + 1
	DeveloperRegistrySpace = 8 + 32 + 8 + 1
	ProjectStakesSpace     = 8 + 32 + 8 + 1 + 1
	UserStakeSpace         = 8 + 32 + 32 + 8 + 8 + (1 + 8) + 1
)

// DiscriminatorLength is the size of the account/event type prefix.
const DiscriminatorLength = 8

var (
	// ErrDiscriminatorMismatch is returned when data holds a different record type.
	ErrDiscriminatorMismatch = errors.New("layout: discriminator mismatch")
	// ErrUnknownDiscriminator is returned when the prefix matches no known type.
	ErrUnknownDiscriminator = errors.New("layout: unknown discriminator")
)

// AccountDiscriminator returns sha256("account:<kind>")[:8].
func AccountDiscriminator(kind Kind) [DiscriminatorLength]byte {
	return discriminator("account:" + string(kind))
}

func discriminator(preimage string) [DiscriminatorLength]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [DiscriminatorLength]byte
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

var accountKinds = []Kind{
	KindTokenEntry,
	KindRewardPool,
	KindUserProfile,
	KindDeveloperRegistry,
	KindProjectStakes,
	KindUserStake,
}

// KindOf identifies the record type of an encoded account.
func KindOf(data []byte) (Kind, error) {
	if len(data) == TokenAccountSpace {
		return KindTokenAccount, nil
	}
	if len(data) < DiscriminatorLength {
		return "", ErrShortBuffer
	}
	for _, k := range accountKinds {
		d := AccountDiscriminator(k)
		if bytes.Equal(data[:DiscriminatorLength], d[:]) {
			return k, nil
		}
	}
	return "", ErrUnknownDiscriminator
}

func accountEncoder(kind Kind, space int) *encoder {
	e := newEncoder(space)
	d := AccountDiscriminator(kind)
	e.raw(d[:])
	return e
}

func accountDecoder(kind Kind, data []byte) (*decoder, error) {
	if len(data) < DiscriminatorLength {
		return nil, ErrShortBuffer
	}
	d := AccountDiscriminator(kind)
	if !bytes.Equal(data[:DiscriminatorLength], d[:]) {
		return nil, fmt.Errorf("%w: want %s", ErrDiscriminatorMismatch, kind)
	}
	return newDecoder(data[DiscriminatorLength:]), nil
}

func finish[T any](kind Kind, v *T, d *decoder) (*T, error) {
	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, d.err)
	}
	return v, nil
}

// EncodeTokenEntry encodes a TokenEntry account.
func EncodeTokenEntry(r *domain.TokenEntry) ([]byte, error) {
	e := accountEncoder(KindTokenEntry, TokenEntrySpace)
	e.address(r.Authority)
	e.address(r.Mint)
	e.str(r.Name)
	e.str(r.Symbol)
	e.str(r.IpfsHash)
	e.i64(r.UpdatedAt)
	e.u8(r.Bump)
	return e.padded(KindTokenEntry, TokenEntrySpace)
}

// DecodeTokenEntry decodes a TokenEntry account.
func DecodeTokenEntry(data []byte) (*domain.TokenEntry, error) {
	d, err := accountDecoder(KindTokenEntry, data)
	if err != nil {
		return nil, err
	}
	r := &domain.TokenEntry{
		Authority: d.address(),
		Mint:      d.address(),
		Name:      d.str(),
		Symbol:    d.str(),
		IpfsHash:  d.str(),
		UpdatedAt: d.i64(),
		Bump:      d.u8(),
	}
	return finish(KindTokenEntry, r, d)
}

// EncodeRewardPool encodes the RewardPool account.
func EncodeRewardPool(r *domain.RewardPool) ([]byte, error) {
	e := accountEncoder(KindRewardPool, RewardPoolSpace)
	e.address(r.Authority)
	e.u64(r.TotalDeposited)
	e.u64(r.TotalDistributed)
	e.i64(r.LastDistributionAt)
	e.i64(r.DistributionIntervalSeconds)
	e.u16(r.DeveloperShareBps)
	e.u16(r.UserShareBps)
	e.u8(r.Bump)
	return e.padded(KindRewardPool, RewardPoolSpace)
}

// DecodeRewardPool decodes the RewardPool account.
func DecodeRewardPool(data []byte) (*domain.RewardPool, error) {
	d, err := accountDecoder(KindRewardPool, data)
	if err != nil {
		return nil, err
	}
	r := &domain.RewardPool{
		Authority:                   d.address(),
		TotalDeposited:              d.u64(),
		TotalDistributed:            d.u64(),
		LastDistributionAt:          d.i64(),
		DistributionIntervalSeconds: d.i64(),
		DeveloperShareBps:           d.u16(),
		UserShareBps:                d.u16(),
		Bump:                        d.u8(),
	}
	return finish(KindRewardPool, r, d)
}

// EncodeUserProfile encodes a UserProfile account.
func EncodeUserProfile(r *domain.UserProfile) ([]byte, error) {
	e := accountEncoder(KindUserProfile, UserProfileSpace)
	e.address(r.Wallet)
	e.str(r.Username)
	e.optStr(r.ReferralCode)
	e.bool(r.IsDeveloper)
	e.u64(r.TotalStakes)
	e.u64(r.RewardPoints)
	e.i64(r.CreatedAt)
	e.u8(r.Bump)
	return e.padded(KindUserProfile, UserProfileSpace)
}

// DecodeUserProfile decodes a UserProfile account.
func DecodeUserProfile(data []byte) (*domain.UserProfile, error) {
	d, err := accountDecoder(KindUserProfile, data)
	if err != nil {
		return nil, err
	}
	r := &domain.UserProfile{
		Wallet:       d.address(),
		Username:     d.str(),
		ReferralCode: d.optStr(),
		IsDeveloper:  d.bool(),
		TotalStakes:  d.u64(),
		RewardPoints: d.u64(),
		CreatedAt:    d.i64(),
		Bump:         d.u8(),
	}
	return finish(KindUserProfile, r, d)
}

// EncodeDeveloperRegistry encodes the DeveloperRegistry account.
func EncodeDeveloperRegistry(r *domain.DeveloperRegistry) ([]byte, error) {
	e := accountEncoder(KindDeveloperRegistry, DeveloperRegistrySpace)
	e.address(r.Authority)
	e.u64(r.TotalDevelopers)
	e.u8(r.Bump)
	return e.padded(KindDeveloperRegistry, DeveloperRegistrySpace)
}

// DecodeDeveloperRegistry decodes the DeveloperRegistry account.
func DecodeDeveloperRegistry(data []byte) (*domain.DeveloperRegistry, error) {
	d, err := accountDecoder(KindDeveloperRegistry, data)
	if err != nil {
		return nil, err
	}
	r := &domain.DeveloperRegistry{
		Authority:       d.address(),
		TotalDevelopers: d.u64(),
		Bump:            d.u8(),
	}
	return finish(KindDeveloperRegistry, r, d)
}

// EncodeProjectStakes encodes a ProjectStakes account.
func EncodeProjectStakes(r *domain.ProjectStakes) ([]byte, error) {
	e := accountEncoder(KindProjectStakes, ProjectStakesSpace)
	e.address(r.ProjectMint)
	e.u64(r.TotalStakes)
	e.bool(r.IsVerified)
	e.u8(r.Bump)
	return e.padded(KindProjectStakes, ProjectStakesSpace)
}

// DecodeProjectStakes decodes a ProjectStakes account.
func DecodeProjectStakes(data []byte) (*domain.ProjectStakes, error) {
	d, err := accountDecoder(KindProjectStakes, data)
	if err != nil {
		return nil, err
	}
	r := &domain.ProjectStakes{
		ProjectMint: d.address(),
		TotalStakes: d.u64(),
		IsVerified:  d.bool(),
		Bump:        d.u8(),
	}
	return finish(KindProjectStakes, r, d)
}

// EncodeUserStake encodes a UserStake account.
func EncodeUserStake(r *domain.UserStake) ([]byte, error) {
	e := accountEncoder(KindUserStake, UserStakeSpace)
	e.address(r.User)
	e.address(r.ProjectMint)
	e.u64(r.Amount)
	e.i64(r.StakedAt)
	e.optI64(r.UnstakeRequestedAt)
	e.u8(r.Bump)
	return e.padded(KindUserStake, UserStakeSpace)
}

// DecodeUserStake decodes a UserStake account.
func DecodeUserStake(data []byte) (*domain.UserStake, error) {
	d, err := accountDecoder(KindUserStake, data)
	if err != nil {
		return nil, err
	}
	r := &domain.UserStake{
		User:               d.address(),
		ProjectMint:        d.address(),
		Amount:             d.u64(),
		StakedAt:           d.i64(),
		UnstakeRequestedAt: d.optI64(),
		Bump:               d.u8(),
	}
	return finish(KindUserStake, r, d)
}

// DecodeAccount decodes any known account, returning its kind and a pointer
// to the matching domain record.
func DecodeAccount(data []byte) (Kind, any, error) {
	kind, err := KindOf(data)
	if err != nil {
		return "", nil, err
	}
	var v any
	switch kind {
	case KindTokenEntry:
		v, err = DecodeTokenEntry(data)
	case KindRewardPool:
		v, err = DecodeRewardPool(data)
	case KindUserProfile:
		v, err = DecodeUserProfile(data)
	case KindDeveloperRegistry:
		v, err = DecodeDeveloperRegistry(data)
	case KindProjectStakes:
		v, err = DecodeProjectStakes(data)
	case KindUserStake:
		v, err = DecodeUserStake(data)
	case KindTokenAccount:
		v, err = DecodeTokenAccount(data)
	}
	if err != nil {
		return "", nil, err
	}
	return kind, v, nil
}
