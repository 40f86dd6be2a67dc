package ledger

import (
	"context"
	"errors"
	"fmt"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/layout"
	"chainproof-ledger/internal/storage"
)

// codec binds a record type to its layout kind.
type codec[T any] struct {
	kind   layout.Kind
	encode func(*T) ([]byte, error)
	decode func([]byte) (*T, error)
}

var (
	tokenEntries = codec[domain.TokenEntry]{layout.KindTokenEntry, layout.EncodeTokenEntry, layout.DecodeTokenEntry}
	rewardPools  = codec[domain.RewardPool]{layout.KindRewardPool, layout.EncodeRewardPool, layout.DecodeRewardPool}
	profiles     = codec[domain.UserProfile]{layout.KindUserProfile, layout.EncodeUserProfile, layout.DecodeUserProfile}
	registries   = codec[domain.DeveloperRegistry]{layout.KindDeveloperRegistry, layout.EncodeDeveloperRegistry, layout.DecodeDeveloperRegistry}
	projects     = codec[domain.ProjectStakes]{layout.KindProjectStakes, layout.EncodeProjectStakes, layout.DecodeProjectStakes}
	userStakes   = codec[domain.UserStake]{layout.KindUserStake, layout.EncodeUserStake, layout.DecodeUserStake}
)

// find reads a record. ok is false when nothing is stored at addr.
func find[T any](ctx context.Context, r custody.Reader, c codec[T], addr domain.Address) (v *T, ok bool, err error) {
	a, err := r.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s %s: %w", c.kind, addr, err)
	}
	if a.Kind != string(c.kind) {
		return nil, false, fmt.Errorf("%w: %s holds %s, want %s", layout.ErrDiscriminatorMismatch, addr, a.Kind, c.kind)
	}
	v, err = c.decode(a.Data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s %s: %w", c.kind, addr, err)
	}
	return v, true, nil
}

// load reads a record that must exist.
func load[T any](ctx context.Context, r custody.Reader, c codec[T], addr domain.Address) (*T, error) {
	v, ok, err := find(ctx, r, c, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized.withDetail("%s %s", c.kind, addr)
	}
	return v, nil
}

// create stores a new record. It fails with ErrAlreadyInitialized when addr is taken.
func create[T any](u *unit, c codec[T], owner, addr domain.Address, v *T) error {
	a, err := encodeAccount(u, c, owner, addr, v)
	if err != nil {
		return err
	}
	if err := u.tx.Create(u.ctx, a); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrAlreadyInitialized.withDetail("%s %s", c.kind, addr)
		}
		return fmt.Errorf("create %s %s: %w", c.kind, addr, err)
	}
	return nil
}

// save overwrites an existing record.
func save[T any](u *unit, c codec[T], owner, addr domain.Address, v *T) error {
	a, err := encodeAccount(u, c, owner, addr, v)
	if err != nil {
		return err
	}
	if err := u.tx.Put(u.ctx, a); err != nil {
		return fmt.Errorf("put %s %s: %w", c.kind, addr, err)
	}
	return nil
}

func encodeAccount[T any](u *unit, c codec[T], owner, addr domain.Address, v *T) (*storage.Account, error) {
	data, err := c.encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", c.kind, addr, err)
	}
	return &storage.Account{
		Address:   addr,
		Owner:     owner,
		Kind:      string(c.kind),
		Data:      data,
		UpdatedAt: u.now,
	}, nil
}
