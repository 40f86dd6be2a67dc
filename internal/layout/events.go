package layout

import (
	"bytes"
	"fmt"

	"chainproof-ledger/internal/domain"
)

// EventDiscriminator returns sha256("event:<name>")[:8].
func EventDiscriminator(name string) [DiscriminatorLength]byte {
	return discriminator("event:" + name)
}

type eventCodec struct {
	encode func(e *encoder, p domain.EventPayload)
	decode func(d *decoder) domain.EventPayload
}

// Field order follows the program's event structs. RewardsDistributed carries
// no authority on-chain, so a decoded one has a zero Authority.
var eventCodecs = map[string]eventCodec{
	domain.EventTokenRegistered: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.TokenRegistered)
			e.address(v.Mint)
			e.address(v.Authority)
			e.str(v.Name)
			e.i64(v.Timestamp)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.TokenRegistered{Mint: d.address(), Authority: d.address(), Name: d.str(), Timestamp: d.i64()}
		},
	},
	domain.EventTokenUpdated: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.TokenUpdated)
			e.address(v.Mint)
			e.address(v.Authority)
			e.str(v.Name)
			e.i64(v.Timestamp)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.TokenUpdated{Mint: d.address(), Authority: d.address(), Name: d.str(), Timestamp: d.i64()}
		},
	},
	domain.EventRewardPoolInitialized: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.RewardPoolInitialized)
			e.address(v.Authority)
			e.i64(v.Timestamp)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.RewardPoolInitialized{Authority: d.address(), Timestamp: d.i64()}
		},
	},
	domain.EventPoolDeposit: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.PoolDeposit)
			e.address(v.Depositor)
			e.u64(v.Amount)
			e.u64(v.TotalDeposited)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.PoolDeposit{Depositor: d.address(), Amount: d.u64(), TotalDeposited: d.u64()}
		},
	},
	domain.EventRewardsDistributed: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.RewardsDistributed)
			e.i64(v.CycleTimestamp)
			e.u64(v.DeveloperShare)
			e.u64(v.UserShare)
			e.u64(v.TotalDevelopers)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.RewardsDistributed{CycleTimestamp: d.i64(), DeveloperShare: d.u64(), UserShare: d.u64(), TotalDevelopers: d.u64()}
		},
	},
	domain.EventProfileCreated: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.ProfileCreated)
			e.address(v.Wallet)
			e.str(v.Username)
			e.bool(v.IsDeveloper)
			e.i64(v.Timestamp)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.ProfileCreated{Wallet: d.address(), Username: d.str(), IsDeveloper: d.bool(), Timestamp: d.i64()}
		},
	},
	domain.EventProfileUpdated: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.ProfileUpdated)
			e.address(v.Wallet)
			e.str(v.Username)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.ProfileUpdated{Wallet: d.address(), Username: d.str()}
		},
	},
	domain.EventDeveloperRegistryInitialized: {
		encode: func(e *encoder, p domain.EventPayload) {
			e.address(p.(domain.DeveloperRegistryInitialized).Authority)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.DeveloperRegistryInitialized{Authority: d.address()}
		},
	},
	domain.EventDeveloperRegistered: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.DeveloperRegistered)
			e.address(v.Wallet)
			e.u64(v.TotalDevelopers)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.DeveloperRegistered{Wallet: d.address(), TotalDevelopers: d.u64()}
		},
	},
	domain.EventStaked: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.Staked)
			e.address(v.User)
			e.address(v.ProjectMint)
			e.u64(v.Amount)
			e.u64(v.TotalStakes)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.Staked{User: d.address(), ProjectMint: d.address(), Amount: d.u64(), TotalStakes: d.u64()}
		},
	},
	domain.EventProjectVerified: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.ProjectVerified)
			e.address(v.ProjectMint)
			e.u64(v.TotalStakes)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.ProjectVerified{ProjectMint: d.address(), TotalStakes: d.u64()}
		},
	},
	domain.EventProjectVerificationRevoked: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.ProjectVerificationRevoked)
			e.address(v.ProjectMint)
			e.u64(v.TotalStakes)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.ProjectVerificationRevoked{ProjectMint: d.address(), TotalStakes: d.u64()}
		},
	},
	domain.EventUnstakeRequested: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.UnstakeRequested)
			e.address(v.User)
			e.address(v.ProjectMint)
			e.i64(v.CooldownEnds)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.UnstakeRequested{User: d.address(), ProjectMint: d.address(), CooldownEnds: d.i64()}
		},
	},
	domain.EventUnstaked: {
		encode: func(e *encoder, p domain.EventPayload) {
			v := p.(domain.Unstaked)
			e.address(v.User)
			e.address(v.ProjectMint)
			e.u64(v.Amount)
		},
		decode: func(d *decoder) domain.EventPayload {
			return domain.Unstaked{User: d.address(), ProjectMint: d.address(), Amount: d.u64()}
		},
	},
}

// EncodeEvent encodes an event the way the program logs it in "Program data:" lines.
func EncodeEvent(p domain.EventPayload) ([]byte, error) {
	name := p.EventName()
	codec, ok := eventCodecs[name]
	if !ok {
		return nil, fmt.Errorf("layout: no codec for event %s", name)
	}
	e := newEncoder(128)
	disc := EventDiscriminator(name)
	e.raw(disc[:])
	codec.encode(e, p)
	return e.buf, nil
}

// DecodeEvent decodes an event by its discriminator. Unknown discriminators
// return ErrUnknownDiscriminator so callers can skip foreign events.
func DecodeEvent(data []byte) (domain.EventPayload, error) {
	if len(data) < DiscriminatorLength {
		return nil, ErrShortBuffer
	}
	for name, codec := range eventCodecs {
		disc := EventDiscriminator(name)
		if !bytes.Equal(data[:DiscriminatorLength], disc[:]) {
			continue
		}
		d := newDecoder(data[DiscriminatorLength:])
		p := codec.decode(d)
		if d.err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, d.err)
		}
		return p, nil
	}
	return nil, ErrUnknownDiscriminator
}
