// Package verification replays the stored event history into an expected
// ledger state and compares it against the live records.
package verification

import (
	"context"
	"fmt"

	"chainproof-ledger/internal/domain"
)

// FieldDivergence represents a mismatch between replayed and stored values.
type FieldDivergence struct {
	Record   string `json:"record"` // e.g. "project:<mint>", "pool"
	Field    string `json:"field"`
	Expected any    `json:"expected"` // replayed value
	Actual   any    `json:"actual"`   // stored value
}

func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s.%s: replayed %v, stored %v", d.Record, d.Field, d.Expected, d.Actual)
}

// ProjectState is a project's stake aggregate as implied by its events.
type ProjectState struct {
	TotalStakes uint64
	Verified    bool
	// NetStaked is staked minus unstaked volume; it should equal the vault balance.
	NetStaked uint64
}

// StakeKey identifies one user stake.
type StakeKey struct {
	User        domain.Address
	ProjectMint domain.Address
}

// StakeState is a user stake as implied by its events.
type StakeState struct {
	Amount           uint64
	UnstakeRequested bool
}

// PoolState is the reward pool as implied by its events.
type PoolState struct {
	Initialized        bool
	TotalDeposited     uint64
	TotalDistributed   uint64
	LastDistributionAt int64
	Distributions      int
}

// Projection folds ledger events into expected state. It implements
// replay.ReplayEngine and expects events in replay order.
type Projection struct {
	Projects            map[domain.Address]*ProjectState
	Stakes              map[StakeKey]*StakeState
	Pool                PoolState
	RegistryInitialized bool
	TotalDevelopers     uint64
	// Profiles maps each wallet with a profile to its developer flag.
	Profiles map[domain.Address]bool
	Events   int

	// revokedBy holds the source of a project's latest revocation, whose
	// event already carries the decremented total.
	revokedBy map[domain.Address]string
}

// NewProjection returns an empty projection.
func NewProjection() *Projection {
	return &Projection{
		Projects:  make(map[domain.Address]*ProjectState),
		Stakes:    make(map[StakeKey]*StakeState),
		Profiles:  make(map[domain.Address]bool),
		revokedBy: make(map[domain.Address]string),
	}
}

func (p *Projection) project(mint domain.Address) *ProjectState {
	ps, ok := p.Projects[mint]
	if !ok {
		ps = &ProjectState{}
		p.Projects[mint] = ps
	}
	return ps
}

func (p *Projection) stake(user, mint domain.Address) *StakeState {
	k := StakeKey{User: user, ProjectMint: mint}
	s, ok := p.Stakes[k]
	if !ok {
		s = &StakeState{}
		p.Stakes[k] = s
	}
	return s
}

func subFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// OnEvent applies one event.
func (p *Projection) OnEvent(_ context.Context, evt *domain.Event) error {
	p.Events++
	switch e := evt.Payload.(type) {
	case domain.Staked:
		ps := p.project(e.ProjectMint)
		ps.TotalStakes = e.TotalStakes
		ps.NetStaked += e.Amount
		s := p.stake(e.User, e.ProjectMint)
		s.Amount += e.Amount
		s.UnstakeRequested = false
	case domain.ProjectVerified:
		ps := p.project(e.ProjectMint)
		ps.Verified = true
		ps.TotalStakes = e.TotalStakes
	case domain.ProjectVerificationRevoked:
		ps := p.project(e.ProjectMint)
		ps.Verified = false
		ps.TotalStakes = e.TotalStakes
		p.revokedBy[e.ProjectMint] = evt.Source
	case domain.UnstakeRequested:
		p.stake(e.User, e.ProjectMint).UnstakeRequested = true
	case domain.Unstaked:
		ps := p.project(e.ProjectMint)
		if p.revokedBy[e.ProjectMint] != evt.Source {
			ps.TotalStakes = subFloor(ps.TotalStakes, 1)
		}
		ps.NetStaked = subFloor(ps.NetStaked, e.Amount)
		s := p.stake(e.User, e.ProjectMint)
		s.Amount = 0
		s.UnstakeRequested = false
	case domain.RewardPoolInitialized:
		p.Pool.Initialized = true
		p.Pool.LastDistributionAt = e.Timestamp
	case domain.PoolDeposit:
		p.Pool.TotalDeposited = e.TotalDeposited
	case domain.RewardsDistributed:
		p.Pool.TotalDistributed += e.DeveloperShare + e.UserShare
		p.Pool.LastDistributionAt = e.CycleTimestamp
		p.Pool.Distributions++
	case domain.DeveloperRegistryInitialized:
		p.RegistryInitialized = true
	case domain.DeveloperRegistered:
		p.TotalDevelopers = e.TotalDevelopers
	case domain.ProfileCreated:
		p.Profiles[e.Wallet] = e.IsDeveloper
	}
	return nil
}
