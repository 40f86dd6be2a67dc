package domain

// TokenEntry is the registry record for one token mint.
// Mutable only by its registering authority.
type TokenEntry struct {
	Authority Address `json:"authority"`
	Mint      Address `json:"mint"`
	Name      string  `json:"name"`      // ≤50 bytes
	Symbol    string  `json:"symbol"`    // ≤10 bytes
	IpfsHash  string  `json:"ipfsHash"`  // ≤100 bytes
	UpdatedAt int64   `json:"updatedAt"` // unix seconds of the last register/update
	Bump      uint8   `json:"bump"`
}

// RewardPool is the singleton deposit pool.
// TotalDeposited and TotalDistributed only ever grow.
type RewardPool struct {
	Authority                   Address `json:"authority"`
	TotalDeposited              uint64  `json:"totalDeposited"`
	TotalDistributed            uint64  `json:"totalDistributed"`
	LastDistributionAt          int64   `json:"lastDistributionAt"`
	DistributionIntervalSeconds int64   `json:"distributionIntervalSeconds"`
	DeveloperShareBps           uint16  `json:"developerShareBps"`
	UserShareBps                uint16  `json:"userShareBps"`
	Bump                        uint8   `json:"bump"`
}

// NextDistributionAt returns the earliest time Distribute may succeed.
func (p *RewardPool) NextDistributionAt() int64 {
	return p.LastDistributionAt + p.DistributionIntervalSeconds
}

// UserProfile is the per-wallet profile. IsDeveloper is fixed at creation.
type UserProfile struct {
	Wallet       Address `json:"wallet"`
	Username     string  `json:"username"`               // 3..32 bytes
	ReferralCode *string `json:"referralCode,omitempty"` // nil when no code was supplied
	IsDeveloper  bool    `json:"isDeveloper"`
	TotalStakes  uint64  `json:"totalStakes"`
	RewardPoints uint64  `json:"rewardPoints"`
	CreatedAt    int64   `json:"createdAt"`
	Bump         uint8   `json:"bump"`
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.ReferralCode != nil {
		code := *p.ReferralCode
		c.ReferralCode = &code
	}
	return &c
}

// DeveloperRegistry is the singleton developer counter.
type DeveloperRegistry struct {
	Authority       Address `json:"authority"`
	TotalDevelopers uint64  `json:"totalDevelopers"`
	Bump            uint8   `json:"bump"`
}

// ProjectStakes aggregates stakes for one project mint.
// TotalStakes counts staking actions, not token volume.
type ProjectStakes struct {
	ProjectMint Address `json:"projectMint"`
	TotalStakes uint64  `json:"totalStakes"`
	IsVerified  bool    `json:"isVerified"`
	Bump        uint8   `json:"bump"`
}

// UserStake is the stake of one wallet on one project.
type UserStake struct {
	User               Address `json:"user"`
	ProjectMint        Address `json:"projectMint"`
	Amount             uint64  `json:"amount"`
	StakedAt           int64   `json:"stakedAt"`
	UnstakeRequestedAt *int64  `json:"unstakeRequestedAt,omitempty"` // non-nil while the cooldown runs
	Bump               uint8   `json:"bump"`
}

// Clone returns a deep copy of the stake.
func (s *UserStake) Clone() *UserStake {
	if s == nil {
		return nil
	}
	c := *s
	if s.UnstakeRequestedAt != nil {
		at := *s.UnstakeRequestedAt
		c.UnstakeRequestedAt = &at
	}
	return &c
}

// StakePhase is the lifecycle phase of a UserStake.
type StakePhase string

const (
	StakePhaseUnstaked        StakePhase = "UNSTAKED"
	StakePhaseStaked          StakePhase = "STAKED"
	StakePhaseCooldownPending StakePhase = "COOLDOWN_PENDING"
)

// Phase derives the lifecycle phase from amount and cooldown timer.
func (s *UserStake) Phase() StakePhase {
	switch {
	case s == nil || s.Amount == 0:
		return StakePhaseUnstaked
	case s.UnstakeRequestedAt != nil:
		return StakePhaseCooldownPending
	default:
		return StakePhaseStaked
	}
}

// UnlockAt returns when a pending unstake may complete. ok is false when no
// unstake has been requested.
func (s *UserStake) UnlockAt(cooldownSeconds int64) (at int64, ok bool) {
	if s == nil || s.UnstakeRequestedAt == nil {
		return 0, false
	}
	return *s.UnstakeRequestedAt + cooldownSeconds, true
}

// TokenAccount is an SPL token account: a custodial balance of one mint
// controlled by Owner.
type TokenAccount struct {
	Mint   Address `json:"mint"`
	Owner  Address `json:"owner"`
	Amount uint64  `json:"amount"`
}
