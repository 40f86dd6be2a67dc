package domain

import "encoding/json"

// Event names as emitted by the program.
const (
	EventTokenRegistered              = "TokenRegistered"
	EventTokenUpdated                 = "TokenUpdated"
	EventRewardPoolInitialized        = "RewardPoolInitialized"
	EventPoolDeposit                  = "PoolDeposit"
	EventRewardsDistributed           = "RewardsDistributed"
	EventProfileCreated               = "ProfileCreated"
	EventProfileUpdated               = "ProfileUpdated"
	EventDeveloperRegistryInitialized = "DeveloperRegistryInitialized"
	EventDeveloperRegistered          = "DeveloperRegistered"
	EventStaked                       = "Staked"
	EventProjectVerified              = "ProjectVerified"
	EventProjectVerificationRevoked   = "ProjectVerificationRevoked"
	EventUnstakeRequested             = "UnstakeRequested"
	EventUnstaked                     = "Unstaked"
)

// EventPayload is a typed event body.
type EventPayload interface {
	EventName() string
	// EventSubject is the identity the event is primarily about (mint, wallet or authority).
	EventSubject() Address
}

// Event is an emitted state transition.
type Event struct {
	ID        string // deterministic, see idhash.ComputeEventID
	Source    string // operation id for local operations, tx signature for mirrored ones
	Index     int    // position within Source
	Slot      int64  // 0 for local operations
	Timestamp int64  // unix seconds
	Payload   EventPayload
}

// Name returns the payload's event name.
func (e *Event) Name() string {
	if e == nil || e.Payload == nil {
		return ""
	}
	return e.Payload.EventName()
}

// Record converts the event into its storable form.
func (e *Event) Record() (*EventRecord, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return &EventRecord{
		ID:        e.ID,
		Name:      e.Name(),
		Subject:   e.Payload.EventSubject().String(),
		Source:    e.Source,
		Index:     e.Index,
		Slot:      e.Slot,
		Timestamp: e.Timestamp,
		Data:      data,
	}, nil
}

// EventRecord is the persisted form of an Event.
// Corresponds to the ledger_events table.
type EventRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Subject   string          `json:"subject"`
	Source    string          `json:"source"`
	Index     int             `json:"index"`
	Slot      int64           `json:"slot"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type TokenRegistered struct {
	Mint      Address `json:"mint"`
	Authority Address `json:"authority"`
	Name      string  `json:"name"`
	Timestamp int64   `json:"timestamp"`
}

func (TokenRegistered) EventName() string       { return EventTokenRegistered }
func (e TokenRegistered) EventSubject() Address { return e.Mint }

type TokenUpdated struct {
	Mint      Address `json:"mint"`
	Authority Address `json:"authority"`
	Name      string  `json:"name"`
	Timestamp int64   `json:"timestamp"`
}

func (TokenUpdated) EventName() string       { return EventTokenUpdated }
func (e TokenUpdated) EventSubject() Address { return e.Mint }

type RewardPoolInitialized struct {
	Authority Address `json:"authority"`
	Timestamp int64   `json:"timestamp"`
}

func (RewardPoolInitialized) EventName() string       { return EventRewardPoolInitialized }
func (e RewardPoolInitialized) EventSubject() Address { return e.Authority }

type PoolDeposit struct {
	Depositor      Address `json:"depositor"`
	Amount         uint64  `json:"amount"`
	TotalDeposited uint64  `json:"totalDeposited"`
}

func (PoolDeposit) EventName() string       { return EventPoolDeposit }
func (e PoolDeposit) EventSubject() Address { return e.Depositor }

// RewardsDistributed records a computed split. The shares are not paid out by
// the distribution itself.
type RewardsDistributed struct {
	Authority       Address `json:"authority"`
	CycleTimestamp  int64   `json:"cycleTimestamp"`
	DeveloperShare  uint64  `json:"developerShare"`
	UserShare       uint64  `json:"userShare"`
	TotalDevelopers uint64  `json:"totalDevelopers"`
}

func (RewardsDistributed) EventName() string       { return EventRewardsDistributed }
func (e RewardsDistributed) EventSubject() Address { return e.Authority }

type ProfileCreated struct {
	Wallet      Address `json:"wallet"`
	Username    string  `json:"username"`
	IsDeveloper bool    `json:"isDeveloper"`
	Timestamp   int64   `json:"timestamp"`
}

func (ProfileCreated) EventName() string       { return EventProfileCreated }
func (e ProfileCreated) EventSubject() Address { return e.Wallet }

type ProfileUpdated struct {
	Wallet   Address `json:"wallet"`
	Username string  `json:"username"`
}

func (ProfileUpdated) EventName() string       { return EventProfileUpdated }
func (e ProfileUpdated) EventSubject() Address { return e.Wallet }

type DeveloperRegistryInitialized struct {
	Authority Address `json:"authority"`
}

func (DeveloperRegistryInitialized) EventName() string       { return EventDeveloperRegistryInitialized }
func (e DeveloperRegistryInitialized) EventSubject() Address { return e.Authority }

type DeveloperRegistered struct {
	Wallet          Address `json:"wallet"`
	TotalDevelopers uint64  `json:"totalDevelopers"`
}

func (DeveloperRegistered) EventName() string       { return EventDeveloperRegistered }
func (e DeveloperRegistered) EventSubject() Address { return e.Wallet }

type Staked struct {
	User        Address `json:"user"`
	ProjectMint Address `json:"projectMint"`
	Amount      uint64  `json:"amount"`
	TotalStakes uint64  `json:"totalStakes"`
}

func (Staked) EventName() string       { return EventStaked }
func (e Staked) EventSubject() Address { return e.ProjectMint }

type ProjectVerified struct {
	ProjectMint Address `json:"projectMint"`
	TotalStakes uint64  `json:"totalStakes"`
}

func (ProjectVerified) EventName() string       { return EventProjectVerified }
func (e ProjectVerified) EventSubject() Address { return e.ProjectMint }

// ProjectVerificationRevoked has no on-chain counterpart; the deployed
// program drops the flag silently.
type ProjectVerificationRevoked struct {
	ProjectMint Address `json:"projectMint"`
	TotalStakes uint64  `json:"totalStakes"`
}

func (ProjectVerificationRevoked) EventName() string       { return EventProjectVerificationRevoked }
func (e ProjectVerificationRevoked) EventSubject() Address { return e.ProjectMint }

type UnstakeRequested struct {
	User         Address `json:"user"`
	ProjectMint  Address `json:"projectMint"`
	CooldownEnds int64   `json:"cooldownEnds"`
}

func (UnstakeRequested) EventName() string       { return EventUnstakeRequested }
func (e UnstakeRequested) EventSubject() Address { return e.ProjectMint }

type Unstaked struct {
	User        Address `json:"user"`
	ProjectMint Address `json:"projectMint"`
	Amount      uint64  `json:"amount"`
}

func (Unstaked) EventName() string       { return EventUnstaked }
func (e Unstaked) EventSubject() Address { return e.ProjectMint }
