// Package replay decodes stored ledger events and feeds them, in
// deterministic order, through a ReplayEngine.
package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"chainproof-ledger/internal/domain"
)

// ReplayEngine processes events in deterministic order.
type ReplayEngine interface {
	// OnEvent is called for each event in order.
	// Events are guaranteed to be ordered by (timestamp, slot, source, index).
	OnEvent(ctx context.Context, event *domain.Event) error
}

// EngineFunc adapts a function to ReplayEngine.
type EngineFunc func(ctx context.Context, event *domain.Event) error

// OnEvent implements ReplayEngine.
func (f EngineFunc) OnEvent(ctx context.Context, event *domain.Event) error { return f(ctx, event) }

func decodeAs[T domain.EventPayload](data json.RawMessage) (domain.EventPayload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeRecord rebuilds the typed event from its stored form.
func DecodeRecord(rec *domain.EventRecord) (*domain.Event, error) {
	var (
		p   domain.EventPayload
		err error
	)
	switch rec.Name {
	case domain.EventTokenRegistered:
		p, err = decodeAs[domain.TokenRegistered](rec.Data)
	case domain.EventTokenUpdated:
		p, err = decodeAs[domain.TokenUpdated](rec.Data)
	case domain.EventRewardPoolInitialized:
		p, err = decodeAs[domain.RewardPoolInitialized](rec.Data)
	case domain.EventPoolDeposit:
		p, err = decodeAs[domain.PoolDeposit](rec.Data)
	case domain.EventRewardsDistributed:
		p, err = decodeAs[domain.RewardsDistributed](rec.Data)
	case domain.EventProfileCreated:
		p, err = decodeAs[domain.ProfileCreated](rec.Data)
	case domain.EventProfileUpdated:
		p, err = decodeAs[domain.ProfileUpdated](rec.Data)
	case domain.EventDeveloperRegistryInitialized:
		p, err = decodeAs[domain.DeveloperRegistryInitialized](rec.Data)
	case domain.EventDeveloperRegistered:
		p, err = decodeAs[domain.DeveloperRegistered](rec.Data)
	case domain.EventStaked:
		p, err = decodeAs[domain.Staked](rec.Data)
	case domain.EventProjectVerified:
		p, err = decodeAs[domain.ProjectVerified](rec.Data)
	case domain.EventProjectVerificationRevoked:
		p, err = decodeAs[domain.ProjectVerificationRevoked](rec.Data)
	case domain.EventUnstakeRequested:
		p, err = decodeAs[domain.UnstakeRequested](rec.Data)
	case domain.EventUnstaked:
		p, err = decodeAs[domain.Unstaked](rec.Data)
	default:
		return nil, fmt.Errorf("%w: %q (event %s)", ErrUnknownEvent, rec.Name, rec.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event %s: %w", rec.Name, rec.ID, err)
	}
	return &domain.Event{
		ID:        rec.ID,
		Source:    rec.Source,
		Index:     rec.Index,
		Slot:      rec.Slot,
		Timestamp: rec.Timestamp,
		Payload:   p,
	}, nil
}
