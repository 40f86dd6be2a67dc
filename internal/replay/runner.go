package replay

import (
	"context"
	"fmt"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/storage"
)

// Result summarizes one replay.
type Result struct {
	Replayed int
	// Skipped counts records that could not be decoded; populated only when
	// the runner is lenient.
	Skipped int
}

// Runner loads events from storage and replays them in deterministic order.
type Runner struct {
	events  storage.EventStore
	lenient bool
}

// NewRunner creates a new replay runner.
func NewRunner(events storage.EventStore) *Runner {
	return &Runner{events: events}
}

// Lenient makes the runner skip undecodable records instead of failing.
func (r *Runner) Lenient() *Runner {
	r.lenient = true
	return r
}

// Run loads events within [from, to] and replays them through the engine.
func (r *Runner) Run(ctx context.Context, from, to int64, engine ReplayEngine) (*Result, error) {
	records, err := r.events.GetByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return r.replay(ctx, records, engine)
}

// RunSubject loads every event about subject and replays them through the engine.
func (r *Runner) RunSubject(ctx context.Context, subject domain.Address, engine ReplayEngine) (*Result, error) {
	records, err := r.events.GetBySubject(ctx, subject.String())
	if err != nil {
		return nil, err
	}
	return r.replay(ctx, records, engine)
}

func (r *Runner) replay(ctx context.Context, records []*domain.EventRecord, engine ReplayEngine) (*Result, error) {
	res := &Result{}
	events := make([]*domain.Event, 0, len(records))
	for _, rec := range records {
		evt, err := DecodeRecord(rec)
		if err != nil {
			if r.lenient {
				res.Skipped++
				continue
			}
			return nil, err
		}
		events = append(events, evt)
	}

	SortEvents(events)

	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := engine.OnEvent(ctx, evt); err != nil {
			return res, fmt.Errorf("replay %s event %s: %w", evt.Name(), evt.ID, err)
		}
		res.Replayed++
	}
	return res, nil
}
