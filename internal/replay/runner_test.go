package replay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/storage/memory"
)

var (
	mintA = domain.Address{1}
	alice = domain.Address{10}
)

// collectingEngine collects events for verification.
type collectingEngine struct {
	events []*domain.Event
}

func (e *collectingEngine) OnEvent(_ context.Context, event *domain.Event) error {
	e.events = append(e.events, event)
	return nil
}

func record(t *testing.T, source string, index int, slot, ts int64, p domain.EventPayload) *domain.EventRecord {
	t.Helper()
	evt := &domain.Event{
		ID:        idhash.ComputeEventID(source, index, p.EventName()),
		Source:    source,
		Index:     index,
		Slot:      slot,
		Timestamp: ts,
		Payload:   p,
	}
	rec, err := evt.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return rec
}

func TestRunner_OrdersEventsDeterministically(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()

	// Inserted out of order: same timestamp, different slots and indexes.
	records := []*domain.EventRecord{
		record(t, "sigB", 1, 20, 1000, domain.ProjectVerified{ProjectMint: mintA, TotalStakes: 2}),
		record(t, "sigB", 0, 20, 1000, domain.Staked{User: alice, ProjectMint: mintA, Amount: 5, TotalStakes: 2}),
		record(t, "sigA", 0, 10, 1000, domain.Staked{User: alice, ProjectMint: mintA, Amount: 5, TotalStakes: 1}),
		record(t, "op0", 0, 0, 900, domain.ProfileCreated{Wallet: alice, Username: "alice", Timestamp: 900}),
	}
	for _, rec := range records {
		if err := store.Append(ctx, []*domain.EventRecord{rec}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	engine := &collectingEngine{}
	res, err := NewRunner(store).Run(ctx, 0, 2000, engine)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Replayed != 4 {
		t.Fatalf("expected 4 replayed, got %d", res.Replayed)
	}
	if err := ValidateOrder(engine.events); err != nil {
		t.Fatalf("events out of order: %v", err)
	}

	want := []string{"op0", "sigA", "sigB", "sigB"}
	for i, evt := range engine.events {
		if evt.Source != want[i] {
			t.Errorf("event %d: expected source %s, got %s", i, want[i], evt.Source)
		}
	}
	if engine.events[2].Name() != domain.EventStaked || engine.events[3].Name() != domain.EventProjectVerified {
		t.Errorf("expected Staked before ProjectVerified within sigB")
	}

	staked, ok := engine.events[1].Payload.(domain.Staked)
	if !ok {
		t.Fatalf("expected typed Staked payload, got %T", engine.events[1].Payload)
	}
	if staked.Amount != 5 || staked.User != alice {
		t.Errorf("unexpected payload: %+v", staked)
	}
}

func TestRunner_RunSubject(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	other := domain.Address{2}
	recs := []*domain.EventRecord{
		record(t, "a", 0, 0, 1, domain.Staked{User: alice, ProjectMint: mintA, Amount: 1, TotalStakes: 1}),
		record(t, "b", 0, 0, 2, domain.Staked{User: alice, ProjectMint: other, Amount: 1, TotalStakes: 1}),
	}
	if err := store.Append(ctx, recs); err != nil {
		t.Fatalf("append: %v", err)
	}

	engine := &collectingEngine{}
	res, err := NewRunner(store).RunSubject(ctx, mintA, engine)
	if err != nil {
		t.Fatalf("RunSubject failed: %v", err)
	}
	if res.Replayed != 1 || engine.events[0].Source != "a" {
		t.Errorf("expected only mintA's event, got %d events", res.Replayed)
	}
}

func TestRunner_UndecodableRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	recs := []*domain.EventRecord{
		record(t, "ok", 0, 0, 1, domain.PoolDeposit{Depositor: alice, Amount: 3, TotalDeposited: 3}),
		{ID: "mystery", Name: "Mystery", Subject: alice.String(), Source: "x", Timestamp: 2, Data: json.RawMessage(`{}`)},
	}
	if err := store.Append(ctx, recs); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, err := NewRunner(store).Run(ctx, 0, 10, &collectingEngine{})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}

	engine := &collectingEngine{}
	res, err := NewRunner(store).Lenient().Run(ctx, 0, 10, engine)
	if err != nil {
		t.Fatalf("lenient Run failed: %v", err)
	}
	if res.Replayed != 1 || res.Skipped != 1 {
		t.Errorf("expected 1 replayed and 1 skipped, got %+v", res)
	}
}

func TestRunner_EngineErrorStops(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	recs := []*domain.EventRecord{
		record(t, "a", 0, 0, 1, domain.ProfileUpdated{Wallet: alice, Username: "al1"}),
		record(t, "b", 0, 0, 2, domain.ProfileUpdated{Wallet: alice, Username: "al2"}),
	}
	if err := store.Append(ctx, recs); err != nil {
		t.Fatalf("append: %v", err)
	}

	boom := errors.New("boom")
	calls := 0
	res, err := NewRunner(store).Run(ctx, 0, 10, EngineFunc(func(context.Context, *domain.Event) error {
		calls++
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if calls != 1 || res.Replayed != 0 {
		t.Errorf("expected replay to stop at first error, calls=%d replayed=%d", calls, res.Replayed)
	}
}

func TestDecodeRecord_AllEventNames(t *testing.T) {
	payloads := []domain.EventPayload{
		domain.TokenRegistered{Mint: mintA, Authority: alice, Name: "A"},
		domain.TokenUpdated{},
		domain.RewardPoolInitialized{},
		domain.PoolDeposit{Amount: 1},
		domain.RewardsDistributed{DeveloperShare: 7, UserShare: 3},
		domain.ProfileCreated{Wallet: alice},
		domain.ProfileUpdated{Wallet: alice},
		domain.DeveloperRegistryInitialized{},
		domain.DeveloperRegistered{Wallet: alice, TotalDevelopers: 1},
		domain.Staked{Amount: 1},
		domain.ProjectVerified{ProjectMint: mintA},
		domain.ProjectVerificationRevoked{ProjectMint: mintA},
		domain.UnstakeRequested{CooldownEnds: 5},
		domain.Unstaked{Amount: 1},
	}
	for i, p := range payloads {
		rec := record(t, "src", i, 0, 1, p)
		evt, err := DecodeRecord(rec)
		if err != nil {
			t.Errorf("%s: %v", p.EventName(), err)
			continue
		}
		if evt.Payload != p {
			t.Errorf("%s: expected %+v, got %+v", p.EventName(), p, evt.Payload)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	events := []*domain.Event{
		{Timestamp: 2, Source: "a"},
		{Timestamp: 1, Source: "b"},
	}
	if err := ValidateOrder(events); !errors.Is(err, ErrInvalidOrdering) {
		t.Fatalf("expected ErrInvalidOrdering, got %v", err)
	}
	SortEvents(events)
	if err := ValidateOrder(events); err != nil {
		t.Fatalf("expected sorted events, got %v", err)
	}
}
