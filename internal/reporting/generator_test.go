package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/storage/memory"
)

var (
	projectA = domain.Address{1}
	projectB = domain.Address{2}
	alice    = domain.Address{10}
	bob      = domain.Address{11}
	operator = domain.Address{20}

	day1 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Unix()
	day2 = time.Date(2025, 3, 2, 18, 30, 0, 0, time.UTC).Unix()
	day3 = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC).Unix()
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
}

func setupEvents(t *testing.T) *memory.EventStore {
	t.Helper()
	store := memory.NewEventStore()

	add := func(source string, ts int64, payloads ...domain.EventPayload) {
		for i, p := range payloads {
			evt := &domain.Event{
				ID:        idhash.ComputeEventID(source, i, p.EventName()),
				Source:    source,
				Index:     i,
				Timestamp: ts,
				Payload:   p,
			}
			rec, err := evt.Record()
			if err != nil {
				t.Fatalf("record: %v", err)
			}
			if err := store.Append(context.Background(), []*domain.EventRecord{rec}); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}

	add("op1", day1, domain.ProfileCreated{Wallet: alice, Username: "alice", Timestamp: day1})
	add("op2", day1, domain.PoolDeposit{Depositor: operator, Amount: 500, TotalDeposited: 500})
	add("op3", day2,
		domain.Staked{User: alice, ProjectMint: projectA, Amount: 100, TotalStakes: 1},
		domain.ProjectVerified{ProjectMint: projectA, TotalStakes: 1},
	)
	add("op4", day2, domain.Staked{User: bob, ProjectMint: projectA, Amount: 50, TotalStakes: 2})
	add("op5", day2, domain.Staked{User: alice, ProjectMint: projectA, Amount: 25, TotalStakes: 2})
	add("op6", day3, domain.Unstaked{User: bob, ProjectMint: projectA, Amount: 50})
	add("op7", day3, domain.RewardsDistributed{Authority: operator, CycleTimestamp: day3, DeveloperShare: 350, UserShare: 150})

	// outside the window below
	add("op8", day3+86400, domain.Staked{User: bob, ProjectMint: projectB, Amount: 1, TotalStakes: 1})
	return store
}

type fakeLedger struct {
	projects []*domain.ProjectStakes
	balances map[domain.Address]uint64
	pool     *ledger.PoolView
	poolErr  error
}

func (f *fakeLedger) ListProjects(context.Context) ([]*domain.ProjectStakes, error) {
	return f.projects, nil
}

func (f *fakeLedger) VaultBalance(_ context.Context, mint domain.Address) (uint64, error) {
	return f.balances[mint], nil
}

func (f *fakeLedger) GetRewardPool(context.Context) (*ledger.PoolView, error) {
	return f.pool, f.poolErr
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		projects: []*domain.ProjectStakes{
			{ProjectMint: projectB, TotalStakes: 1},
			{ProjectMint: projectA, TotalStakes: 2, IsVerified: true},
		},
		balances: map[domain.Address]uint64{projectA: 125, projectB: 1},
		pool: &ledger.PoolView{
			Address:            domain.Address{30},
			Balance:            500,
			Pool:               &domain.RewardPool{Authority: operator, TotalDeposited: 500, LastDistributionAt: day3},
			NextDistributionAt: day3 + 604800,
		},
	}
}

func TestGenerate_Summary(t *testing.T) {
	g := NewGenerator(setupEvents(t), newFakeLedger()).WithClock(fixedClock)

	report, err := g.Generate(context.Background(), day1, day3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	s := report.Summary
	if s.TotalEvents != 8 {
		t.Errorf("expected 8 events, got %d", s.TotalEvents)
	}
	if s.Stakes != 3 || s.StakedAmount != 175 {
		t.Errorf("expected 3 stakes totalling 175, got %d / %d", s.Stakes, s.StakedAmount)
	}
	if s.Unstakes != 1 || s.UnstakedAmount != 50 {
		t.Errorf("expected 1 unstake of 50, got %d / %d", s.Unstakes, s.UnstakedAmount)
	}
	if s.Deposits != 1 || s.DepositedAmount != 500 {
		t.Errorf("expected 1 deposit of 500, got %d / %d", s.Deposits, s.DepositedAmount)
	}
	if s.Distributions != 1 || s.ProfilesCreated != 1 || s.ProjectsVerified != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if !report.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("expected fixed clock, got %v", report.GeneratedAt)
	}
}

func TestGenerate_Projects(t *testing.T) {
	g := NewGenerator(setupEvents(t), newFakeLedger()).WithClock(fixedClock)

	report, err := g.Generate(context.Background(), day1, day3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(report.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(report.Projects))
	}
	first := report.Projects[0]
	if first.ProjectMint != projectA.String() {
		t.Errorf("expected project A first, got %s", first.ProjectMint)
	}
	if first.Stakers != 2 || first.VaultBalance != 125 || !first.Verified {
		t.Errorf("unexpected project A row: %+v", first)
	}
	// project B's only stake is outside the window
	if report.Projects[1].Stakers != 0 {
		t.Errorf("expected no window stakers for project B, got %d", report.Projects[1].Stakers)
	}

	if report.Pool == nil {
		t.Fatal("expected pool row")
	}
	if report.Pool.Balance != 500 || report.Pool.NextDistributionAt != day3+604800 {
		t.Errorf("unexpected pool row: %+v", report.Pool)
	}
}

func TestGenerate_DailyCounts(t *testing.T) {
	g := NewGenerator(setupEvents(t), nil).WithClock(fixedClock)

	report, err := g.Generate(context.Background(), day1, day3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []DailyCountRow{
		{Day: "2025-03-01", Name: domain.EventPoolDeposit, Events: 1},
		{Day: "2025-03-01", Name: domain.EventProfileCreated, Events: 1},
		{Day: "2025-03-02", Name: domain.EventProjectVerified, Events: 1},
		{Day: "2025-03-02", Name: domain.EventStaked, Events: 3},
		{Day: "2025-03-03", Name: domain.EventRewardsDistributed, Events: 1},
		{Day: "2025-03-03", Name: domain.EventUnstaked, Events: 1},
	}
	if len(report.DailyCounts) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(report.DailyCounts), report.DailyCounts)
	}
	for i := range want {
		if report.DailyCounts[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], report.DailyCounts[i])
		}
	}
	if report.Projects != nil || report.Pool != nil {
		t.Error("expected no ledger sections without a ledger reader")
	}
}

func TestGenerate_DailyCountSource(t *testing.T) {
	src := func(context.Context) ([]DailyCountRow, error) {
		return []DailyCountRow{
			{Day: "2025-03-05", Name: domain.EventStaked, Events: 9},
			{Day: "2025-02-28", Name: domain.EventStaked, Events: 4},
			{Day: "2025-03-02", Name: domain.EventStaked, Events: 7},
		}, nil
	}
	g := NewGenerator(setupEvents(t), nil).WithDailyCounts(src)

	report, err := g.Generate(context.Background(), day1, day3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.DailyCounts) != 1 || report.DailyCounts[0].Events != 7 {
		t.Errorf("expected only the in-window rollup row, got %+v", report.DailyCounts)
	}

	failing := NewGenerator(setupEvents(t), nil).WithDailyCounts(func(context.Context) ([]DailyCountRow, error) {
		return nil, errors.New("clickhouse down")
	})
	if _, err := failing.Generate(context.Background(), day1, day3); err == nil {
		t.Error("expected rollup error to propagate")
	}
}

func TestGenerate_PoolNotInitialized(t *testing.T) {
	l := newFakeLedger()
	l.pool, l.poolErr = nil, ledger.ErrNotInitialized

	report, err := NewGenerator(memory.NewEventStore(), l).Generate(context.Background(), 0, day3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Pool != nil {
		t.Errorf("expected nil pool, got %+v", report.Pool)
	}
}

func TestGenerate_InvalidWindow(t *testing.T) {
	if _, err := NewGenerator(memory.NewEventStore(), nil).Generate(context.Background(), day3, day1); err == nil {
		t.Error("expected error for inverted window")
	}
}

func TestGenerate_UndecodableEvent(t *testing.T) {
	store := memory.NewEventStore()
	err := store.Append(context.Background(), []*domain.EventRecord{{
		ID:        "bad",
		Name:      domain.EventStaked,
		Subject:   projectA.String(),
		Source:    "op",
		Timestamp: day1,
		Data:      json.RawMessage(`{"amount":"lots"}`),
	}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	report, err := NewGenerator(store, nil).Generate(context.Background(), day1, day1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Summary.UndecodableEvents != 1 || report.Summary.Stakes != 0 {
		t.Errorf("unexpected summary: %+v", report.Summary)
	}
}

func TestRenderMarkdown_Format(t *testing.T) {
	report, err := NewGenerator(setupEvents(t), newFakeLedger()).WithClock(fixedClock).Generate(context.Background(), day1, day3)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, section := range []string{
		"# Ledger Activity Report",
		"Generated: 2025-03-04T00:00:00Z",
		"## Summary",
		"| Stakes | 3 | 175 |",
		"## Reward Pool",
		"## Projects",
		"## Daily Event Counts",
		"| 2025-03-02 | Staked | 3 |",
	} {
		if !strings.Contains(md, section) {
			t.Errorf("markdown missing %q", section)
		}
	}

	// Deterministic for a fixed clock
	again := RenderMarkdown(report)
	if md != again {
		t.Error("expected identical output on re-render")
	}
}

func TestRenderCSV(t *testing.T) {
	daily := RenderDailyCSV([]DailyCountRow{
		{Day: "2025-03-01", Name: domain.EventStaked, Events: 2},
		{Day: "2025-03-02", Name: domain.EventUnstaked, Events: 1},
	})
	lines := strings.Split(strings.TrimSpace(daily), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "day,event,count" || lines[1] != "2025-03-01,Staked,2" {
		t.Errorf("unexpected csv: %q", daily)
	}

	projects := RenderProjectsCSV([]ProjectRow{{ProjectMint: "mintA", TotalStakes: 2, Verified: true, VaultBalance: 125, Stakers: 2}})
	if !strings.Contains(projects, "mintA,2,true,125,2\n") {
		t.Errorf("unexpected projects csv: %q", projects)
	}
}
