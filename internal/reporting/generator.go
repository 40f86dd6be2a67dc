package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/storage"
)

// LedgerReader is the read side of the ledger engine used for current state.
type LedgerReader interface {
	ListProjects(ctx context.Context) ([]*domain.ProjectStakes, error)
	VaultBalance(ctx context.Context, projectMint domain.Address) (uint64, error)
	GetRewardPool(ctx context.Context) (*ledger.PoolView, error)
}

// DailyCountSource returns precomputed per-day counts, e.g. from a rollup table.
type DailyCountSource func(ctx context.Context) ([]DailyCountRow, error)

// Generator produces reports from stored events and ledger state.
type Generator struct {
	events storage.EventStore
	ledger LedgerReader
	daily  DailyCountSource
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. reader may be nil, in which
// case the project and pool sections are left empty.
func NewGenerator(events storage.EventStore, reader LedgerReader) *Generator {
	return &Generator{
		events: events,
		ledger: reader,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithDailyCounts replaces the per-day counts computed from the window's
// events with src. Rows outside the window are dropped.
func (g *Generator) WithDailyCounts(src DailyCountSource) *Generator {
	g.daily = src
	return g
}

// Generate produces a report for events with from <= timestamp <= to.
func (g *Generator) Generate(ctx context.Context, from, to int64) (*Report, error) {
	if to < from {
		return nil, fmt.Errorf("report window: to %d before from %d", to, from)
	}

	records, err := g.events.GetByTimeRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	summary, stakers := summarize(records)

	daily := countDaily(records)
	if g.daily != nil {
		rows, err := g.daily(ctx)
		if err != nil {
			return nil, fmt.Errorf("daily counts: %w", err)
		}
		daily = clipDaily(rows, from, to)
	}

	report := &Report{
		GeneratedAt: g.now(),
		From:        from,
		To:          to,
		Summary:     summary,
		DailyCounts: daily,
	}

	if g.ledger == nil {
		return report, nil
	}
	if report.Projects, err = g.generateProjects(ctx, stakers); err != nil {
		return nil, err
	}
	if report.Pool, err = g.generatePool(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// summarize tallies the window and collects distinct stakers per project.
func summarize(records []*domain.EventRecord) (Summary, map[domain.Address]map[domain.Address]struct{}) {
	var s Summary
	stakers := make(map[domain.Address]map[domain.Address]struct{})
	s.TotalEvents = len(records)

	for _, rec := range records {
		switch rec.Name {
		case domain.EventStaked:
			var e domain.Staked
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				s.UndecodableEvents++
				continue
			}
			s.Stakes++
			s.StakedAmount += e.Amount
			if stakers[e.ProjectMint] == nil {
				stakers[e.ProjectMint] = make(map[domain.Address]struct{})
			}
			stakers[e.ProjectMint][e.User] = struct{}{}
		case domain.EventUnstaked:
			var e domain.Unstaked
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				s.UndecodableEvents++
				continue
			}
			s.Unstakes++
			s.UnstakedAmount += e.Amount
		case domain.EventPoolDeposit:
			var e domain.PoolDeposit
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				s.UndecodableEvents++
				continue
			}
			s.Deposits++
			s.DepositedAmount += e.Amount
		case domain.EventRewardsDistributed:
			s.Distributions++
		case domain.EventProfileCreated:
			s.ProfilesCreated++
		case domain.EventDeveloperRegistered:
			s.DevelopersRegistered++
		case domain.EventProjectVerified:
			s.ProjectsVerified++
		case domain.EventProjectVerificationRevoked:
			s.VerificationsRevoked++
		}
	}
	return s, stakers
}

func dayOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.DateOnly)
}

func countDaily(records []*domain.EventRecord) []DailyCountRow {
	type key struct{ day, name string }
	counts := make(map[key]uint64)
	for _, rec := range records {
		counts[key{dayOf(rec.Timestamp), rec.Name}]++
	}
	rows := make([]DailyCountRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, DailyCountRow{Day: k.day, Name: k.name, Events: n})
	}
	sortDaily(rows)
	return rows
}

func clipDaily(rows []DailyCountRow, from, to int64) []DailyCountRow {
	first, last := dayOf(from), dayOf(to)
	out := make([]DailyCountRow, 0, len(rows))
	for _, r := range rows {
		if r.Day >= first && r.Day <= last {
			out = append(out, r)
		}
	}
	sortDaily(out)
	return out
}

func sortDaily(rows []DailyCountRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Day != rows[j].Day {
			return rows[i].Day < rows[j].Day
		}
		return rows[i].Name < rows[j].Name
	})
}

func (g *Generator) generateProjects(ctx context.Context, stakers map[domain.Address]map[domain.Address]struct{}) ([]ProjectRow, error) {
	projects, err := g.ledger.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	rows := make([]ProjectRow, 0, len(projects))
	for _, p := range projects {
		balance, err := g.ledger.VaultBalance(ctx, p.ProjectMint)
		if err != nil && !errors.Is(err, custody.ErrAccountNotFound) {
			return nil, fmt.Errorf("vault balance %s: %w", p.ProjectMint, err)
		}
		rows = append(rows, ProjectRow{
			ProjectMint:  p.ProjectMint.String(),
			TotalStakes:  p.TotalStakes,
			Verified:     p.IsVerified,
			VaultBalance: balance,
			Stakers:      len(stakers[p.ProjectMint]),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalStakes != rows[j].TotalStakes {
			return rows[i].TotalStakes > rows[j].TotalStakes
		}
		return rows[i].ProjectMint < rows[j].ProjectMint
	})
	return rows, nil
}

func (g *Generator) generatePool(ctx context.Context) (*PoolRow, error) {
	view, err := g.ledger.GetRewardPool(ctx)
	if err != nil {
		if errors.Is(err, ledger.ErrNotInitialized) {
			return nil, nil
		}
		return nil, fmt.Errorf("reward pool: %w", err)
	}
	return &PoolRow{
		Address:            view.Address.String(),
		Balance:            view.Balance,
		TotalDeposited:     view.Pool.TotalDeposited,
		TotalDistributed:   view.Pool.TotalDistributed,
		LastDistributionAt: view.Pool.LastDistributionAt,
		NextDistributionAt: view.NextDistributionAt,
	}, nil
}
