package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/replay"
)

// LedgerState is the read side of the ledger that projections are checked against.
type LedgerState interface {
	ListProjects(ctx context.Context) ([]*domain.ProjectStakes, error)
	GetProjectStakes(ctx context.Context, projectMint domain.Address) (*domain.ProjectStakes, error)
	VaultBalance(ctx context.Context, projectMint domain.Address) (uint64, error)
	GetUserStake(ctx context.Context, wallet, projectMint domain.Address) (*ledger.StakeView, error)
	GetRewardPool(ctx context.Context) (*ledger.PoolView, error)
	GetDeveloperRegistry(ctx context.Context) (*domain.DeveloperRegistry, error)
	GetProfile(ctx context.Context, wallet domain.Address) (*domain.UserProfile, error)
}

// VerificationReport contains the result of one replay check.
type VerificationReport struct {
	EventsReplayed int               `json:"eventsReplayed"`
	EventsSkipped  int               `json:"eventsSkipped"`
	RecordsChecked int               `json:"recordsChecked"`
	Divergences    []FieldDivergence `json:"divergences"`
}

// Match reports whether no divergence was found.
func (r *VerificationReport) Match() bool { return len(r.Divergences) == 0 }

// Verifier replays the full event history and checks it against ledger state.
type Verifier struct {
	runner *replay.Runner
	state  LedgerState
}

// NewVerifier creates a verifier.
func NewVerifier(runner *replay.Runner, state LedgerState) *Verifier {
	return &Verifier{runner: runner, state: state}
}

// VerifyAll replays events in [from, to] and compares every record they
// touch. Stored projects with no history are reported as divergent.
func (v *Verifier) VerifyAll(ctx context.Context, from, to int64) (*VerificationReport, error) {
	proj := NewProjection()
	res, err := v.runner.Run(ctx, from, to, proj)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	report := &VerificationReport{EventsReplayed: res.Replayed, EventsSkipped: res.Skipped}
	if err := v.Check(ctx, proj, report); err != nil {
		return nil, err
	}
	return report, nil
}

// VerifyProject replays one project's events and checks its aggregate and vault.
func (v *Verifier) VerifyProject(ctx context.Context, projectMint domain.Address) (*VerificationReport, error) {
	proj := NewProjection()
	res, err := v.runner.RunSubject(ctx, projectMint, proj)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	report := &VerificationReport{EventsReplayed: res.Replayed, EventsSkipped: res.Skipped}
	ps, ok := proj.Projects[projectMint]
	if !ok {
		ps = &ProjectState{}
	}
	if err := v.checkProject(ctx, projectMint, ps, report); err != nil {
		return nil, err
	}
	for key, st := range proj.Stakes {
		if err := v.checkStake(ctx, key, st, report); err != nil {
			return nil, err
		}
	}
	sortDivergences(report.Divergences)
	return report, nil
}

// Check compares a projection against the ledger, appending divergences to report.
func (v *Verifier) Check(ctx context.Context, proj *Projection, report *VerificationReport) error {
	// Projects present in the ledger but absent from the history diverge too.
	stored, err := v.state.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	mints := make(map[domain.Address]struct{}, len(stored)+len(proj.Projects))
	for _, ps := range stored {
		mints[ps.ProjectMint] = struct{}{}
	}
	for mint := range proj.Projects {
		mints[mint] = struct{}{}
	}
	for mint := range mints {
		ps, ok := proj.Projects[mint]
		if !ok {
			ps = &ProjectState{}
		}
		if err := v.checkProject(ctx, mint, ps, report); err != nil {
			return err
		}
	}

	for key, st := range proj.Stakes {
		if err := v.checkStake(ctx, key, st, report); err != nil {
			return err
		}
	}

	for wallet, isDev := range proj.Profiles {
		report.RecordsChecked++
		profile, err := v.state.GetProfile(ctx, wallet)
		if err != nil {
			if errors.Is(err, ledger.ErrNotInitialized) {
				report.add("profile:"+wallet.String(), "exists", true, false)
				continue
			}
			return fmt.Errorf("profile %s: %w", wallet, err)
		}
		report.compare("profile:"+wallet.String(), "isDeveloper", isDev, profile.IsDeveloper)
	}

	if proj.RegistryInitialized {
		report.RecordsChecked++
		reg, err := v.state.GetDeveloperRegistry(ctx)
		switch {
		case errors.Is(err, ledger.ErrNotInitialized):
			report.add("developerRegistry", "exists", true, false)
		case err != nil:
			return fmt.Errorf("developer registry: %w", err)
		default:
			report.compare("developerRegistry", "totalDevelopers", proj.TotalDevelopers, reg.TotalDevelopers)
		}
	}

	if proj.Pool.Initialized {
		report.RecordsChecked++
		view, err := v.state.GetRewardPool(ctx)
		switch {
		case errors.Is(err, ledger.ErrNotInitialized):
			report.add("pool", "exists", true, false)
		case err != nil:
			return fmt.Errorf("reward pool: %w", err)
		default:
			report.compare("pool", "totalDeposited", proj.Pool.TotalDeposited, view.Pool.TotalDeposited)
			report.compare("pool", "totalDistributed", proj.Pool.TotalDistributed, view.Pool.TotalDistributed)
			report.compare("pool", "lastDistributionAt", proj.Pool.LastDistributionAt, view.Pool.LastDistributionAt)
			// Distributions record a split without paying it out.
			report.compare("pool", "balance", proj.Pool.TotalDeposited, view.Balance)
		}
	}

	sortDivergences(report.Divergences)
	return nil
}

func (v *Verifier) checkProject(ctx context.Context, mint domain.Address, ps *ProjectState, report *VerificationReport) error {
	record := "project:" + mint.String()
	report.RecordsChecked++

	stored, err := v.state.GetProjectStakes(ctx, mint)
	if err != nil {
		if errors.Is(err, ledger.ErrNotInitialized) {
			report.add(record, "exists", true, false)
			return nil
		}
		return fmt.Errorf("project %s: %w", mint, err)
	}
	report.compare(record, "totalStakes", ps.TotalStakes, stored.TotalStakes)
	report.compare(record, "isVerified", ps.Verified, stored.IsVerified)

	balance, err := v.state.VaultBalance(ctx, mint)
	if err != nil {
		if errors.Is(err, custody.ErrAccountNotFound) {
			report.add(record, "vaultExists", true, false)
			return nil
		}
		return fmt.Errorf("vault %s: %w", mint, err)
	}
	report.compare(record, "vaultBalance", ps.NetStaked, balance)
	return nil
}

func (v *Verifier) checkStake(ctx context.Context, key StakeKey, st *StakeState, report *VerificationReport) error {
	record := fmt.Sprintf("stake:%s/%s", key.User, key.ProjectMint)
	report.RecordsChecked++

	view, err := v.state.GetUserStake(ctx, key.User, key.ProjectMint)
	if err != nil {
		if errors.Is(err, ledger.ErrNotInitialized) {
			report.add(record, "exists", true, false)
			return nil
		}
		return fmt.Errorf("stake %s: %w", record, err)
	}
	report.compare(record, "amount", st.Amount, view.Stake.Amount)
	report.compare(record, "unstakeRequested", st.UnstakeRequested, view.Stake.UnstakeRequestedAt != nil)
	return nil
}

func (r *VerificationReport) add(record, field string, expected, actual any) {
	r.Divergences = append(r.Divergences, FieldDivergence{Record: record, Field: field, Expected: expected, Actual: actual})
}

func (r *VerificationReport) compare(record, field string, expected, actual any) {
	if expected != actual {
		r.add(record, field, expected, actual)
	}
}

func sortDivergences(ds []FieldDivergence) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Record != ds[j].Record {
			return ds[i].Record < ds[j].Record
		}
		return ds[i].Field < ds[j].Field
	})
}
