package reporting

import "time"

// Report is a ledger activity report over one time window.
type Report struct {
	GeneratedAt time.Time
	// Window bounds, unix seconds, inclusive.
	From int64
	To   int64

	Summary Summary

	// Per-day event counts (sorted by day, then name)
	DailyCounts []DailyCountRow

	// Current project state (sorted by total stakes descending, then mint)
	Projects []ProjectRow

	// Nil when the reward pool is not initialized or no ledger is attached.
	Pool *PoolRow
}

// Summary aggregates the events in the window.
type Summary struct {
	TotalEvents          int
	Stakes               int
	StakedAmount         uint64
	Unstakes             int
	UnstakedAmount       uint64
	Deposits             int
	DepositedAmount      uint64
	Distributions        int
	ProfilesCreated      int
	DevelopersRegistered int
	ProjectsVerified     int
	VerificationsRevoked int
	UndecodableEvents    int
}

// DailyCountRow is the number of events of one name on one UTC day.
type DailyCountRow struct {
	Day    string // YYYY-MM-DD
	Name   string
	Events uint64
}

// ProjectRow is one project's current stake state plus window activity.
type ProjectRow struct {
	ProjectMint  string
	TotalStakes  uint64
	Verified     bool
	VaultBalance uint64
	// Distinct wallets that staked in the window.
	Stakers int
}

// PoolRow is the current reward pool state.
type PoolRow struct {
	Address            string
	Balance            uint64
	TotalDeposited     uint64
	TotalDistributed   uint64
	LastDistributionAt int64
	NextDistributionAt int64
}
