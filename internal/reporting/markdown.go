package reporting

import (
	"fmt"
	"strings"
	"time"
)

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Ledger Activity Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: %s to %s\n\n", formatUnix(r.From), formatUnix(r.To)))

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Count | Amount |\n")
	sb.WriteString("|--------|-------|--------|\n")
	sb.WriteString(fmt.Sprintf("| Events | %d | |\n", s.TotalEvents))
	sb.WriteString(fmt.Sprintf("| Stakes | %d | %d |\n", s.Stakes, s.StakedAmount))
	sb.WriteString(fmt.Sprintf("| Unstakes | %d | %d |\n", s.Unstakes, s.UnstakedAmount))
	sb.WriteString(fmt.Sprintf("| Pool Deposits | %d | %d |\n", s.Deposits, s.DepositedAmount))
	sb.WriteString(fmt.Sprintf("| Distributions | %d | |\n", s.Distributions))
	sb.WriteString(fmt.Sprintf("| Profiles Created | %d | |\n", s.ProfilesCreated))
	sb.WriteString(fmt.Sprintf("| Developers Registered | %d | |\n", s.DevelopersRegistered))
	sb.WriteString(fmt.Sprintf("| Projects Verified | %d | |\n", s.ProjectsVerified))
	sb.WriteString(fmt.Sprintf("| Verifications Revoked | %d | |\n", s.VerificationsRevoked))
	sb.WriteString("\n")
	if s.UndecodableEvents > 0 {
		sb.WriteString(fmt.Sprintf("**%d events could not be decoded and are excluded from amounts.**\n\n", s.UndecodableEvents))
	}

	// Reward Pool
	sb.WriteString("## Reward Pool\n\n")
	if r.Pool != nil {
		p := r.Pool
		sb.WriteString("| Field | Value |\n")
		sb.WriteString("|-------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Address | %s |\n", p.Address))
		sb.WriteString(fmt.Sprintf("| Balance | %d |\n", p.Balance))
		sb.WriteString(fmt.Sprintf("| Total Deposited | %d |\n", p.TotalDeposited))
		sb.WriteString(fmt.Sprintf("| Total Distributed | %d |\n", p.TotalDistributed))
		sb.WriteString(fmt.Sprintf("| Last Distribution | %s |\n", formatUnix(p.LastDistributionAt)))
		sb.WriteString(fmt.Sprintf("| Next Distribution | %s |\n", formatUnix(p.NextDistributionAt)))
	} else {
		sb.WriteString("Reward pool not initialized.\n")
	}
	sb.WriteString("\n")

	// Projects
	sb.WriteString("## Projects\n\n")
	if len(r.Projects) > 0 {
		sb.WriteString("| Project | Total Stakes | Verified | Vault Balance | Stakers (window) |\n")
		sb.WriteString("|---------|--------------|----------|---------------|------------------|\n")
		for _, p := range r.Projects {
			verified := "no"
			if p.Verified {
				verified = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %d | %d |\n",
				p.ProjectMint, p.TotalStakes, verified, p.VaultBalance, p.Stakers))
		}
	} else {
		sb.WriteString("No projects available.\n")
	}
	sb.WriteString("\n")

	// Daily Counts
	sb.WriteString("## Daily Event Counts\n\n")
	if len(r.DailyCounts) > 0 {
		sb.WriteString("| Day | Event | Count |\n")
		sb.WriteString("|-----|-------|-------|\n")
		for _, c := range r.DailyCounts {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", c.Day, c.Name, c.Events))
		}
	} else {
		sb.WriteString("No events in window.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
