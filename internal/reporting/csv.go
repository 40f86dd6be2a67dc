package reporting

import (
	"fmt"
	"strings"
)

// RenderDailyCSV renders per-day event counts as CSV string.
func RenderDailyCSV(rows []DailyCountRow) string {
	var sb strings.Builder

	sb.WriteString("day,event,count\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d\n", r.Day, r.Name, r.Events))
	}

	return sb.String()
}

// RenderProjectsCSV renders project rows as CSV string.
func RenderProjectsCSV(rows []ProjectRow) string {
	var sb strings.Builder

	sb.WriteString("project_mint,total_stakes,verified,vault_balance,stakers\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%t,%d,%d\n",
			r.ProjectMint,
			r.TotalStakes,
			r.Verified,
			r.VaultBalance,
			r.Stakers,
		))
	}

	return sb.String()
}
