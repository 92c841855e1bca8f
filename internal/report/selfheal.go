package report

import (
	"fmt"
	"strings"

	"github.com/animus-labs/guardrails/internal/domain"
)

var SelfHealHeader = []string{
	"project_id", "tenant", "country", "run_mode", "patch_date_local", "status", "reason",
	"gcs_uri", "bq_table_13", "bq_table_14",
	"final_prep_sessions_sum", "final_prep_revenue_db_sum", "final_prep_transactions_db_sum",
	"bq13_sessions_sum", "bq13_revenue_db_sum", "bq13_transactions_db_sum", "bq13_cost_sum",
	"patched_metrics", "triggered_13_run", "triggered_14_run", "error_snippet",
}

func SelfHealRows(records []domain.PatchRecord) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		table14 := r.Pipeline.RollupTable
		if table14 == "" {
			table14 = r.Pipeline.RollupTransfer
		}
		out = append(out, []string{
			r.Pipeline.ProjectID, r.Pipeline.Tenant, r.Pipeline.Country, r.RunMode, r.PatchDate.String(), string(r.Status), r.Reason,
			r.Pipeline.GCSURI, r.Pipeline.DetailTable, table14,
			f6(r.Upstream.Sessions), f6(r.Upstream.Revenue), f6(r.Upstream.Transactions),
			f6(r.Downstream.Sessions), f6(r.Downstream.Revenue), f6(r.Downstream.Transactions), f6(r.Downstream.Cost),
			strings.Join(r.MissingMetrics, ";"), yesNo(r.TriggeredDetail), yesNo(r.TriggeredDependent), r.ErrorSnippet,
		})
	}
	return out
}

// SelfHealMarkdown lists the first 20 failures and fixes.
func SelfHealMarkdown(m Meta, s domain.RunSummary, records []domain.PatchRecord) []string {
	lines := header("Forecast Self-Heal Report", m, fmt.Sprintf("- Run mode: `%s`", s.Slot))
	lines = append(lines,
		fmt.Sprintf("- Pipelines: %d total / %d fixed / %d fail / %d skip", s.Total, s.Fixed, s.Failed, s.Skipped),
		"",
	)
	var fails, fixes []domain.PatchRecord
	for _, r := range records {
		switch r.Status {
		case domain.StatusFail:
			fails = append(fails, r)
		case domain.StatusFixed:
			fixes = append(fixes, r)
		}
	}
	if len(fails) > 0 {
		lines = append(lines, "## Failures (first 20)", "",
			"| Project | Tenant | Country | Reason |",
			"|---|---|---|---|",
		)
		for _, r := range first(fails, 20) {
			lines = append(lines, fmt.Sprintf("| `%s` | `%s` | `%s` | `%s` |", r.Pipeline.ProjectID, r.Pipeline.Tenant, r.Pipeline.Country, r.Reason))
		}
		lines = append(lines, "")
	}
	if len(fixes) > 0 {
		lines = append(lines, "## Fixes (first 20)", "",
			"| Project | Tenant | Country | Patched | DTS 13 | DTS 14 |",
			"|---|---|---|---|---:|---:|",
		)
		for _, r := range first(fixes, 20) {
			lines = append(lines, fmt.Sprintf("| `%s` | `%s` | `%s` | `%s` | `%s` | `%s` |",
				r.Pipeline.ProjectID, r.Pipeline.Tenant, r.Pipeline.Country, strings.Join(r.MissingMetrics, ";"), yesNo(r.TriggeredDetail), yesNo(r.TriggeredDependent)))
		}
		lines = append(lines, "")
	}
	return lines
}
