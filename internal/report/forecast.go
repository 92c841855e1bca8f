package report

import (
	"fmt"
	"strconv"

	"github.com/animus-labs/guardrails/internal/domain"
)

var ForecastHeader = []string{
	"project_id", "tenant", "country", "slot", "required_policy", "patch_date_local", "is_required",
	"table_fq", "status", "reason", "row_count",
	"sessions_sum", "revenue_db_sum", "transactions_db_sum", "actuals_sum", "cost_sum", "cost_present",
	"rollup_table", "rollup_filter", "rollup_status", "rollup_reason", "rollup_row_count", "rollup_actuals_sum",
	"error_snippet",
}

var ChannelsHeader = []string{
	"project_id", "tenant", "country", "patch_date_local", "channel", "status", "reason",
	"row_count", "sessions_sum", "revenue_db_sum", "transactions_db_sum", "cost_sum",
}

func ForecastRows(results []domain.ForecastResult) [][]string {
	out := make([][]string, 0, len(results))
	for _, r := range results {
		d := r.Detail
		row := []string{
			r.Pipeline.ProjectID, r.Pipeline.Tenant, r.Pipeline.Country, r.Slot, r.Policy, r.PatchDate.String(), yesNo(r.Required),
			d.Table, string(r.Status), r.Reason, strconv.FormatInt(d.RowCount, 10),
			f6(d.Totals.Sessions), f6(d.Totals.Revenue), f6(d.Totals.Transactions), f6(d.Totals.Actuals()), f6(d.Totals.Cost), yesNo(d.CostPresent),
		}
		snippet := d.ErrorSnippet
		if ru := r.Rollup; ru != nil {
			row = append(row, ru.Table, ru.Filter, string(ru.Status), ru.Reason, strconv.FormatInt(ru.RowCount, 10), f6(ru.Totals.Actuals()))
			if snippet == "" {
				snippet = ru.ErrorSnippet
			}
		} else {
			row = append(row, "", "", "", "", "", "")
		}
		out = append(out, append(row, snippet))
	}
	return out
}

func ChannelRows(results []domain.ForecastResult) [][]string {
	var out [][]string
	for _, r := range results {
		for _, c := range r.Channels {
			out = append(out, []string{
				r.Pipeline.ProjectID, r.Pipeline.Tenant, r.Pipeline.Country, r.PatchDate.String(), c.Channel, string(c.Status), c.Reason,
				strconv.FormatInt(c.RowCount, 10), f6(c.Totals.Sessions), f6(c.Totals.Revenue), f6(c.Totals.Transactions), f6(c.Totals.Cost),
			})
		}
	}
	return out
}

// ForecastMarkdown splits failures into required and optional tables of at
// most 20 rows each.
func ForecastMarkdown(m Meta, s domain.RunSummary, results []domain.ForecastResult) []string {
	lines := header("Forecast D-1 Readiness Report", m,
		fmt.Sprintf("- Slot: `%s`", s.Slot),
		fmt.Sprintf("- Required policy: `%s`", s.RequiredPolicy),
	)
	lines = append(lines,
		counts("Required", s.RequiredTotal-s.RequiredFailed, s.RequiredFailed),
		counts("Optional", s.OptionalTotal-s.OptionalFailed, s.OptionalFailed),
		"",
	)
	var required, optional []domain.ForecastResult
	for _, r := range results {
		if r.Status != domain.StatusFail {
			continue
		}
		if r.Required {
			required = append(required, r)
		} else {
			optional = append(optional, r)
		}
	}
	lines = append(lines, forecastFailures("Required failures (first 20)", required)...)
	lines = append(lines, forecastFailures("Optional failures (first 20)", optional)...)

	var channels []string
	for _, r := range results {
		for _, c := range r.Channels {
			if c.Status == domain.StatusFail {
				channels = append(channels, fmt.Sprintf("| `%s` | `%s` | `%s` | `%s` | `%s` |", r.Pipeline.Tenant, r.Pipeline.Country, c.Channel, c.Reason, f6(c.Totals.Actuals())))
			}
		}
	}
	if len(channels) > 0 {
		lines = append(lines, "## Channel breakdown (informational)", "",
			"| Tenant | Country | Channel | Reason | actuals_sum |",
			"|---|---|---|---|---:|",
		)
		lines = append(lines, first(channels, 20)...)
		lines = append(lines, "")
	}
	return lines
}

func forecastFailures(title string, rows []domain.ForecastResult) []string {
	if len(rows) == 0 {
		return nil
	}
	lines := []string{"## " + title, "",
		"| Project | Tenant | Country | Table | Reason | row_count | actuals_sum | cost_sum |",
		"|---|---|---|---|---|---:|---:|---:|",
	}
	for _, r := range first(rows, 20) {
		d := r.Detail
		lines = append(lines, fmt.Sprintf("| `%s` | `%s` | `%s` | `%s` | `%s` | %d | %s | %s |",
			r.Pipeline.ProjectID, r.Pipeline.Tenant, r.Pipeline.Country, d.Table, r.Reason, d.RowCount, f6(d.Totals.Actuals()), f6(d.Totals.Cost)))
	}
	return append(lines, "")
}
