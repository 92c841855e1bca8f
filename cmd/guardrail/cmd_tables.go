package main

import (
	"context"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/guardrail"
	"github.com/spf13/cobra"
)

func newTablesCmd(a *app) *cobra.Command {
	var flags struct {
		configCSV string
		dateLocal string
		ignore    []string
	}
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Check that matched tables were modified on the date and by the SLA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := a.date(flags.dateLocal, 0)
			if err != nil {
				return a.abort(domain.GuardrailTables, flags.dateLocal, "", err)
			}
			return a.execute(cmd.Context(), domain.GuardrailTables, date.String(), "", need{warehouse: true},
				func(ctx context.Context, r *guardrail.Runner) (domain.RunSummary, error) {
					return r.Tables(ctx, guardrail.TablesOptions{ConfigCSV: flags.configCSV, DateLocal: date, IgnorePatterns: flags.ignore})
				})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.configCSV, "config-csv", "configs/readiness_tables.csv", "Table producer inventory")
	f.StringVar(&flags.dateLocal, "date-local", "", "Date to check (YYYY-MM-DD); default today in --timezone")
	f.StringArrayVar(&flags.ignore, "ignore-table-regex", nil, "Regex of table names to skip (repeatable; replaces the default .*_test$)")
	return cmd
}
