package main

import (
	"context"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/guardrail"
	"github.com/animus-labs/guardrails/internal/readiness"
	"github.com/spf13/cobra"
)

func newCostCmd(a *app) *cobra.Command {
	var flags struct {
		configCSV string
		dateLocal string
		mode      string
		zeroSpend string
	}
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Check cost exports as they existed at the SLA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := a.date(flags.dateLocal, 0)
			if err != nil {
				return a.abort(domain.GuardrailCost, flags.dateLocal, flags.mode, err)
			}
			policy, err := readiness.ParseZeroSpendPolicy(flags.zeroSpend)
			if err != nil {
				return a.abort(domain.GuardrailCost, date.String(), flags.mode, err)
			}
			return a.execute(cmd.Context(), domain.GuardrailCost, date.String(), flags.mode, need{store: true},
				func(ctx context.Context, r *guardrail.Runner) (domain.RunSummary, error) {
					return r.Cost(ctx, guardrail.CostOptions{ConfigCSV: flags.configCSV, DateLocal: date, Mode: flags.mode, ZeroSpend: policy})
				})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.configCSV, "config-csv", "configs/fb_cost_objects.csv", "Cost producer inventory")
	f.StringVar(&flags.dateLocal, "date-local", "", "Run date (YYYY-MM-DD); the export covers the previous day. Default today in --timezone")
	f.StringVar(&flags.mode, "mode", string(domain.ModeMerged), "Only check producers of this mode (merged, separate); empty checks all")
	f.StringVar(&flags.zeroSpend, "zero-spend-policy", string(readiness.ZeroSpendFail), "Outcome of a present export netting to zero spend (fail, allow)")
	return cmd
}
