package main

import (
	"context"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/guardrail"
	"github.com/animus-labs/guardrails/internal/platform/env"
	"github.com/animus-labs/guardrails/internal/schedule"
	"github.com/spf13/cobra"
)

func newForecastCmd(a *app) *cobra.Command {
	var flags struct {
		configCSV string
		patchDate string
		mode      string
		schedule  string
	}
	cmd := &cobra.Command{
		Use:   "forecast-d1",
		Short: "Check D-1 forecast tables for the slot executing now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := a.date(flags.patchDate, -1)
			if err != nil {
				return a.abort(domain.GuardrailForecastD1, flags.patchDate, flags.mode, err)
			}
			return a.execute(cmd.Context(), domain.GuardrailForecastD1, date.String(), flags.mode, need{warehouse: true},
				func(ctx context.Context, r *guardrail.Runner) (domain.RunSummary, error) {
					return r.Forecast(ctx, guardrail.ForecastOptions{ConfigCSV: flags.configCSV, PatchDate: date, Mode: flags.mode, Schedule: flags.schedule})
				})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.configCSV, "config-csv", "configs/forecast_pipelines.csv", "Forecast pipeline inventory")
	f.StringVar(&flags.patchDate, "patch-date-local", "", "Date to check (YYYY-MM-DD); default yesterday in --timezone")
	f.StringVar(&flags.mode, "mode", schedule.Auto, "Execution mode (auto, manual)")
	f.StringVar(&flags.schedule, "schedule", env.String("GITHUB_EVENT_SCHEDULE", ""), "Cron expression that triggered the run")
	return cmd
}
