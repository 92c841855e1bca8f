package main

import (
	"context"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/guardrail"
	"github.com/animus-labs/guardrails/internal/platform/env"
	"github.com/animus-labs/guardrails/internal/schedule"
	"github.com/spf13/cobra"
)

func newSelfHealCmd(a *app) *cobra.Command {
	var flags struct {
		configCSV   string
		patchDate   string
		runMode     string
		schedule    string
		dryRun      bool
		settleDelay time.Duration
	}
	cmd := &cobra.Command{
		Use:   "self-heal",
		Short: "Patch forecast exports whose detail table lacks upstream totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := a.date(flags.patchDate, -1)
			if err != nil {
				return a.abort(domain.GuardrailSelfHeal, flags.patchDate, flags.runMode, err)
			}
			opts := guardrail.SelfHealOptions{
				ConfigCSV: flags.configCSV,
				PatchDate: date,
				RunMode:   flags.runMode,
				Schedule:  flags.schedule,
				DryRun:    flags.dryRun,
			}
			if cmd.Flags().Changed("settle-delay") {
				if flags.settleDelay < 0 {
					return a.abort(domain.GuardrailSelfHeal, date.String(), flags.runMode, errNegativeDelay)
				}
				opts.SettleDelay = &flags.settleDelay
			}
			n := need{store: true, warehouse: true, trigger: true, audit: !flags.dryRun}
			return a.execute(cmd.Context(), domain.GuardrailSelfHeal, date.String(), flags.runMode, n,
				func(ctx context.Context, r *guardrail.Runner) (domain.RunSummary, error) {
					return r.SelfHeal(ctx, opts)
				})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.configCSV, "config-csv", "configs/forecast_pipelines.csv", "Forecast pipeline inventory")
	f.StringVar(&flags.patchDate, "patch-date-local", "", "Date to heal (YYYY-MM-DD); default yesterday in --timezone")
	f.StringVar(&flags.runMode, "run-mode", schedule.Auto, "Run mode (auto, cz_morning, noncz_afternoon, all)")
	f.StringVar(&flags.schedule, "schedule", env.String("GITHUB_EVENT_SCHEDULE", ""), "Cron expression that triggered the run")
	f.BoolVar(&flags.dryRun, "dry-run", false, "Report what would be patched without writing or triggering")
	f.DurationVar(&flags.settleDelay, "settle-delay", 0, "Wait before dependent triggers (default from settings)")
	return cmd
}
