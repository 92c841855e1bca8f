package guardrail

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/aggregate"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/heal"
	"github.com/animus-labs/guardrails/internal/report"
	"github.com/animus-labs/guardrails/internal/schedule"
	"github.com/animus-labs/guardrails/internal/specs"
)

type SelfHealOptions struct {
	ConfigCSV string
	PatchDate civil.Date
	// RunMode is auto or a self-heal slot name.
	RunMode  string
	Schedule string
	DryRun   bool
	// SettleDelay overrides the configured delay when non-nil.
	SettleDelay *time.Duration
	// Sleep replaces the settle wait in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// SelfHeal patches the pipelines selected by the run mode's policy and
// re-triggers ingestion. Pipelines outside the policy are not touched.
func (r *Runner) SelfHeal(ctx context.Context, opts SelfHealOptions) (domain.RunSummary, error) {
	log := r.logger(domain.GuardrailSelfHeal)
	slot, scope, err := r.resolve(r.Settings.SelfHeal, opts.RunMode, opts.Schedule)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if slot == schedule.Noop {
		return r.noop(domain.GuardrailSelfHeal, opts.RunMode, opts.Schedule)
	}

	pipelines, err := specs.LoadPipelines(opts.ConfigCSV)
	if err != nil {
		return domain.RunSummary{}, err
	}
	var selected []domain.Pipeline
	for _, p := range pipelines {
		if scope.Requires(p.Country) {
			selected = append(selected, p)
		}
	}

	settle := r.Settings.DependentTrigger.SettleDelay
	if opts.SettleDelay != nil {
		settle = *opts.SettleDelay
	}
	if err := r.connect(ctx); err != nil {
		return domain.RunSummary{}, err
	}
	patcher := &heal.Patcher{
		Warehouse:         r.Backends.Warehouse,
		Store:             r.Backends.Store,
		Trigger:           r.Backends.Trigger,
		Audit:             r.Backends.Audit,
		Epsilon:           r.Settings.Epsilon,
		Unattributed:      r.Settings.UnattributedChannel,
		DependentProjects: r.Settings.DependentTrigger.Projects,
		SettleDelay:       settle,
		DryRun:            opts.DryRun,
		Now:               r.Now,
		Sleep:             opts.Sleep,
		Logger:            log,
	}
	log.Info("self-heal started", "run_mode", slot, "policy", scope.Policy, "pipelines", len(selected), "dry_run", opts.DryRun)
	records := patcher.Run(ctx, selected, slot, opts.PatchDate)
	if err := ctx.Err(); err != nil {
		return domain.RunSummary{}, err
	}

	var tally aggregate.Tally
	for _, rec := range records {
		tally.Add(true, rec.Status)
	}
	s := r.summary(domain.GuardrailSelfHeal, opts.PatchDate.String())
	s.Mode = opts.RunMode
	s.Slot = slot
	s.RequiredPolicy = string(scope.Policy)
	s.Schedule = opts.Schedule
	tally.Apply(&s)
	log.Info("self-heal finished", "status", s.Status, "fixed", s.Fixed, "failed", s.Failed, "skipped", s.Skipped)

	out := r.artifacts(domain.GuardrailSelfHeal)
	out.csv(report.SuffixReportCSV, report.SelfHealHeader, report.SelfHealRows(records))
	out.markdown(report.SuffixReportMD, report.SelfHealMarkdown(r.meta(s), s, records))
	err = out.summary(&s)
	return s, err
}
