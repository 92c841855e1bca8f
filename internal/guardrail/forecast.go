package guardrail

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/aggregate"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/platform/settings"
	"github.com/animus-labs/guardrails/internal/readiness"
	"github.com/animus-labs/guardrails/internal/report"
	"github.com/animus-labs/guardrails/internal/schedule"
	"github.com/animus-labs/guardrails/internal/specs"
)

type ForecastOptions struct {
	ConfigCSV string
	PatchDate civil.Date
	// Mode is auto, manual or a slot name.
	Mode     string
	Schedule string
}

// Forecast runs the D-1 readiness check for the slot executing now. Outside
// every slot window it writes a NOOP summary and touches nothing else.
func (r *Runner) Forecast(ctx context.Context, opts ForecastOptions) (domain.RunSummary, error) {
	log := r.logger(domain.GuardrailForecastD1)
	slot, scope, err := r.resolve(r.Settings.Forecast, opts.Mode, opts.Schedule)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if slot == schedule.Noop {
		return r.noop(domain.GuardrailForecastD1, opts.Mode, opts.Schedule)
	}

	pipelines, err := specs.LoadPipelines(opts.ConfigCSV)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if err := r.connect(ctx); err != nil {
		return domain.RunSummary{}, err
	}

	checker := readiness.ForecastChecker{
		Warehouse: r.Backends.Warehouse,
		Epsilon:   r.Settings.Epsilon,
		Breakdown: r.Settings.Breakdown,
		Logger:    log,
	}
	var tally aggregate.Tally
	results := make([]domain.ForecastResult, 0, len(pipelines))
	for _, p := range pipelines {
		if err := ctx.Err(); err != nil {
			return domain.RunSummary{}, err
		}
		res := checker.Check(ctx, p, opts.PatchDate)
		res.Slot = slot
		res.Policy = string(scope.Policy)
		res.Required = scope.Requires(p.Country)
		tally.Add(res.Required, res.Status)
		results = append(results, res)
	}

	s := r.summary(domain.GuardrailForecastD1, opts.PatchDate.String())
	s.Mode = opts.Mode
	s.Slot = slot
	s.RequiredPolicy = string(scope.Policy)
	s.Schedule = opts.Schedule
	tally.Apply(&s)
	log.Info("forecast readiness checked", "slot", slot, "policy", scope.Policy, "status", s.Status,
		"required_failed", s.RequiredFailed, "optional_failed", s.OptionalFailed)

	out := r.artifacts(domain.GuardrailForecastD1)
	out.csv(report.SuffixReportCSV, report.ForecastHeader, report.ForecastRows(results))
	out.csv(report.SuffixChannelCSV, report.ChannelsHeader, report.ChannelRows(results))
	out.markdown(report.SuffixReportMD, report.ForecastMarkdown(r.meta(s), s, results))
	err = out.summary(&s)
	return s, err
}

// resolve maps the execution mode to a slot and the slot to its policy.
// Unconfigured slots require every country.
func (r *Runner) resolve(cfg settings.Schedule, mode, sched string) (string, aggregate.Scope, error) {
	table, err := schedule.FromSettings(cfg)
	if err != nil {
		return "", aggregate.Scope{}, err
	}
	slot, err := table.Resolve(mode, r.now().In(r.location()), sched)
	if err != nil || slot == schedule.Noop {
		return slot, aggregate.Scope{}, err
	}
	policy, err := aggregate.ParsePolicy(table.Policy(slot, string(aggregate.PolicyAll)))
	if err != nil {
		return "", aggregate.Scope{}, err
	}
	return slot, aggregate.Scope{Policy: policy, Country: r.Settings.RequiredCountry}, nil
}
