package guardrail

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/aggregate"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/readiness"
	"github.com/animus-labs/guardrails/internal/report"
	"github.com/animus-labs/guardrails/internal/specs"
	"github.com/pkg/errors"
)

type CostOptions struct {
	ConfigCSV string
	DateLocal civil.Date
	// Mode keeps only producers of that mode; empty keeps all.
	Mode      string
	ZeroSpend readiness.ZeroSpendPolicy
}

// Cost checks every cost export as of its SLA and folds the objects into
// groups. The run status follows the groups, all of which are required.
func (r *Runner) Cost(ctx context.Context, opts CostOptions) (domain.RunSummary, error) {
	log := r.logger(domain.GuardrailCost)
	producers, err := specs.LoadCost(opts.ConfigCSV)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if opts.Mode != "" {
		mode, err := domain.ParseMode(opts.Mode)
		if err != nil {
			return domain.RunSummary{}, err
		}
		var kept []domain.CostProducer
		for _, p := range producers {
			if p.Mode == mode {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			return domain.RunSummary{}, errors.Errorf("%s: no producers with mode %s", opts.ConfigCSV, mode)
		}
		producers = kept
	}
	if err := r.connect(ctx); err != nil {
		return domain.RunSummary{}, err
	}

	checker := readiness.ObjectChecker{
		Store:     r.Backends.Store,
		Location:  r.location(),
		ZeroSpend: opts.ZeroSpend,
		Epsilon:   r.Settings.Epsilon,
		Logger:    log,
	}
	objects := make([]domain.ObjectResult, 0, len(producers))
	for _, p := range producers {
		if err := ctx.Err(); err != nil {
			return domain.RunSummary{}, err
		}
		objects = append(objects, checker.Check(ctx, p, opts.DateLocal))
	}

	allowZero := opts.ZeroSpend == readiness.ZeroSpendAllow
	groups := aggregate.Groups(objects, allowZero, r.Settings.Epsilon)
	var tally aggregate.Tally
	for _, g := range groups {
		tally.Add(true, g.Status)
	}

	s := r.summary(domain.GuardrailCost, opts.DateLocal.String())
	s.Mode = opts.Mode
	tally.Apply(&s)
	log.Info("cost exports checked", "status", s.Status, "objects", len(objects), "groups", len(groups), "failed", s.Failed)

	out := r.artifacts(domain.GuardrailCost)
	out.csv(report.SuffixObjectsCSV, report.ObjectsHeader, report.ObjectRows(objects, r.location()))
	out.csv(report.SuffixGroupsCSV, report.GroupsHeader, report.GroupRows(groups, r.location()))
	out.markdown(report.SuffixReportMD, report.CostMarkdown(r.meta(s), objects, groups, allowZero))
	err = out.summary(&s)
	return s, err
}
