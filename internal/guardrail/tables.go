package guardrail

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/aggregate"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/readiness"
	"github.com/animus-labs/guardrails/internal/report"
	"github.com/animus-labs/guardrails/internal/specs"
)

type TablesOptions struct {
	ConfigCSV string
	DateLocal civil.Date
	// IgnorePatterns replace the default ignore list when non-empty.
	IgnorePatterns []string
}

// Tables checks table freshness for every producer. Every table row counts
// as required.
func (r *Runner) Tables(ctx context.Context, opts TablesOptions) (domain.RunSummary, error) {
	log := r.logger(domain.GuardrailTables)
	producers, err := specs.LoadTables(opts.ConfigCSV)
	if err != nil {
		return domain.RunSummary{}, err
	}
	ignore, err := readiness.CompileIgnore(opts.IgnorePatterns)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if err := r.connect(ctx); err != nil {
		return domain.RunSummary{}, err
	}

	checker := readiness.TableChecker{
		Warehouse: r.Backends.Warehouse,
		Location:  r.location(),
		Ignore:    ignore,
		Logger:    log,
	}
	var (
		results []domain.TableCheckResult
		tally   aggregate.Tally
	)
	for _, p := range producers {
		if err := ctx.Err(); err != nil {
			return domain.RunSummary{}, err
		}
		for _, res := range checker.Check(ctx, p, opts.DateLocal) {
			tally.Add(true, res.Status)
			results = append(results, res)
		}
	}

	s := r.summary(domain.GuardrailTables, opts.DateLocal.String())
	tally.Apply(&s)
	log.Info("tables checked", "status", s.Status, "total", s.Total, "failed", s.Failed)

	out := r.artifacts(domain.GuardrailTables)
	out.csv(report.SuffixReportCSV, report.TablesHeader, report.TablesRows(results, r.location()))
	out.markdown(report.SuffixReportMD, report.TablesMarkdown(r.meta(s), producers, results))
	err = out.summary(&s)
	return s, err
}
