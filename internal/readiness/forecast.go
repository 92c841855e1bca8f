package readiness

import (
	"context"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/platform/settings"
	"github.com/animus-labs/guardrails/internal/warehouse"
)

// RequiredColumns must exist in a forecast table; CostColumn is summed when
// present.
var RequiredColumns = []string{"date", "sessions", "revenue_db", "transactions_db"}

const (
	CostColumn    = "cost"
	ChannelColumn = "channel"
)

// ForecastChecker runs the two-tier D-1 aggregate check of a pipeline.
type ForecastChecker struct {
	Warehouse warehouse.Warehouse
	Epsilon   float64
	Breakdown []settings.BreakdownTarget
	Logger    *slog.Logger
}

// Check evaluates the detail table, then the rollup table when configured.
// The overall result passes only when both tiers pass. Channel rows are
// informational.
func (c ForecastChecker) Check(ctx context.Context, p domain.Pipeline, patchDate civil.Date) domain.ForecastResult {
	log := c.logger().With("project", p.ProjectID, "tenant", p.Tenant, "country", p.Country)
	res := domain.ForecastResult{Pipeline: p, PatchDate: patchDate}

	detail, info := c.checkTier(ctx, p.ProjectID, p.DetailTable, patchDate, nil)
	res.Detail = detail
	if detail.Status != domain.StatusPass {
		log.Info("detail tier failed", "table", p.DetailTable, "reason", detail.Reason)
	}

	if p.HasRollup() {
		filter := func(t warehouse.TableInfo) []warehouse.Filter {
			switch {
			case t.Has("domain"):
				return []warehouse.Filter{{Column: "domain", Value: p.Tenant}}
			case t.Has("country"):
				return []warehouse.Filter{{Column: "country", Value: p.Country}}
			}
			return nil
		}
		rollup, _ := c.checkTier(ctx, p.ProjectID, p.RollupTable, patchDate, filter)
		res.Rollup = &rollup
		if rollup.Status != domain.StatusPass {
			log.Info("rollup tier failed", "table", p.RollupTable, "reason", rollup.Reason)
		}
	}

	switch {
	case detail.Status != domain.StatusPass:
		res.Status, res.Reason = domain.StatusFail, detail.Reason
	case res.Rollup != nil && res.Rollup.Status != domain.StatusPass:
		res.Status, res.Reason = domain.StatusFail, domain.WithDetail(domain.ReasonRollup, res.Rollup.Reason)
	default:
		res.Status = domain.StatusPass
	}

	if info != nil && c.wantsBreakdown(p) {
		res.Channels = c.channels(ctx, p, *info, patchDate, log)
	}
	return res
}

// checkTier returns the tier outcome and, when the schema was readable and
// complete, the table metadata.
func (c ForecastChecker) checkTier(
	ctx context.Context,
	jobProject string,
	table string,
	date civil.Date,
	filter func(warehouse.TableInfo) []warehouse.Filter,
) (domain.TierResult, *warehouse.TableInfo) {
	tier := domain.TierResult{Table: table, Status: domain.StatusFail}

	ref, err := warehouse.ParseTableRef(table)
	if err != nil {
		tier.Reason, tier.ErrorSnippet = domain.ReasonBQError, errclass.Snippet(err)
		return tier, nil
	}
	info, err := c.Warehouse.Table(ctx, ref)
	if err != nil {
		tier.Reason, tier.ErrorSnippet = errclass.Reason(err, domain.ReasonBQError), errclass.Snippet(err)
		return tier, nil
	}
	tier.CostPresent = info.Has(CostColumn)
	if missing := info.Missing(RequiredColumns...); len(missing) > 0 {
		tier.Reason = domain.WithDetail(domain.ReasonMissingColumns, strings.Join(missing, ","))
		return tier, nil
	}

	q := warehouse.AggregateQuery{
		JobProject: jobProject,
		Table:      ref,
		DateColumn: "date",
		Date:       date.String(),
		Metrics:    metrics(tier.CostPresent),
	}
	if filter != nil {
		q.Filters = filter(info)
		if len(q.Filters) > 0 {
			tier.Filter = q.Filters[0].Column + "=" + q.Filters[0].Value
		}
	}
	rows, err := c.Warehouse.Aggregate(ctx, q)
	if err != nil {
		tier.Reason, tier.ErrorSnippet = errclass.Reason(err, domain.ReasonBQError), errclass.Snippet(err)
		return tier, &info
	}
	if len(rows) > 0 {
		tier.RowCount = rows[0].RowCount
		tier.Totals = totals(rows[0])
	}

	switch {
	case tier.RowCount <= 0:
		tier.Reason = domain.ReasonNoRowsForDate
	case tier.Totals.Actuals() <= c.Epsilon:
		tier.Reason = domain.ReasonActualsZero
	default:
		tier.Status = domain.StatusPass
	}
	return tier, &info
}

func (c ForecastChecker) channels(ctx context.Context, p domain.Pipeline, info warehouse.TableInfo, date civil.Date, log *slog.Logger) []domain.ChannelResult {
	if !info.Has(ChannelColumn) {
		return []domain.ChannelResult{{Status: domain.StatusFail, Reason: domain.WithDetail(domain.ReasonMissingColumns, ChannelColumn)}}
	}
	rows, err := c.Warehouse.Aggregate(ctx, warehouse.AggregateQuery{
		JobProject: p.ProjectID,
		Table:      info.Ref,
		DateColumn: "date",
		Date:       date.String(),
		Metrics:    metrics(info.Has(CostColumn)),
		GroupBy:    ChannelColumn,
	})
	if err != nil {
		reason := errclass.Reason(err, domain.ReasonBQError)
		log.Warn("channel breakdown failed", "table", p.DetailTable, "reason", reason, "error", errclass.Snippet(err))
		return []domain.ChannelResult{{Status: domain.StatusFail, Reason: reason}}
	}
	out := make([]domain.ChannelResult, 0, len(rows))
	for _, r := range rows {
		ch := domain.ChannelResult{Channel: r.Group, RowCount: r.RowCount, Totals: totals(r), Status: domain.StatusPass}
		if ch.Totals.Actuals() <= c.Epsilon {
			ch.Status, ch.Reason = domain.StatusFail, domain.ReasonActualsZero
		}
		out = append(out, ch)
	}
	return out
}

func (c ForecastChecker) wantsBreakdown(p domain.Pipeline) bool {
	for _, t := range c.Breakdown {
		if strings.EqualFold(strings.TrimSpace(t.Tenant), p.Tenant) && strings.EqualFold(strings.TrimSpace(t.Country), p.Country) {
			return true
		}
	}
	return false
}

func (c ForecastChecker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func metrics(withCost bool) []string {
	m := []string{"sessions", "revenue_db", "transactions_db"}
	if withCost {
		m = append(m, CostColumn)
	}
	return m
}

func totals(r warehouse.Row) domain.Totals {
	return domain.Totals{
		Sessions:     r.Sums["sessions"],
		Revenue:      r.Sums["revenue_db"],
		Transactions: r.Sums["transactions_db"],
		Cost:         r.Sums[CostColumn],
	}
}
