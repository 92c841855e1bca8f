// Package heal repairs forecast exports whose downstream table is missing
// metrics the upstream final_prep tables already carry, then re-triggers the
// ingestion transfer.
package heal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/storage"
	"github.com/animus-labs/guardrails/internal/transfer"
	"github.com/animus-labs/guardrails/internal/warehouse"
	"github.com/pkg/errors"
)

// Event kinds recorded by an Auditor.
const (
	EventUpload  = "export_upload"
	EventTrigger = "transfer_trigger"
)

// Event is one side effect of a patch run.
type Event struct {
	Kind      string
	Project   string
	Resource  string
	PatchDate civil.Date
	Payload   map[string]any
}

// Auditor records side effects. Recording failures never fail a pipeline.
type Auditor interface {
	Record(ctx context.Context, e Event) error
}

type Patcher struct {
	Warehouse warehouse.Warehouse
	Store     storage.Store
	Trigger   transfer.Trigger
	Audit     Auditor

	Epsilon      float64
	Unattributed string
	// DependentProjects get their rollup transfer re-triggered once per run
	// after SettleDelay.
	DependentProjects []string
	SettleDelay       time.Duration
	DryRun            bool

	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

type dependentRun struct {
	project  string
	location string
	config   string
}

// Run heals each pipeline in order and returns one record per pipeline plus
// one FAIL record per failed dependent trigger.
func (p *Patcher) Run(ctx context.Context, pipelines []domain.Pipeline, runMode string, date civil.Date) []domain.PatchRecord {
	records := make([]domain.PatchRecord, 0, len(pipelines))
	dependents := map[string]dependentRun{}

	for _, pl := range pipelines {
		rec := p.heal(ctx, pl, date)
		rec.RunMode = runMode
		if rec.Status == domain.StatusFixed && p.dependent(pl.ProjectID) && strings.TrimSpace(pl.RollupTransfer) != "" {
			run := dependentRun{project: pl.ProjectID, location: pl.Location, config: pl.RollupTransfer}
			if _, ok := dependents[run.project+"\x00"+run.config]; !ok {
				dependents[run.project+"\x00"+run.config] = run
			}
		}
		records = append(records, rec)
	}

	if len(dependents) == 0 || p.DryRun {
		return records
	}
	return p.triggerDependents(ctx, records, dependents, runMode, date)
}

func (p *Patcher) triggerDependents(ctx context.Context, records []domain.PatchRecord, dependents map[string]dependentRun, runMode string, date civil.Date) []domain.PatchRecord {
	keys := make([]string, 0, len(dependents))
	for k := range dependents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.logger().Info("waiting before dependent triggers", "delay", p.SettleDelay.String(), "configs", len(keys))
	settleErr := p.sleep(ctx, p.SettleDelay)
	runTime := p.now().UTC().Truncate(time.Second)

	for _, k := range keys {
		run := dependents[k]
		err := settleErr
		if err == nil {
			err = p.Trigger.Trigger(ctx, run.project, run.location, run.config, runTime)
		}
		if err != nil {
			p.logger().Warn("dependent trigger failed", "project", run.project, "config", run.config, "error", errclass.Snippet(err))
			records = append(records, domain.PatchRecord{
				Pipeline:     domain.Pipeline{ProjectID: run.project, RollupTransfer: run.config},
				RunMode:      runMode,
				PatchDate:    date,
				Status:       domain.StatusFail,
				Reason:       domain.WithDetail(domain.ReasonDependentTriggerFailed, string(errclass.Classify(err))),
				ErrorSnippet: errclass.Snippet(err),
			})
			continue
		}
		p.record(ctx, Event{Kind: EventTrigger, Project: run.project, Resource: run.config, PatchDate: date,
			Payload: map[string]any{"run_time": runTime.Format(time.RFC3339), "dependent": true}})
		for i := range records {
			r := &records[i]
			if r.Pipeline.ProjectID == run.project && r.Pipeline.HasRollup() &&
				(r.Status == domain.StatusPass || r.Status == domain.StatusFixed) {
				r.TriggeredDependent = true
			}
		}
	}
	return records
}

// heal evaluates one pipeline. Errors and panics become a FAIL record.
func (p *Patcher) heal(ctx context.Context, pl domain.Pipeline, date civil.Date) (rec domain.PatchRecord) {
	log := p.logger().With("project", pl.ProjectID, "tenant", pl.Tenant, "country", pl.Country)
	defer func() {
		if r := recover(); r != nil {
			log.Error("self-heal panicked", "panic", fmt.Sprint(r))
			rec = domain.PatchRecord{
				Pipeline:     pl,
				PatchDate:    date,
				Status:       domain.StatusFail,
				Reason:       domain.WithDetail(domain.ReasonException, "panic"),
				ErrorSnippet: errclass.Snippet(errors.Errorf("%v", r)),
			}
		}
	}()

	rec, err := p.evaluate(ctx, pl, date, log)
	if err != nil {
		log.Warn("self-heal failed", "error", errclass.Snippet(err))
		return domain.PatchRecord{
			Pipeline:     pl,
			PatchDate:    date,
			Status:       domain.StatusFail,
			Reason:       domain.WithDetail(domain.ReasonException, string(errclass.Classify(err))),
			ErrorSnippet: errclass.Snippet(err),
		}
	}
	return rec
}

func (p *Patcher) evaluate(ctx context.Context, pl domain.Pipeline, date civil.Date, log *slog.Logger) (domain.PatchRecord, error) {
	rec := domain.PatchRecord{Pipeline: pl, PatchDate: date}

	up, err := p.upstream(ctx, pl, date)
	if err != nil {
		return rec, err
	}
	down, err := p.downstream(ctx, pl, date)
	if err != nil {
		return rec, err
	}
	rec.Upstream, rec.Downstream = up.Totals(), down
	rec.MissingMetrics = p.missing(rec.Upstream, rec.Downstream)

	switch {
	case p.nearZero(rec.Upstream.Sessions) && p.nearZero(rec.Upstream.Revenue) &&
		p.nearZero(rec.Upstream.Transactions) && p.nearZero(rec.Upstream.Cost):
		rec.Status, rec.Reason = domain.StatusSkip, domain.ReasonFinalPrepEmpty
		return rec, nil
	case len(rec.MissingMetrics) == 0:
		rec.Status = domain.StatusPass
		return rec, nil
	case p.DryRun:
		rec.Status, rec.Reason = domain.StatusFail, domain.ReasonDryRunWouldPatch
		log.Info("dry run: export would be patched", "missing", strings.Join(rec.MissingMetrics, ";"))
		return rec, nil
	}

	uri, err := storage.ParseURI(pl.GCSURI)
	if err != nil {
		return rec, err
	}
	data, err := p.Store.ReadVersion(ctx, uri, "")
	if err != nil {
		return rec, errors.Wrapf(err, "download %s", uri)
	}
	day := date.String()
	targets, err := Channels(data, day)
	if err != nil {
		return rec, err
	}
	if len(targets) == 0 {
		rec.Status, rec.Reason = domain.StatusFail, domain.ReasonCSVNoRowsForDate
		return rec, nil
	}

	patched, err := Patch(data, day, BuildActuals(targets, up, p.Unattributed, p.Epsilon))
	if err != nil {
		return rec, err
	}
	rec.PatchedRows, rec.PatchedColumns = patched.Rows, patched.Columns
	switch {
	case patched.Rows <= 0:
		rec.Status, rec.Reason = domain.StatusFail, domain.ReasonNoRowsPatched
		return rec, nil
	case len(patched.Columns) == 0:
		rec.Status, rec.Reason = domain.StatusFail, domain.ReasonNoColumnsPatched
		return rec, nil
	}

	if err := p.Store.Write(ctx, uri, patched.Data, "text/csv"); err != nil {
		return rec, errors.Wrapf(err, "upload %s", uri)
	}
	p.record(ctx, Event{Kind: EventUpload, Project: pl.ProjectID, Resource: uri.String(), PatchDate: date,
		Payload: map[string]any{"rows": patched.Rows, "columns": patched.Columns, "bytes": len(patched.Data)}})

	runTime := p.now().UTC().Truncate(time.Second)
	if err := p.Trigger.Trigger(ctx, pl.ProjectID, pl.Location, pl.DetailTransfer, runTime); err != nil {
		return rec, errors.Wrapf(err, "trigger %s", pl.DetailTransfer)
	}
	p.record(ctx, Event{Kind: EventTrigger, Project: pl.ProjectID, Resource: pl.DetailTransfer, PatchDate: date,
		Payload: map[string]any{"run_time": runTime.Format(time.RFC3339)}})
	rec.TriggeredDetail = true

	rec.Status = domain.StatusFixed
	rec.Reason = domain.ReasonPatchedCols + "=" + strings.Join(patched.Columns, ";")
	log.Info("export patched", "rows", patched.Rows, "columns", strings.Join(patched.Columns, ";"))
	return rec, nil
}

func (p *Patcher) upstream(ctx context.Context, pl domain.Pipeline, date civil.Date) (Upstream, error) {
	up := Upstream{Txns: map[string]Metrics{}, Cost: map[string]Metrics{}}
	if err := p.byChannel(ctx, pl.ProjectID, pl.FinalPrepTxnsTable, date, TxnMetrics, up.Txns); err != nil {
		return up, err
	}
	if err := p.byChannel(ctx, pl.ProjectID, pl.FinalPrepCostTable, date, CostMetrics, up.Cost); err != nil {
		return up, err
	}
	return up, nil
}

func (p *Patcher) byChannel(ctx context.Context, project, table string, date civil.Date, metrics []string, into map[string]Metrics) error {
	if strings.TrimSpace(table) == "" {
		return nil
	}
	ref, err := warehouse.ParseTableRef(table)
	if err != nil {
		return err
	}
	rows, err := p.Warehouse.Aggregate(ctx, warehouse.AggregateQuery{
		JobProject: project,
		Table:      ref,
		DateColumn: "date",
		Date:       date.String(),
		Metrics:    metrics,
		GroupBy:    "channel",
	})
	if err != nil {
		return errors.Wrapf(err, "aggregate %s", ref)
	}
	for _, r := range rows {
		key := ChannelKey(r.Group)
		if key == "" {
			continue
		}
		m, ok := into[key]
		if !ok {
			m = Metrics{}
			into[key] = m
		}
		for _, col := range metrics {
			m[col] += r.Sums[col]
		}
	}
	return nil
}

func (p *Patcher) downstream(ctx context.Context, pl domain.Pipeline, date civil.Date) (domain.Totals, error) {
	ref, err := warehouse.ParseTableRef(pl.DetailTable)
	if err != nil {
		return domain.Totals{}, err
	}
	info, err := p.Warehouse.Table(ctx, ref)
	if err != nil {
		return domain.Totals{}, errors.Wrapf(err, "table %s", ref)
	}
	metrics := []string{"sessions", "revenue_db", "transactions_db"}
	if info.Has("cost") {
		metrics = append(metrics, "cost")
	}
	rows, err := p.Warehouse.Aggregate(ctx, warehouse.AggregateQuery{
		JobProject: pl.ProjectID,
		Table:      ref,
		DateColumn: "date",
		Date:       date.String(),
		Metrics:    metrics,
	})
	if err != nil {
		return domain.Totals{}, errors.Wrapf(err, "aggregate %s", ref)
	}
	if len(rows) == 0 {
		return domain.Totals{}, nil
	}
	s := rows[0].Sums
	return domain.Totals{Sessions: s["sessions"], Revenue: s["revenue_db"], Transactions: s["transactions_db"], Cost: s["cost"]}, nil
}

// missing lists the metrics non-zero upstream but zero downstream.
func (p *Patcher) missing(up, down domain.Totals) []string {
	var out []string
	pairs := []struct {
		name     string
		up, down float64
	}{
		{"sessions", up.Sessions, down.Sessions},
		{"revenue_db", up.Revenue, down.Revenue},
		{"transactions_db", up.Transactions, down.Transactions},
		{"cost", up.Cost, down.Cost},
	}
	for _, m := range pairs {
		if !p.nearZero(m.up) && p.nearZero(m.down) {
			out = append(out, m.name)
		}
	}
	return out
}

func (p *Patcher) nearZero(v float64) bool {
	return math.Abs(v) <= p.Epsilon
}

func (p *Patcher) dependent(project string) bool {
	for _, d := range p.DependentProjects {
		if strings.TrimSpace(d) == project {
			return true
		}
	}
	return false
}

func (p *Patcher) record(ctx context.Context, e Event) {
	if p.Audit == nil {
		return
	}
	if err := p.Audit.Record(ctx, e); err != nil {
		p.logger().Warn("audit record failed", "kind", e.Kind, "resource", e.Resource, "error", errclass.Snippet(err))
	}
}

func (p *Patcher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Patcher) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Patcher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
