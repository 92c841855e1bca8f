// Package guardrail wires loaders, checkers, the aggregator and the report
// emitter into one runner per guardrail.
package guardrail

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/heal"
	"github.com/animus-labs/guardrails/internal/platform/settings"
	"github.com/animus-labs/guardrails/internal/report"
	"github.com/animus-labs/guardrails/internal/storage"
	"github.com/animus-labs/guardrails/internal/transfer"
	"github.com/animus-labs/guardrails/internal/warehouse"
	"github.com/google/uuid"
)

// Backends are the external capabilities of one run. Audit may be nil.
type Backends struct {
	Store     storage.Store
	Warehouse warehouse.Warehouse
	Trigger   transfer.Trigger
	Audit     heal.Auditor
}

type Runner struct {
	Backends Backends
	// Open, when set, connects Backends once the inventory has loaded, so a
	// config error never reaches a backend.
	Open     func(ctx context.Context) (Backends, error)
	Settings settings.Settings
	Location *time.Location
	Emitter  report.Emitter

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// connect runs Open at most once.
func (r *Runner) connect(ctx context.Context) error {
	if r.Open == nil {
		return nil
	}
	b, err := r.Open(ctx)
	if err != nil {
		return err
	}
	r.Backends, r.Open = b, nil
	return nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger(guardrail string) *slog.Logger {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("guardrail", guardrail)
}

func (r *Runner) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return time.UTC
}

// Today is the current date in the runner's timezone.
func (r *Runner) Today() civil.Date {
	return civil.DateOf(r.now().In(r.location()))
}

func (r *Runner) summary(guardrail, dateLocal string) domain.RunSummary {
	id := uuid.NewString
	if r.NewID != nil {
		id = r.NewID
	}
	return domain.RunSummary{
		RunID:        id(),
		Guardrail:    guardrail,
		DateLocal:    dateLocal,
		Timezone:     r.location().String(),
		CheckedAtUTC: report.UTC(r.now()),
	}
}

func (r *Runner) meta(s domain.RunSummary) report.Meta {
	return report.Meta{
		DateLocal: s.DateLocal,
		Timezone:  s.Timezone,
		CheckedAt: r.now(),
		Status:    s.Status,
		Location:  r.location(),
	}
}

// noop records a schedule-gated run that fell outside every slot window.
func (r *Runner) noop(guardrail, mode, schedule string) (domain.RunSummary, error) {
	s := r.summary(guardrail, "")
	s.Status = domain.StatusNoop
	s.Reason = domain.ReasonOutsideWindow
	s.Slot = "noop"
	s.Mode = mode
	s.Schedule = schedule
	s.NowLocal = r.now().In(r.location()).Format(time.RFC3339)
	r.logger(guardrail).Info("outside execution window", "mode", mode, "schedule", schedule, "now_local", s.NowLocal)

	out := r.artifacts(guardrail)
	err := out.summary(&s)
	return s, err
}

// FailureSummary writes a best-effort FAIL summary for a run that aborted
// with err. Only the error kind and a truncated message are kept.
func (r *Runner) FailureSummary(guardrail, dateLocal, mode string, err error) domain.RunSummary {
	s := r.summary(guardrail, dateLocal)
	s.Status = domain.StatusFail
	s.Reason = domain.ReasonUnexpectedError
	s.Mode = mode
	if err != nil {
		s.Error = string(errclass.Classify(err)) + ": " + errclass.Snippet(err)
	}
	out := r.artifacts(guardrail)
	if werr := out.summary(&s); werr != nil {
		r.logger(guardrail).Error("write failure summary", "error", werr)
	}
	return s
}

// artifacts collects emitted paths and keeps the first write error.
type artifacts struct {
	emitter   report.Emitter
	guardrail string
	paths     map[string]string
	err       error
}

func (r *Runner) artifacts(guardrail string) *artifacts {
	return &artifacts{emitter: r.Emitter, guardrail: guardrail, paths: map[string]string{}}
}

func (a *artifacts) csv(suffix string, header []string, rows [][]string) {
	if a.err != nil {
		return
	}
	path, err := a.emitter.CSV(report.Name(a.guardrail, suffix), header, rows)
	a.keep(suffix, path, err)
}

func (a *artifacts) markdown(suffix string, lines []string) {
	if a.err != nil {
		return
	}
	path, err := a.emitter.Markdown(report.Name(a.guardrail, suffix), lines)
	a.keep(suffix, path, err)
}

// summary writes s last, listing every artifact including itself.
func (a *artifacts) summary(s *domain.RunSummary) error {
	if a.err != nil {
		return a.err
	}
	name := report.Name(a.guardrail, report.SuffixSummary)
	a.paths[report.SuffixSummary] = filepath.Join(a.emitter.Dir, name)
	s.Artifacts = a.paths
	_, err := a.emitter.JSON(name, s)
	return err
}

func (a *artifacts) keep(suffix, path string, err error) {
	if err != nil {
		a.err = err
		return
	}
	a.paths[suffix] = path
}
