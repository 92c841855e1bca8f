package readiness

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/warehouse"
	"github.com/pkg/errors"
)

// DefaultIgnore drops scratch tables from freshness checks.
var DefaultIgnore = []string{`.*_test$`}

// LikeToRegexp converts a SQL LIKE pattern to an anchored regexp. Only % is a
// wildcard.
func LikeToRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// CompileIgnore compiles ignore patterns; empty input yields DefaultIgnore.
func CompileIgnore(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		patterns = DefaultIgnore
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ignore regex %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}

// TableChecker verifies that the tables matched by a producer pattern were
// last modified on the target date and no later than the SLA.
type TableChecker struct {
	Warehouse warehouse.Warehouse
	Location  *time.Location
	Ignore    []*regexp.Regexp
	Logger    *slog.Logger
}

// Check returns one result per matched table, or a single FAIL row when the
// dataset cannot be listed or nothing matched.
func (c TableChecker) Check(ctx context.Context, p domain.TableProducer, dateLocal civil.Date) []domain.TableCheckResult {
	sla := p.SLA.On(dateLocal, c.Location)
	log := c.logger().With("project", p.ProjectID, "dataset", p.DatasetID, "pattern", p.TablePattern)
	fail := func(table, reason string) []domain.TableCheckResult {
		return []domain.TableCheckResult{{Producer: p, TableID: table, SLALocal: sla, Status: domain.StatusFail, Reason: reason}}
	}

	names, err := c.Warehouse.ListTables(ctx, p.ProjectID, p.DatasetID)
	if err != nil {
		reason := errclass.Reason(err, domain.ReasonBQError)
		log.Warn("list tables failed", "reason", reason, "error", errclass.Snippet(err))
		return fail("", reason)
	}

	pattern := LikeToRegexp(p.TablePattern)
	var matched []string
	for _, name := range names {
		if pattern.MatchString(name) && !c.ignored(name) {
			matched = append(matched, name)
		}
	}
	if len(matched) == 0 {
		return fail("", domain.ReasonNoTablesMatched)
	}

	out := make([]domain.TableCheckResult, 0, len(matched))
	for _, name := range matched {
		ref := warehouse.TableRef{Project: p.ProjectID, Dataset: p.DatasetID, Table: name}
		info, err := c.Warehouse.Table(ctx, ref)
		if err != nil {
			reason := errclass.Reason(err, domain.ReasonBQError)
			log.Warn("table metadata failed", "table", name, "reason", reason, "error", errclass.Snippet(err))
			out = append(out, fail(name, reason)...)
			continue
		}
		res := domain.TableCheckResult{
			Producer:     p,
			TableID:      name,
			TableType:    info.Type,
			LastModified: info.LastModified,
			SLALocal:     sla,
			Status:       domain.StatusPass,
		}
		local := info.LastModified.In(c.Location)
		switch {
		case civil.DateOf(local) != dateLocal:
			res.Status, res.Reason = domain.StatusFail, domain.ReasonDateMismatch
		case local.After(sla):
			res.Status, res.Reason = domain.StatusFail, domain.ReasonLateAfterSLA
		}
		out = append(out, res)
	}
	return out
}

func (c TableChecker) ignored(name string) bool {
	for _, re := range c.Ignore {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (c TableChecker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
