// Package warehouse is the table capability: dataset listing, table metadata
// and parameterised aggregate queries.
package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/animus-labs/guardrails/internal/retry"
	"github.com/pkg/errors"
)

type TableInfo struct {
	Ref          TableRef
	Type         string
	LastModified time.Time
	// Columns are lower-cased top-level field names.
	Columns []string
}

// Has reports whether the schema contains col (case-insensitive).
func (t TableInfo) Has(col string) bool {
	col = strings.ToLower(col)
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Missing returns the cols absent from the schema, in the given order.
func (t TableInfo) Missing(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if !t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Filter is an equality predicate compared as strings.
type Filter struct {
	Column string
	Value  string
}

// AggregateQuery sums Metrics over the rows of Table whose date column equals
// Date, optionally grouped by one column.
type AggregateQuery struct {
	// JobProject bills the query; empty uses the table's project.
	JobProject string
	Table      TableRef
	DateColumn string
	Date       string
	Metrics    []string
	Filters    []Filter
	GroupBy    string
}

type Row struct {
	Group    string
	RowCount int64
	Sums     map[string]float64
}

type Warehouse interface {
	ListTables(ctx context.Context, project, dataset string) ([]string, error)
	Table(ctx context.Context, ref TableRef) (TableInfo, error)
	Aggregate(ctx context.Context, q AggregateQuery) ([]Row, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	rowCountAlias = "row_count"
	groupAlias    = "grp"
	dateParam     = "d"
)

// BuildSQL renders q as standard SQL with named parameters. Identifiers are
// validated; values only travel as parameters.
func BuildSQL(q AggregateQuery) (string, map[string]string, error) {
	dateCol := q.DateColumn
	if dateCol == "" {
		dateCol = "date"
	}
	for _, ident := range append(append([]string{dateCol}, q.Metrics...), filterColumns(q.Filters)...) {
		if !identRe.MatchString(ident) {
			return "", nil, errors.Errorf("invalid column name %q", ident)
		}
	}
	if q.GroupBy != "" && !identRe.MatchString(q.GroupBy) {
		return "", nil, errors.Errorf("invalid column name %q", q.GroupBy)
	}
	if strings.ContainsAny(q.Table.String(), "`\n") {
		return "", nil, errors.Errorf("invalid table reference %q", q.Table.String())
	}

	var sel []string
	if q.GroupBy != "" {
		sel = append(sel, fmt.Sprintf("CAST(%s AS STRING) AS %s", q.GroupBy, groupAlias))
	}
	sel = append(sel, "COUNT(1) AS "+rowCountAlias)
	for _, m := range q.Metrics {
		sel = append(sel, fmt.Sprintf("IFNULL(SUM(%s), 0) AS %s_sum", m, m))
	}

	params := map[string]string{dateParam: q.Date}
	where := []string{fmt.Sprintf("CAST(%s AS STRING) = @%s", dateCol, dateParam)}
	for i, f := range q.Filters {
		name := fmt.Sprintf("f%d", i)
		where = append(where, fmt.Sprintf("CAST(%s AS STRING) = @%s", f.Column, name))
		params[name] = f.Value
	}

	sql := "SELECT " + strings.Join(sel, ", ") +
		" FROM `" + q.Table.String() + "`" +
		" WHERE " + strings.Join(where, " AND ")
	if q.GroupBy != "" {
		sql += " GROUP BY " + groupAlias + " ORDER BY " + groupAlias
	}
	return sql, params, nil
}

func filterColumns(filters []Filter) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.Column)
	}
	return out
}

// Retrying wraps a Warehouse with the retry policy and a per-attempt timeout.
type Retrying struct {
	Next    Warehouse
	Policy  retry.Policy
	Timeout time.Duration
}

func (r Retrying) ListTables(ctx context.Context, project, dataset string) ([]string, error) {
	return retry.Value(ctx, r.Policy, func(ctx context.Context) ([]string, error) {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.Next.ListTables(ctx, project, dataset)
	})
}

func (r Retrying) Table(ctx context.Context, ref TableRef) (TableInfo, error) {
	return retry.Value(ctx, r.Policy, func(ctx context.Context) (TableInfo, error) {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.Next.Table(ctx, ref)
	})
}

func (r Retrying) Aggregate(ctx context.Context, q AggregateQuery) ([]Row, error) {
	return retry.Value(ctx, r.Policy, func(ctx context.Context) ([]Row, error) {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.Next.Aggregate(ctx, q)
	})
}

func (r Retrying) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}
