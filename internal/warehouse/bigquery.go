package warehouse

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/api/iterator"
)

// BigQuery keeps one client per project for the lifetime of a run.
type BigQuery struct {
	clients   map[string]*bigquery.Client
	newClient func(ctx context.Context, project string) (*bigquery.Client, error)
}

func NewBigQuery() *BigQuery {
	return &BigQuery{
		clients: map[string]*bigquery.Client{},
		newClient: func(ctx context.Context, project string) (*bigquery.Client, error) {
			return bigquery.NewClient(ctx, project)
		},
	}
}

func (b *BigQuery) client(ctx context.Context, project string) (*bigquery.Client, error) {
	if c, ok := b.clients[project]; ok {
		return c, nil
	}
	c, err := b.newClient(ctx, project)
	if err != nil {
		return nil, errors.Wrapf(err, "bigquery client for %s", project)
	}
	b.clients[project] = c
	return c, nil
}

func (b *BigQuery) ListTables(ctx context.Context, project, dataset string) ([]string, error) {
	c, err := b.client(ctx, project)
	if err != nil {
		return nil, err
	}
	it := c.DatasetInProject(project, dataset).Tables(ctx)
	var out []string
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "list tables in %s.%s", project, dataset)
		}
		out = append(out, t.TableID)
	}
	return out, nil
}

func (b *BigQuery) Table(ctx context.Context, ref TableRef) (TableInfo, error) {
	c, err := b.client(ctx, ref.Project)
	if err != nil {
		return TableInfo{}, err
	}
	md, err := c.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table).Metadata(ctx)
	if err != nil {
		return TableInfo{}, errors.Wrapf(err, "table metadata %s", ref)
	}
	info := TableInfo{Ref: ref, Type: string(md.Type), LastModified: md.LastModifiedTime}
	for _, f := range md.Schema {
		info.Columns = append(info.Columns, strings.ToLower(strings.TrimSpace(f.Name)))
	}
	return info, nil
}

func (b *BigQuery) Aggregate(ctx context.Context, q AggregateQuery) ([]Row, error) {
	sql, params, err := BuildSQL(q)
	if err != nil {
		return nil, err
	}
	project := q.JobProject
	if project == "" {
		project = q.Table.Project
	}
	c, err := b.client(ctx, project)
	if err != nil {
		return nil, err
	}

	query := c.Query(sql)
	for name, value := range params {
		query.Parameters = append(query.Parameters, bigquery.QueryParameter{Name: name, Value: value})
	}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", q.Table)
	}

	var out []Row
	for {
		var rec map[string]bigquery.Value
		err := it.Next(&rec)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read rows of %s", q.Table)
		}
		row := Row{Sums: make(map[string]float64, len(q.Metrics))}
		row.RowCount = int64(toFloat(rec[rowCountAlias]))
		if q.GroupBy != "" {
			if v, ok := rec[groupAlias].(string); ok {
				row.Group = v
			}
		}
		for _, m := range q.Metrics {
			row.Sums[m] = toFloat(rec[m+"_sum"])
		}
		out = append(out, row)
	}
	return out, nil
}

func (b *BigQuery) Close() error {
	var err error
	for _, c := range b.clients {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func toFloat(v bigquery.Value) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case int64:
		return float64(x)
	case float64:
		return x
	case *big.Rat:
		f, _ := x.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
