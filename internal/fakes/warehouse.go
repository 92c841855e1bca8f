package fakes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/guardrails/internal/warehouse"
	"github.com/pkg/errors"
)

type table struct {
	info warehouse.TableInfo
	rows []map[string]string
}

// Warehouse evaluates aggregate queries over in-memory rows.
type Warehouse struct {
	ListErr      map[string]error
	TableErr     map[string]error
	AggregateErr map[string]error

	Calls   int
	Queries []warehouse.AggregateQuery

	datasets map[string][]string
	tables   map[string]*table
}

func NewWarehouse() *Warehouse {
	return &Warehouse{
		ListErr:      map[string]error{},
		TableErr:     map[string]error{},
		AggregateErr: map[string]error{},
		datasets:     map[string][]string{},
		tables:       map[string]*table{},
	}
}

// AddTable registers ref with a schema and last-modified time.
func (w *Warehouse) AddTable(ref string, columns []string, modified time.Time) {
	r, err := warehouse.ParseTableRef(ref)
	if err != nil {
		panic(err)
	}
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, strings.ToLower(c))
	}
	w.tables[r.String()] = &table{info: warehouse.TableInfo{Ref: r, Type: "TABLE", LastModified: modified, Columns: cols}}
	key := r.Project + "." + r.Dataset
	w.datasets[key] = append(w.datasets[key], r.Table)
}

// Insert appends rows; values are formatted with %v.
func (w *Warehouse) Insert(ref string, rows ...map[string]any) {
	t, ok := w.tables[ref]
	if !ok {
		panic("unknown table " + ref)
	}
	for _, row := range rows {
		rec := make(map[string]string, len(row))
		for k, v := range row {
			rec[strings.ToLower(k)] = fmt.Sprint(v)
		}
		t.rows = append(t.rows, rec)
	}
}

// Replace drops every row of ref whose date column equals date.
func (w *Warehouse) Replace(ref string, date string, rows ...map[string]any) {
	t, ok := w.tables[ref]
	if !ok {
		panic("unknown table " + ref)
	}
	kept := t.rows[:0]
	for _, r := range t.rows {
		if r["date"] != date {
			kept = append(kept, r)
		}
	}
	t.rows = kept
	w.Insert(ref, rows...)
}

func (w *Warehouse) ListTables(_ context.Context, project, dataset string) ([]string, error) {
	w.Calls++
	key := project + "." + dataset
	if err := w.ListErr[key]; err != nil {
		return nil, err
	}
	return append([]string(nil), w.datasets[key]...), nil
}

func (w *Warehouse) Table(_ context.Context, ref warehouse.TableRef) (warehouse.TableInfo, error) {
	w.Calls++
	if err := w.TableErr[ref.String()]; err != nil {
		return warehouse.TableInfo{}, err
	}
	t, ok := w.tables[ref.String()]
	if !ok {
		return warehouse.TableInfo{}, errors.Errorf("Not found: Table %s was not found", ref)
	}
	return t.info, nil
}

func (w *Warehouse) Aggregate(_ context.Context, q warehouse.AggregateQuery) ([]warehouse.Row, error) {
	w.Calls++
	w.Queries = append(w.Queries, q)
	if _, _, err := warehouse.BuildSQL(q); err != nil {
		return nil, err
	}
	if err := w.AggregateErr[q.Table.String()]; err != nil {
		return nil, err
	}
	t, ok := w.tables[q.Table.String()]
	if !ok {
		return nil, errors.Errorf("Not found: Table %s was not found", q.Table)
	}
	for _, m := range q.Metrics {
		if !t.info.Has(m) {
			return nil, errors.Errorf("Unrecognized name: %s", m)
		}
	}
	dateCol := q.DateColumn
	if dateCol == "" {
		dateCol = "date"
	}

	groups := map[string]*warehouse.Row{}
	for _, rec := range t.rows {
		if rec[dateCol] != q.Date {
			continue
		}
		if !matches(rec, q.Filters) {
			continue
		}
		key := ""
		if q.GroupBy != "" {
			key = rec[strings.ToLower(q.GroupBy)]
		}
		g, ok := groups[key]
		if !ok {
			g = &warehouse.Row{Group: key, Sums: map[string]float64{}}
			groups[key] = g
		}
		g.RowCount++
		for _, m := range q.Metrics {
			f, _ := strconv.ParseFloat(rec[m], 64)
			g.Sums[m] += f
		}
	}

	if q.GroupBy == "" {
		if g, ok := groups[""]; ok {
			return []warehouse.Row{*g}, nil
		}
		row := warehouse.Row{Sums: map[string]float64{}}
		for _, m := range q.Metrics {
			row.Sums[m] = 0
		}
		return []warehouse.Row{row}, nil
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]warehouse.Row, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out, nil
}

func matches(rec map[string]string, filters []warehouse.Filter) bool {
	for _, f := range filters {
		if rec[strings.ToLower(f.Column)] != f.Value {
			return false
		}
	}
	return true
}
