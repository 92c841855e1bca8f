package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
)

var TablesHeader = []string{
	"project_id", "dataset_id", "table_pattern", "table_id", "table_type",
	"last_modified_utc", "last_modified_local", "sla_local", "status", "reason",
}

func TablesRows(results []domain.TableCheckResult, loc *time.Location) [][]string {
	out := make([][]string, 0, len(results))
	for _, r := range results {
		out = append(out, []string{
			r.Producer.ProjectID, r.Producer.DatasetID, r.Producer.TablePattern, r.TableID, r.TableType,
			UTC(r.LastModified), local(r.LastModified, loc), r.Producer.SLA.String(), string(r.Status), r.Reason,
		})
	}
	return out
}

type producerKey struct {
	project, dataset, pattern, sla string
}

// TablesMarkdown lists per-producer totals, the first 50 failures and the
// minimum IAM grants.
func TablesMarkdown(m Meta, producers []domain.TableProducer, results []domain.TableCheckResult) []string {
	type stats struct{ total, fail int }
	byProducer := map[producerKey]*stats{}
	for _, s := range producers {
		byProducer[producerKey{s.ProjectID, s.DatasetID, s.TablePattern, s.SLA.String()}] = &stats{}
	}
	var fails []domain.TableCheckResult
	for _, r := range results {
		k := producerKey{r.Producer.ProjectID, r.Producer.DatasetID, r.Producer.TablePattern, r.Producer.SLA.String()}
		st, ok := byProducer[k]
		if !ok {
			st = &stats{}
			byProducer[k] = st
		}
		st.total++
		if r.Status == domain.StatusFail {
			st.fail++
			fails = append(fails, r)
		}
	}

	lines := header("Readiness Guardrail Report", m)
	lines = append(lines, counts("Tables", len(results)-len(fails), len(fails)), "",
		"## Specs", "",
		"| Project | Dataset | Pattern | SLA (local) | Tables | Failures |",
		"|---|---|---|---:|---:|---:|",
	)
	keys := make([]producerKey, 0, len(byProducer))
	for k := range byProducer {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.project != b.project {
			return a.project < b.project
		}
		if a.dataset != b.dataset {
			return a.dataset < b.dataset
		}
		if a.pattern != b.pattern {
			return a.pattern < b.pattern
		}
		return a.sla < b.sla
	})
	for _, k := range keys {
		st := byProducer[k]
		lines = append(lines, fmt.Sprintf("| `%s` | `%s` | `%s` | `%s` | %d | %d |", k.project, k.dataset, k.pattern, k.sla, st.total, st.fail))
	}
	lines = append(lines, "")

	if len(fails) > 0 {
		lines = append(lines, "## Failures (first 50)", "",
			"| Project | Dataset | Table | Last Modified (local) | SLA | Reason |",
			"|---|---|---|---:|---:|---|",
		)
		for _, r := range first(fails, 50) {
			lines = append(lines, fmt.Sprintf("| `%s` | `%s` | `%s` | `%s` | `%s` | `%s` |",
				r.Producer.ProjectID, r.Producer.DatasetID, r.TableID, local(r.LastModified, m.Location), r.Producer.SLA, r.Reason))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "## IAM (minimum)", "",
		"- The runner identity needs `roles/bigquery.metadataViewer` on each target dataset.",
		"- This guardrail runs no BigQuery jobs (no `roles/bigquery.jobUser` expected).",
	)
	return lines
}

func first[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}
