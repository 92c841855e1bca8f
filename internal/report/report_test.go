package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func mustContain(t *testing.T, doc string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(doc, w) {
			t.Fatalf("missing %q in:\n%s", w, doc)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestCanonicalSortsKeys(t *testing.T) {
	got, err := Canonical(domain.RunSummary{Guardrail: "g", Status: domain.StatusPass, Timezone: "UTC", Artifacts: map[string]string{"b": "2", "a": "1"}})
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	want := `{
  "artifacts": {
    "a": "1",
    "b": "2"
  },
  "failed": 0,
  "guardrail": "g",
  "optional_failed": 0,
  "optional_total": 0,
  "passed": 0,
  "required_failed": 0,
  "required_total": 0,
  "run_id": "",
  "status": "PASS",
  "timezone": "UTC",
  "total": 0
}
`
	if string(got) != want {
		t.Fatalf("Canonical=\n%s\nwant\n%s", got, want)
	}
}

func TestEmitterWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	e := Emitter{Dir: dir}

	path, err := e.CSV("x.csv", []string{"a", "b"}, [][]string{{"1", "two, three"}})
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if got := readFile(t, path); got != "a,b\n1,\"two, three\"\n" {
		t.Fatalf("csv=%q", got)
	}

	path, err = e.Markdown("x.md", []string{"# T", "", ""})
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if got := readFile(t, path); got != "# T\n" {
		t.Fatalf("markdown=%q, want trailing blank lines trimmed", got)
	}
}

func TestTablesMarkdown(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	p := domain.TableProducer{ProjectID: "p", DatasetID: "d", TablePattern: "t_%", SLA: domain.SLA{Hour: 8}}
	idle := domain.TableProducer{ProjectID: "a", DatasetID: "d", TablePattern: "x", SLA: domain.SLA{Hour: 9}}
	results := []domain.TableCheckResult{
		{Producer: p, TableID: "t_1", Status: domain.StatusPass},
		{Producer: p, TableID: "t_2", Status: domain.StatusFail, Reason: domain.ReasonLateAfterSLA, LastModified: time.Date(2024, 1, 14, 22, 50, 0, 0, time.UTC)},
	}
	m := Meta{DateLocal: "2024-01-14", Timezone: "Europe/Prague", CheckedAt: time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), Status: domain.StatusFail, Location: loc}

	md := strings.Join(TablesMarkdown(m, []domain.TableProducer{p, idle}, results), "\n")

	mustContain(t, md,
		"- Status: **🚨 FAIL**",
		"- Tables: 1 PASS / 1 FAIL (total: 2)",
		"| `a` | `d` | `x` | `09:00` | 0 | 0 |\n| `p` | `d` | `t_%` | `08:00` | 2 | 1 |",
		"| `p` | `d` | `t_2` | `2024-01-14T23:50:00+01:00` | `08:00` | `late_after_sla` |",
		"- Checked at (UTC): `2024-01-15T07:00:00Z`",
	)
}

func TestCostArtifacts(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	sla := time.Date(2024, 1, 15, 10, 0, 0, 0, loc)
	o := domain.ObjectResult{
		Producer:  domain.CostProducer{Mode: domain.ModeMerged, Tenant: "brand", Country: "cz", ObjectRef: "gs://b/o.csv", SLA: domain.SLA{Hour: 10}},
		Group:     "brand",
		DateStart: civil.Date{Year: 2024, Month: 1, Day: 14},
		SLALocal:  sla,
		Status:    domain.StatusPass,
		AsOf:      &domain.ObjectVersion{ID: "17", Created: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		Current:   &domain.ObjectVersion{ID: "18", Created: time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)},
		RowCount:  2,
		SumSpend:  15,
	}
	rows := ObjectRows([]domain.ObjectResult{o}, loc)
	if len(rows) != 1 || len(rows[0]) != len(ObjectsHeader) {
		t.Fatalf("rows=%v, want one row of %d columns", rows, len(ObjectsHeader))
	}
	if diff := cmp.Diff([]string{"17", "2024-01-15T08:30:00Z", "2024-01-15T09:30:00+01:00"}, rows[0][9:12]); diff != "" {
		t.Fatalf("generation columns mismatch (-want +got):\n%s", diff)
	}
	if rows[0][16] != "15.000000" {
		t.Fatalf("sum_spend=%q", rows[0][16])
	}

	g := domain.GroupResult{GroupID: "brand", Mode: domain.ModeMerged, SLALocal: sla, Status: domain.StatusFail, Reason: domain.ReasonSumSpendNotPositive, MembersTotal: 2, SumSpend: -1.25}
	md := strings.Join(CostMarkdown(Meta{Status: domain.StatusFail, Location: loc}, []domain.ObjectResult{o}, []domain.GroupResult{g}, false), "\n")
	mustContain(t, md,
		"| `brand` | `10:00` | `sum_spend_not_positive` | 2 | -1.25 |",
		"- Objects: 1 PASS / 0 FAIL (total: 1)",
		"Zero-spend policy `fail`",
	)
	if n := len(GroupRows([]domain.GroupResult{g}, loc)[0]); n != len(GroupsHeader) {
		t.Fatalf("group row has %d columns, want %d", n, len(GroupsHeader))
	}
}

func TestForecastArtifacts(t *testing.T) {
	results := []domain.ForecastResult{
		{
			Pipeline: domain.Pipeline{ProjectID: "p", Tenant: "t1", Country: "cz"},
			Required: true, Status: domain.StatusFail, Reason: "rollup:no_rows_for_date",
			Detail: domain.TierResult{Table: "p.d.t13", RowCount: 4, Totals: domain.Totals{Sessions: 1, Revenue: -2}},
			Rollup: &domain.TierResult{Table: "p.d.t14", Filter: "domain=t1", Status: domain.StatusFail, Reason: domain.ReasonNoRowsForDate},
			Channels: []domain.ChannelResult{{Channel: "paid", Status: domain.StatusFail, Reason: domain.ReasonActualsZero}},
		},
		{Pipeline: domain.Pipeline{ProjectID: "p", Tenant: "t2", Country: "sk"}, Status: domain.StatusFail, Reason: domain.ReasonActualsZero},
	}
	rows := ForecastRows(results)
	for i, row := range rows {
		if len(row) != len(ForecastHeader) {
			t.Fatalf("row %d has %d columns, want %d", i, len(row), len(ForecastHeader))
		}
	}
	if rows[0][14] != "3.000000" || rows[0][18] != "domain=t1" {
		t.Fatalf("actuals=%q rollup_filter=%q, want 3.000000 domain=t1", rows[0][14], rows[0][18])
	}
	if n := len(ChannelRows(results)); n != 1 {
		t.Fatalf("channel rows=%d, want 1", n)
	}

	s := domain.RunSummary{Slot: "08", RequiredPolicy: "cz_only", RequiredTotal: 1, RequiredFailed: 1, OptionalTotal: 1, OptionalFailed: 1}
	md := strings.Join(ForecastMarkdown(Meta{Status: domain.StatusFail}, s, results), "\n")
	mustContain(t, md,
		"- Slot: `08`",
		"- Required: 0 PASS / 1 FAIL (total: 1)",
		"## Required failures (first 20)",
		"| `p` | `t1` | `cz` | `p.d.t13` | `rollup:no_rows_for_date` | 4 | 3.000000 | 0.000000 |",
		"## Optional failures (first 20)",
		"## Channel breakdown (informational)",
	)
}

func TestSelfHealArtifacts(t *testing.T) {
	records := []domain.PatchRecord{
		{Pipeline: domain.Pipeline{ProjectID: "p", Tenant: "t", Country: "cz", RollupTable: "p.d.r"}, Status: domain.StatusFixed, Reason: "patched_cols=cost", MissingMetrics: []string{"cost"}, TriggeredDetail: true},
		{Pipeline: domain.Pipeline{ProjectID: "p", RollupTransfer: "cfg14"}, Status: domain.StatusFail, Reason: "dependent_trigger_failed:forbidden"},
	}
	rows := SelfHealRows(records)
	if len(rows[0]) != len(SelfHealHeader) {
		t.Fatalf("row has %d columns, want %d", len(rows[0]), len(SelfHealHeader))
	}
	if rows[1][9] != "cfg14" || rows[0][18] != "yes" {
		t.Fatalf("bq_table_14=%q triggered_13=%q, want cfg14 yes", rows[1][9], rows[0][18])
	}

	md := strings.Join(SelfHealMarkdown(Meta{Status: domain.StatusFail}, domain.RunSummary{Slot: "all", Total: 2, Fixed: 1, Failed: 1}, records), "\n")
	mustContain(t, md,
		"- Pipelines: 2 total / 1 fixed / 1 fail / 0 skip",
		"| `p` | `` | `` | `dependent_trigger_failed:forbidden` |",
		"| `p` | `t` | `cz` | `cost` | `yes` | `no` |",
	)
}
