package specs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestParseTablesSkipsCommentsAndBlankLines(t *testing.T) {
	in := `# producers
project_id,dataset_id,table_pattern,sla_local_time

  # indented comment
proj-a,analytics,events_%,08:00
proj-b,mart,daily,23:59
`
	got, err := ParseTables(strings.NewReader(in), "tables.csv")
	if err != nil {
		t.Fatalf("ParseTables: %v", err)
	}
	want := []domain.TableProducer{
		{ProjectID: "proj-a", DatasetID: "analytics", TablePattern: "events_%", SLA: domain.SLA{Hour: 8}},
		{ProjectID: "proj-b", DatasetID: "mart", TablePattern: "daily", SLA: domain.SLA{Hour: 23, Minute: 59}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("producers mismatch (-want +got):\n%s", diff)
	}
}

func headerError(t *testing.T, err error) *HeaderError {
	t.Helper()
	var herr *HeaderError
	if !errors.As(err, &herr) {
		t.Fatalf("err=%v, want *HeaderError", err)
	}
	return herr
}

func rowError(t *testing.T, err error) *RowError {
	t.Helper()
	var rerr *RowError
	if !errors.As(err, &rerr) {
		t.Fatalf("err=%v, want *RowError", err)
	}
	return rerr
}

func TestHeaderMissingColumnIsHeaderError(t *testing.T) {
	in := "project_id,dataset_id,table_pattern\nproj,ds,t\n"
	_, err := ParseTables(strings.NewReader(in), "tables.csv")

	herr := headerError(t, err)
	if diff := cmp.Diff([]string{"sla_local_time"}, herr.Missing()); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
	if len(herr.Extra()) != 0 {
		t.Fatalf("extra=%v, want none", herr.Extra())
	}
	if !strings.Contains(err.Error(), "invalid CSV header in tables.csv") {
		t.Fatalf("err=%q, want the file name", err)
	}
}

func TestHeaderExtraColumnIsHeaderError(t *testing.T) {
	in := "group_id,mode,tenant,country,object_ref,sla_local_time,owner\n"
	_, err := ParseCost(strings.NewReader(in), "cost.csv")

	if diff := cmp.Diff([]string{"owner"}, headerError(t, err).Extra()); diff != "" {
		t.Fatalf("extra mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderOrderIndependent(t *testing.T) {
	in := "sla_local_time,object_ref,country,tenant,mode,group_id\n10:00,gs://bucket/fb/spend.csv,cz,brand,merged,\n"
	got, err := ParseCost(strings.NewReader(in), "cost.csv")
	if err != nil || len(got) != 1 {
		t.Fatalf("ParseCost=%v err=%v, want one producer", got, err)
	}
	p := got[0]
	if p.Group() != "brand" || p.Mode != domain.ModeMerged || p.ObjectRef != "gs://bucket/fb/spend.csv" {
		t.Fatalf("producer=%+v", p)
	}
}

func TestParseCostRowErrors(t *testing.T) {
	header := "group_id,mode,tenant,country,object_ref,sla_local_time\n"
	tests := []struct {
		name string
		row  string
		col  string
	}{
		{name: "bad mode", row: "g,joined,brand,cz,gs://b/o.csv,10:00", col: "mode"},
		{name: "bad sla", row: "g,merged,brand,cz,gs://b/o.csv,25:00", col: "sla_local_time"},
		{name: "bad uri", row: "g,merged,brand,cz,http://b/o.csv,10:00", col: "object_ref"},
		{name: "missing object", row: "g,merged,brand,cz,gs://b/,10:00", col: "object_ref"},
		{name: "missing tenant", row: "g,merged, ,cz,gs://b/o.csv,10:00", col: "tenant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := header + "g,merged,brand,cz,s3://b/ok.csv,10:00\n" + tt.row + "\n"
			_, err := ParseCost(strings.NewReader(in), "cost.csv")

			rerr := rowError(t, err)
			if rerr.Row != 2 || rerr.Column != tt.col {
				t.Fatalf("row=%d column=%q, want 2 %q", rerr.Row, rerr.Column, tt.col)
			}
		})
	}
}

func TestParsePipelinesPreservesTableSpacing(t *testing.T) {
	in := strings.Join(PipelineColumns, ",") + "\n" +
		" proj , brand , cz ,EU, gs://exports/brand/cz.csv ,proj.final_prep_si. 8_join_txns,proj.final_prep_si.cost,proj.forecast.bq13,123,proj.forecast.bq14, 456 \n"
	got, err := ParsePipelines(strings.NewReader(in), "pipelines.csv")
	if err != nil || len(got) != 1 {
		t.Fatalf("ParsePipelines=%v err=%v, want one pipeline", got, err)
	}

	p := got[0]
	if p.ProjectID != "proj" || p.Tenant != "brand" || p.GCSURI != "gs://exports/brand/cz.csv" {
		t.Fatalf("pipeline=%+v, want trimmed identity fields", p)
	}
	if p.FinalPrepTxnsTable != "proj.final_prep_si. 8_join_txns" {
		t.Fatalf("txns table=%q, want inner spacing kept", p.FinalPrepTxnsTable)
	}
	if p.RollupTransfer != "456" || !p.HasRollup() {
		t.Fatalf("rollup transfer=%q has_rollup=%v", p.RollupTransfer, p.HasRollup())
	}
}

func TestParsePipelinesRejectsBadTableRef(t *testing.T) {
	in := strings.Join(PipelineColumns, ",") + "\n" +
		"proj,brand,cz,EU,gs://exports/cz.csv,proj.fp.txns,proj.fp.cost,forecast_bq13,123,,\n"
	_, err := ParsePipelines(strings.NewReader(in), "pipelines.csv")

	if rerr := rowError(t, err); rerr.Column != "bq_table_13" {
		t.Fatalf("column=%q, want bq_table_13", rerr.Column)
	}
}

func TestEmptyInventoryIsError(t *testing.T) {
	_, err := ParseTables(strings.NewReader("project_id,dataset_id,table_pattern,sla_local_time\n# nothing\n"), "tables.csv")
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("err=%v, want ErrNoRows", err)
	}

	_, err = ParseTables(strings.NewReader(""), "tables.csv")
	headerError(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.csv")
	if err := os.WriteFile(path, []byte("project_id,dataset_id,table_pattern,sla_local_time\np,d,t,07:30\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadTables(path)
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if got[0].SLA != (domain.SLA{Hour: 7, Minute: 30}) {
		t.Fatalf("sla=%v, want 07:30", got[0].SLA)
	}
	if _, err := LoadTables(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("LoadTables(missing) err=nil, want error")
	}
}
