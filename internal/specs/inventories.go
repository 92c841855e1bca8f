package specs

import (
	"io"
	"strings"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/storage"
	"github.com/animus-labs/guardrails/internal/warehouse"
	"github.com/pkg/errors"
)

var (
	TableColumns = []string{"project_id", "dataset_id", "table_pattern", "sla_local_time"}
	CostColumns  = []string{"group_id", "mode", "tenant", "country", "object_ref", "sla_local_time"}

	PipelineColumns = []string{
		"project_id",
		"tenant",
		"country",
		"location",
		"gcs_uri",
		"final_prep_txns_table",
		"final_prep_cost_table",
		"bq_table_13",
		"dts_config_13",
		"bq_table_14",
		"dts_config_14",
	}
)

func LoadTables(path string) ([]domain.TableProducer, error) {
	rows, err := openAndRead(path, TableColumns)
	if err != nil {
		return nil, err
	}
	return parseTables(rows, path)
}

func ParseTables(r io.Reader, source string) ([]domain.TableProducer, error) {
	rows, err := readRows(r, source, TableColumns)
	if err != nil {
		return nil, err
	}
	return parseTables(rows, source)
}

func parseTables(rows []row, source string) ([]domain.TableProducer, error) {
	out := make([]domain.TableProducer, 0, len(rows))
	for _, r := range rows {
		p := domain.TableProducer{
			ProjectID:    r.trimmed("project_id"),
			DatasetID:    r.trimmed("dataset_id"),
			TablePattern: r.trimmed("table_pattern"),
		}
		for _, col := range []string{"project_id", "dataset_id", "table_pattern"} {
			if r.trimmed(col) == "" {
				return nil, rowErr(source, r, col, errors.New("value is required"))
			}
		}
		sla, err := domain.ParseSLA(r.get("sla_local_time"))
		if err != nil {
			return nil, rowErr(source, r, "sla_local_time", err)
		}
		p.SLA = sla
		out = append(out, p)
	}
	return out, nil
}

func LoadCost(path string) ([]domain.CostProducer, error) {
	rows, err := openAndRead(path, CostColumns)
	if err != nil {
		return nil, err
	}
	return parseCost(rows, path)
}

func ParseCost(r io.Reader, source string) ([]domain.CostProducer, error) {
	rows, err := readRows(r, source, CostColumns)
	if err != nil {
		return nil, err
	}
	return parseCost(rows, source)
}

func parseCost(rows []row, source string) ([]domain.CostProducer, error) {
	out := make([]domain.CostProducer, 0, len(rows))
	for _, r := range rows {
		mode, err := domain.ParseMode(r.get("mode"))
		if err != nil {
			return nil, rowErr(source, r, "mode", err)
		}
		if r.trimmed("tenant") == "" {
			return nil, rowErr(source, r, "tenant", errors.New("value is required"))
		}
		if _, err := storage.ParseURI(r.get("object_ref")); err != nil {
			return nil, rowErr(source, r, "object_ref", err)
		}
		sla, err := domain.ParseSLA(r.get("sla_local_time"))
		if err != nil {
			return nil, rowErr(source, r, "sla_local_time", err)
		}
		out = append(out, domain.CostProducer{
			GroupID:   r.trimmed("group_id"),
			Mode:      mode,
			Tenant:    r.trimmed("tenant"),
			Country:   r.trimmed("country"),
			ObjectRef: r.trimmed("object_ref"),
			SLA:       sla,
		})
	}
	return out, nil
}

func LoadPipelines(path string) ([]domain.Pipeline, error) {
	rows, err := openAndRead(path, PipelineColumns)
	if err != nil {
		return nil, err
	}
	return parsePipelines(rows, path)
}

func ParsePipelines(r io.Reader, source string) ([]domain.Pipeline, error) {
	rows, err := readRows(r, source, PipelineColumns)
	if err != nil {
		return nil, err
	}
	return parsePipelines(rows, source)
}

func parsePipelines(rows []row, source string) ([]domain.Pipeline, error) {
	out := make([]domain.Pipeline, 0, len(rows))
	for _, r := range rows {
		if r.trimmed("project_id") == "" {
			return nil, rowErr(source, r, "project_id", errors.New("value is required"))
		}
		if r.trimmed("bq_table_13") == "" {
			return nil, rowErr(source, r, "bq_table_13", errors.New("value is required"))
		}
		if v := r.trimmed("gcs_uri"); v != "" {
			if _, err := storage.ParseURI(v); err != nil {
				return nil, rowErr(source, r, "gcs_uri", err)
			}
		}
		for _, col := range []string{"final_prep_txns_table", "final_prep_cost_table", "bq_table_13", "bq_table_14"} {
			if strings.TrimSpace(r.get(col)) == "" {
				continue
			}
			if _, err := warehouse.ParseTableRef(r.get(col)); err != nil {
				return nil, rowErr(source, r, col, err)
			}
		}
		out = append(out, domain.Pipeline{
			ProjectID:          r.trimmed("project_id"),
			Tenant:             r.trimmed("tenant"),
			Country:            r.trimmed("country"),
			Location:           r.trimmed("location"),
			GCSURI:             r.trimmed("gcs_uri"),
			FinalPrepTxnsTable: r.get("final_prep_txns_table"),
			FinalPrepCostTable: r.get("final_prep_cost_table"),
			DetailTable:        r.get("bq_table_13"),
			DetailTransfer:     r.trimmed("dts_config_13"),
			RollupTable:        r.get("bq_table_14"),
			RollupTransfer:     r.trimmed("dts_config_14"),
		})
	}
	return out, nil
}

func rowErr(source string, r row, col string, err error) error {
	return &RowError{Source: source, Row: r.index, Column: col, Err: err}
}
