package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusSkip  Status = "SKIP"
	StatusFixed Status = "FIXED"
	StatusNoop  Status = "NOOP"
)

// Reason codes. A reason is empty iff the status is PASS.
const (
	ReasonObjectNotFound        = "object_not_found"
	ReasonNoGenerationBeforeSLA = "no_generation_before_sla"
	ReasonSumSpendNotPositive   = "sum_spend_not_positive"
	ReasonDownloadOrParse       = "download_or_parse_error"
	ReasonMissingColumns        = "missing_columns"
	ReasonActualsZero           = "actuals_zero"
	ReasonNoRowsForDate         = "no_rows_for_date"
	ReasonDateMismatch          = "date_mismatch"
	ReasonLateAfterSLA          = "late_after_sla"
	ReasonNoTablesMatched       = "no_tables_matched"
	ReasonForbidden             = "forbidden"
	ReasonNotFound              = "not_found"
	ReasonBQError               = "bq_error"
	ReasonStorageError          = "storage_error"
	ReasonRollup                = "rollup"
	ReasonUnexpectedError       = "unexpected_error"
	ReasonOutsideWindow         = "outside_execution_window"

	ReasonFinalPrepEmpty         = "final_prep_empty"
	ReasonDryRunWouldPatch       = "dry_run_would_patch"
	ReasonCSVNoRowsForDate       = "csv_no_rows_for_date"
	ReasonNoRowsPatched          = "no_rows_patched"
	ReasonNoColumnsPatched       = "no_columns_patched"
	ReasonPatchedCols            = "patched_cols"
	ReasonException              = "exception"
	ReasonDependentTriggerFailed = "dependent_trigger_failed"
)

// WithDetail joins a reason code and its detail as "code:detail".
func WithDetail(code string, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return code
	}
	return code + ":" + detail
}

// Mode of a cost producer row.
type Mode string

const (
	ModeMerged   Mode = "merged"
	ModeSeparate Mode = "separate"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(strings.TrimSpace(value)) {
	case ModeMerged:
		return ModeMerged, nil
	case ModeSeparate:
		return ModeSeparate, nil
	default:
		return "", fmt.Errorf("invalid mode: %q (expected merged|separate)", value)
	}
}

// SLA is a local time-of-day with minute precision.
type SLA struct {
	Hour   int
	Minute int
}

func ParseSLA(value string) (SLA, error) {
	value = strings.TrimSpace(value)
	hh, mm, ok := strings.Cut(value, ":")
	if !ok || len(mm) != 2 {
		return SLA{}, fmt.Errorf("invalid sla_local_time: %q (expected HH:MM)", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return SLA{}, fmt.Errorf("invalid sla_local_time: %q (expected HH:MM)", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return SLA{}, fmt.Errorf("invalid sla_local_time: %q (expected HH:MM)", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return SLA{}, fmt.Errorf("invalid sla_local_time: %q (expected HH:MM 00:00..23:59)", value)
	}
	return SLA{Hour: hour, Minute: minute}, nil
}

func (s SLA) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// On returns the SLA instant for the given local date.
func (s SLA) On(date civil.Date, loc *time.Location) time.Time {
	return civil.DateTime{Date: date, Time: civil.Time{Hour: s.Hour, Minute: s.Minute}}.In(loc)
}

// TableProducer is one row of the table-freshness inventory.
type TableProducer struct {
	ProjectID    string
	DatasetID    string
	TablePattern string
	SLA          SLA
}

// CostProducer is one row of the cost-export inventory.
type CostProducer struct {
	GroupID   string
	Mode      Mode
	Tenant    string
	Country   string
	ObjectRef string
	SLA       SLA
}

// Group returns the grouping key; rows without a group fall back to the tenant.
func (p CostProducer) Group() string {
	if g := strings.TrimSpace(p.GroupID); g != "" {
		return g
	}
	return p.Tenant
}

// Pipeline is one row of the forecast inventory shared by forecast-d1 and self-heal.
type Pipeline struct {
	ProjectID          string
	Tenant             string
	Country            string
	Location           string
	GCSURI             string
	FinalPrepTxnsTable string
	FinalPrepCostTable string
	DetailTable        string
	DetailTransfer     string
	RollupTable        string
	RollupTransfer     string
}

// HasRollup reports whether a rollup table is configured.
func (p Pipeline) HasRollup() bool {
	return strings.TrimSpace(p.RollupTable) != ""
}

// ObjectVersion is one historical version (generation) of a storage object.
type ObjectVersion struct {
	ID      string
	Created time.Time
	Updated time.Time
}

// OrderTime is the creation time, or the update time when creation is unknown.
func (v ObjectVersion) OrderTime() time.Time {
	if !v.Created.IsZero() {
		return v.Created
	}
	return v.Updated
}
