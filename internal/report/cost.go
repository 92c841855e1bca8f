package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
)

var ObjectsHeader = []string{
	"group_id", "mode", "tenant", "country", "object_ref", "date_start", "sla_local", "status", "reason",
	"asof_generation", "asof_updated_utc", "asof_updated_local",
	"current_generation", "current_updated_utc", "current_updated_local",
	"row_count", "sum_spend",
}

var GroupsHeader = []string{
	"group_id", "mode", "country", "date_start", "sla_local", "status", "reason",
	"members_total", "members_ok", "members_missing_generation", "row_count", "sum_spend",
}

func version(v *domain.ObjectVersion, loc *time.Location) (id, utcTime, localTime string) {
	if v == nil {
		return "", "", ""
	}
	return v.ID, UTC(v.OrderTime()), local(v.OrderTime(), loc)
}

func ObjectRows(objects []domain.ObjectResult, loc *time.Location) [][]string {
	out := make([][]string, 0, len(objects))
	for _, o := range objects {
		asID, asUTC, asLocal := version(o.AsOf, loc)
		curID, curUTC, curLocal := version(o.Current, loc)
		out = append(out, []string{
			o.Group, string(o.Producer.Mode), o.Producer.Tenant, o.Producer.Country, o.Producer.ObjectRef,
			o.DateStart.String(), o.Producer.SLA.String(), string(o.Status), o.Reason,
			asID, asUTC, asLocal, curID, curUTC, curLocal,
			strconv.Itoa(o.RowCount), f6(o.SumSpend),
		})
	}
	return out
}

func GroupRows(groups []domain.GroupResult, loc *time.Location) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, []string{
			g.GroupID, string(g.Mode), g.Country, g.DateStart.String(), hhmm(g.SLALocal, loc), string(g.Status), g.Reason,
			strconv.Itoa(g.MembersTotal), strconv.Itoa(g.MembersOK), strconv.Itoa(g.MembersMissingGeneration),
			strconv.Itoa(g.RowCount), f6(g.SumSpend),
		})
	}
	return out
}

// CostMarkdown summarises groups, lists the first 50 failed groups and
// documents the readiness definition.
func CostMarkdown(m Meta, objects []domain.ObjectResult, groups []domain.GroupResult, allowZero bool) []string {
	var fails []domain.GroupResult
	for _, g := range groups {
		if g.Status == domain.StatusFail {
			fails = append(fails, g)
		}
	}

	lines := header("FB Cost Readiness Guardrail Report", m)
	lines = append(lines, counts("Groups", len(groups)-len(fails), len(fails)), "",
		"## Failures (first 50)", "",
		"| Group | SLA (local) | Reason | Members | Sum(spend) |",
		"|---|---:|---|---:|---:|",
	)
	for _, g := range first(fails, 50) {
		lines = append(lines, fmt.Sprintf("| `%s` | `%s` | `%s` | %d | %.2f |", g.GroupID, hhmm(g.SLALocal, m.Location), g.Reason, g.MembersTotal, g.SumSpend))
	}
	lines = append(lines, "",
		"## IAM (minimum)", "",
		"- The runner identity needs `roles/storage.objectViewer` (or `s3:GetObjectVersion`/`s3:ListBucketVersions`) on each target bucket.",
		"- Object versioning must be enabled to evaluate \"as-of SLA\" generations.",
		"",
		"## Notes", "",
		"- Definition: final costs ready iff `SUM(spend) > 0` for `date_start = date_local - 1`.",
	)
	if allowZero {
		lines = append(lines, "- Zero-spend policy `allow`: a group with rows for the day and a net zero sum passes.")
	} else {
		lines = append(lines, "- Zero-spend policy `fail`: a brand with truly zero spend FAILs by definition.")
	}

	objFail := 0
	for _, o := range objects {
		if o.Status == domain.StatusFail {
			objFail++
		}
	}
	lines = append(lines, "",
		"## Object checks", "",
		counts("Objects", len(objects)-objFail, objFail),
	)
	return lines
}

func hhmm(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("15:04")
}
