package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/animus-labs/guardrails/internal/domain"
)

var titles = map[string]string{
	domain.GuardrailTables:     "Readiness guardrail",
	domain.GuardrailCost:       "FB cost readiness",
	domain.GuardrailForecastD1: "Forecast D-1 readiness",
	domain.GuardrailSelfHeal:   "Forecast self-heal",
}

func statusIcon(s domain.Status) string {
	switch s {
	case domain.StatusFail:
		return "🚨"
	case domain.StatusNoop:
		return "💤"
	default:
		return "✅"
	}
}

// SummaryText renders a run summary as Slack mrkdwn: a status line, the
// context fields and a counts table.
func SummaryText(s domain.RunSummary) string {
	title, ok := titles[s.Guardrail]
	if !ok {
		title = s.Guardrail
	}
	lines := []string{fmt.Sprintf("%s *%s*: *%s*", statusIcon(s.Status), Escape(title), s.Status)}

	var ctx []string
	add := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			ctx = append(ctx, fmt.Sprintf("%s `%s`", k, Escape(v)))
		}
	}
	add("date", s.DateLocal)
	add("tz", s.Timezone)
	add("slot", s.Slot)
	add("policy", s.RequiredPolicy)
	add("run", s.RunID)
	if len(ctx) > 0 {
		lines = append(lines, strings.Join(ctx, " · "))
	}
	if s.Reason != "" {
		lines = append(lines, "reason: "+Escape(s.Reason))
	}
	if s.Status == domain.StatusNoop {
		return strings.Join(lines, "\n")
	}

	itoa := strconv.Itoa
	table := RenderTable(title, []Row{
		{Label: "", Cells: []string{"total", "pass", "fail", "fixed", "req", "opt"}},
		{Label: "count", Cells: []string{itoa(s.Total), itoa(s.Passed), itoa(s.Failed), itoa(s.Fixed), itoa(s.RequiredTotal), itoa(s.OptionalTotal)}},
		{Label: "failed", Cells: []string{"", "", itoa(s.Failed), "", itoa(s.RequiredFailed), itoa(s.OptionalFailed)}},
	}, DefaultCellWidth, DefaultMaxChars)
	lines = append(lines, table)
	return strings.Join(lines, "\n")
}
