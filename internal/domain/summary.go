package domain

const (
	GuardrailTables     = "readiness_guardrail"
	GuardrailCost       = "fb_cost_guardrail"
	GuardrailForecastD1 = "forecast_d1_readiness"
	GuardrailSelfHeal   = "forecast_self_heal"
)

// RunSummary is the top-level outcome of one guardrail invocation.
type RunSummary struct {
	RunID          string            `json:"run_id"`
	Guardrail      string            `json:"guardrail"`
	Status         Status            `json:"status"`
	Reason         string            `json:"reason,omitempty"`
	Error          string            `json:"error,omitempty"`
	DateLocal      string            `json:"date_local,omitempty"`
	Timezone       string            `json:"timezone"`
	CheckedAtUTC   string            `json:"checked_at_utc,omitempty"`
	NowLocal       string            `json:"now_local,omitempty"`
	Mode           string            `json:"mode,omitempty"`
	Slot           string            `json:"slot,omitempty"`
	RequiredPolicy string            `json:"required_policy,omitempty"`
	Schedule       string            `json:"github_event_schedule,omitempty"`
	Total          int               `json:"total"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	RequiredTotal  int               `json:"required_total"`
	RequiredFailed int               `json:"required_failed"`
	OptionalTotal  int               `json:"optional_total"`
	OptionalFailed int               `json:"optional_failed"`
	Fixed          int               `json:"fixed,omitempty"`
	Skipped        int               `json:"skipped,omitempty"`
	Policies       map[string]string `json:"policies,omitempty"`
	Artifacts      map[string]string `json:"artifacts,omitempty"`
}

const (
	ExitOK         = 0
	ExitError      = 1
	ExitCheckFails = 2
)

// ExitCode maps the summary status to the process exit code.
func (s RunSummary) ExitCode() int {
	switch s.Status {
	case StatusPass, StatusNoop:
		return ExitOK
	default:
		return ExitCheckFails
	}
}
