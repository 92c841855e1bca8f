// Package aggregate folds per-producer results into groups and run totals
// under a required-vs-optional policy.
package aggregate

import (
	"sort"
	"strings"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/pkg/errors"
)

type Policy string

const (
	PolicyAll    Policy = "all"
	PolicyCZOnly Policy = "cz_only"
	PolicyNonCZ  Policy = "non_cz"
)

func ParsePolicy(v string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(v))); p {
	case PolicyAll, PolicyCZOnly, PolicyNonCZ:
		return p, nil
	default:
		return "", errors.Errorf("invalid policy %q (expected all|cz_only|non_cz)", v)
	}
}

// Scope applies a policy with the configured required country.
type Scope struct {
	Policy  Policy
	Country string
}

// Requires reports whether a failure in country counts toward the run status.
func (s Scope) Requires(country string) bool {
	match := strings.EqualFold(strings.TrimSpace(country), strings.TrimSpace(s.Country))
	switch s.Policy {
	case PolicyCZOnly:
		return match
	case PolicyNonCZ:
		return !match
	default:
		return true
	}
}

// Tally counts required and optional outcomes.
type Tally struct {
	Total          int
	Passed         int
	Failed         int
	RequiredTotal  int
	RequiredFailed int
	OptionalTotal  int
	OptionalFailed int
	Fixed          int
	Skipped        int
}

// Add records one outcome. FIXED and SKIP count as not failed.
func (t *Tally) Add(required bool, status domain.Status) {
	t.Total++
	failed := status == domain.StatusFail
	switch status {
	case domain.StatusFail:
		t.Failed++
	case domain.StatusFixed:
		t.Fixed++
	case domain.StatusSkip:
		t.Skipped++
	default:
		t.Passed++
	}
	if required {
		t.RequiredTotal++
		if failed {
			t.RequiredFailed++
		}
		return
	}
	t.OptionalTotal++
	if failed {
		t.OptionalFailed++
	}
}

// Status is FAIL iff a required item failed.
func (t Tally) Status() domain.Status {
	if t.RequiredFailed > 0 {
		return domain.StatusFail
	}
	return domain.StatusPass
}

// Apply copies the counts and status into s.
func (t Tally) Apply(s *domain.RunSummary) {
	s.Status = t.Status()
	s.Total, s.Passed, s.Failed = t.Total, t.Passed, t.Failed
	s.RequiredTotal, s.RequiredFailed = t.RequiredTotal, t.RequiredFailed
	s.OptionalTotal, s.OptionalFailed = t.OptionalTotal, t.OptionalFailed
	s.Fixed, s.Skipped = t.Fixed, t.Skipped
}

type groupKey struct {
	id   string
	mode domain.Mode
}

// Groups combines object results keyed by (group, mode), sorted by mode then
// group. A group passes when at least one member had an as-of version and the
// summed spend is positive, or when allowZero is set and the members with
// rows net to zero.
func Groups(objects []domain.ObjectResult, allowZero bool, eps float64) []domain.GroupResult {
	byKey := map[groupKey]*domain.GroupResult{}
	anyGen := map[groupKey]bool{}
	var keys []groupKey

	for _, o := range objects {
		k := groupKey{id: o.Group, mode: o.Producer.Mode}
		g, ok := byKey[k]
		if !ok {
			g = &domain.GroupResult{
				GroupID:   o.Group,
				Mode:      o.Producer.Mode,
				Country:   o.Producer.Country,
				DateStart: o.DateStart,
				SLALocal:  o.SLALocal,
			}
			byKey[k] = g
			keys = append(keys, k)
		}
		g.MembersTotal++
		if o.Status == domain.StatusPass {
			g.MembersOK++
		}
		if o.Reason == domain.ReasonNoGenerationBeforeSLA {
			g.MembersMissingGeneration++
		}
		if o.AsOf != nil {
			anyGen[k] = true
		}
		g.RowCount += o.RowCount
		g.SumSpend += o.SumSpend
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].mode != keys[j].mode {
			return keys[i].mode < keys[j].mode
		}
		return keys[i].id < keys[j].id
	})

	out := make([]domain.GroupResult, 0, len(keys))
	for _, k := range keys {
		g := byKey[k]
		switch {
		case !anyGen[k]:
			g.Status = domain.StatusFail
			g.Reason = domain.ReasonNoGenerationBeforeSLA
		case g.SumSpend > 0:
			g.Status = domain.StatusPass
		case allowZero && g.RowCount > 0 && abs(g.SumSpend) <= eps:
			g.Status = domain.StatusPass
		default:
			g.Status = domain.StatusFail
			g.Reason = domain.ReasonSumSpendNotPositive
		}
		out = append(out, *g)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
