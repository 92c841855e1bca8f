package aggregate

import (
	"testing"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestScopeRequires(t *testing.T) {
	tests := []struct {
		scope   Scope
		country string
		want    bool
	}{
		{scope: Scope{Policy: PolicyCZOnly, Country: "cz"}, country: "CZ", want: true},
		{scope: Scope{Policy: PolicyCZOnly, Country: "cz"}, country: "sk", want: false},
		{scope: Scope{Policy: PolicyNonCZ, Country: "cz"}, country: "cz", want: false},
		{scope: Scope{Policy: PolicyNonCZ, Country: "cz"}, country: "pl", want: true},
		{scope: Scope{Policy: PolicyAll, Country: "cz"}, country: "pl", want: true},
	}
	for _, tt := range tests {
		if got := tt.scope.Requires(tt.country); got != tt.want {
			t.Fatalf("%s.Requires(%q)=%v, want %v", tt.scope.Policy, tt.country, got, tt.want)
		}
	}
}

func TestOptionalFailureNeverFlipsStatus(t *testing.T) {
	scope := Scope{Policy: PolicyCZOnly, Country: "cz"}

	var optionalOnly Tally
	optionalOnly.Add(scope.Requires("cz"), domain.StatusPass)
	optionalOnly.Add(scope.Requires("sk"), domain.StatusFail)
	optionalOnly.Add(scope.Requires("hu"), domain.StatusFail)
	if optionalOnly.Status() != domain.StatusPass || optionalOnly.OptionalFailed != 2 {
		t.Fatalf("status=%s optional_failed=%d, want PASS 2", optionalOnly.Status(), optionalOnly.OptionalFailed)
	}

	var required Tally
	required.Add(scope.Requires("sk"), domain.StatusPass)
	required.Add(scope.Requires("cz"), domain.StatusFail)
	if required.Status() != domain.StatusFail {
		t.Fatalf("status=%s, want FAIL", required.Status())
	}

	var s domain.RunSummary
	required.Apply(&s)
	if s.Status != domain.StatusFail || s.Total != 2 || s.RequiredFailed != 1 || s.OptionalTotal != 1 {
		t.Fatalf("summary=%+v, want FAIL total=2 required_failed=1 optional_total=1", s)
	}
}

func TestTallyCountsFixedAndSkipped(t *testing.T) {
	var tally Tally
	tally.Add(true, domain.StatusFixed)
	tally.Add(true, domain.StatusSkip)
	tally.Add(true, domain.StatusPass)
	if diff := cmp.Diff(Tally{Total: 3, Passed: 1, Fixed: 1, Skipped: 1, RequiredTotal: 3}, tally); diff != "" {
		t.Fatalf("tally mismatch (-want +got):\n%s", diff)
	}
	if tally.Status() != domain.StatusPass {
		t.Fatalf("status=%s, want PASS", tally.Status())
	}
}

func TestGroupsMergeMembersAndSort(t *testing.T) {
	gen := &domain.ObjectVersion{ID: "7"}
	objects := []domain.ObjectResult{
		{Producer: domain.CostProducer{Mode: domain.ModeSeparate, Country: "cz"}, Group: "zeta", Status: domain.StatusPass, AsOf: gen, RowCount: 2, SumSpend: 5},
		{Producer: domain.CostProducer{Mode: domain.ModeMerged, Country: "cz"}, Group: "beta", Status: domain.StatusFail, Reason: domain.ReasonNoGenerationBeforeSLA},
		{Producer: domain.CostProducer{Mode: domain.ModeMerged, Country: "cz"}, Group: "alpha", Status: domain.StatusPass, AsOf: gen, RowCount: 1, SumSpend: 2},
		{Producer: domain.CostProducer{Mode: domain.ModeMerged, Country: "cz"}, Group: "alpha", Status: domain.StatusFail, Reason: domain.ReasonSumSpendNotPositive, AsOf: gen, RowCount: 1, SumSpend: -1},
	}

	got := Groups(objects, false, 1e-9)

	type row struct {
		ID      string
		Mode    domain.Mode
		Status  domain.Status
		Reason  string
		Total   int
		OK      int
		Missing int
		Sum     float64
	}
	var rows []row
	for _, g := range got {
		rows = append(rows, row{g.GroupID, g.Mode, g.Status, g.Reason, g.MembersTotal, g.MembersOK, g.MembersMissingGeneration, g.SumSpend})
	}
	want := []row{
		{"alpha", domain.ModeMerged, domain.StatusPass, "", 2, 1, 0, 1},
		{"beta", domain.ModeMerged, domain.StatusFail, domain.ReasonNoGenerationBeforeSLA, 1, 0, 1, 0},
		{"zeta", domain.ModeSeparate, domain.StatusPass, "", 1, 1, 0, 5},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupsZeroSpend(t *testing.T) {
	objects := []domain.ObjectResult{
		{Producer: domain.CostProducer{Mode: domain.ModeMerged}, Group: "g", AsOf: &domain.ObjectVersion{ID: "1"}, RowCount: 3},
	}
	if got := Groups(objects, false, 1e-9)[0].Reason; got != domain.ReasonSumSpendNotPositive {
		t.Fatalf("reason=%q, want %q", got, domain.ReasonSumSpendNotPositive)
	}
	if got := Groups(objects, true, 1e-9)[0].Status; got != domain.StatusPass {
		t.Fatalf("allow zero status=%s, want PASS", got)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" CZ_ONLY ")
	if err != nil || p != PolicyCZOnly {
		t.Fatalf("ParsePolicy=%q err=%v, want cz_only", p, err)
	}
	if _, err := ParsePolicy("some"); err == nil {
		t.Fatalf("ParsePolicy(some) err=nil, want error")
	}
}
