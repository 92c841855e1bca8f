package readiness

import (
	"context"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/fakes"
	"github.com/animus-labs/guardrails/internal/platform/logging"
	"github.com/animus-labs/guardrails/internal/platform/settings"
	"github.com/animus-labs/guardrails/internal/warehouse"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/googleapi"
)

const (
	detailTable = "proj.forecast.final_13"
	rollupTable = "proj.forecast.rollup_14"
)

var (
	patchDate     = civil.Date{Year: 2024, Month: 1, Day: 14}
	detailColumns = []string{"date", "channel", "sessions", "revenue_db", "transactions_db", "cost"}
)

func pipeline() domain.Pipeline {
	return domain.Pipeline{ProjectID: "proj", Tenant: "brand", Country: "cz", DetailTable: detailTable}
}

func forecastChecker(wh *fakes.Warehouse) ForecastChecker {
	return ForecastChecker{Warehouse: wh, Epsilon: 1e-9, Logger: logging.Discard()}
}

func wantReason(t *testing.T, res domain.ForecastResult, want string) {
	t.Helper()
	if res.Reason != want {
		t.Fatalf("reason=%q, want %q", res.Reason, want)
	}
}

func TestForecastEpsilon(t *testing.T) {
	tests := []struct {
		sessions any
		want     domain.Status
	}{
		{sessions: 0.0, want: domain.StatusFail},
		{sessions: 1e-10, want: domain.StatusFail},
		{sessions: 0.01, want: domain.StatusPass},
	}
	for _, tt := range tests {
		wh := fakes.NewWarehouse()
		wh.AddTable(detailTable, detailColumns, time.Now())
		wh.Insert(detailTable, map[string]any{"date": "2024-01-14", "sessions": tt.sessions, "revenue_db": 0, "transactions_db": 0})

		res := forecastChecker(wh).Check(context.Background(), pipeline(), patchDate)
		if res.Status != tt.want {
			t.Fatalf("sessions=%v status=%s, want %s", tt.sessions, res.Status, tt.want)
		}
		if tt.want == domain.StatusFail && res.Reason != domain.ReasonActualsZero {
			t.Fatalf("sessions=%v reason=%q, want %s", tt.sessions, res.Reason, domain.ReasonActualsZero)
		}
	}
}

func TestForecastActualsUseAbsoluteValues(t *testing.T) {
	wh := fakes.NewWarehouse()
	wh.AddTable(detailTable, detailColumns, time.Now())
	wh.Insert(detailTable, map[string]any{"date": "2024-01-14", "sessions": 0, "revenue_db": 10, "transactions_db": 1})
	wh.Insert(detailTable, map[string]any{"date": "2024-01-14", "sessions": 0, "revenue_db": -20, "transactions_db": -1})

	res := forecastChecker(wh).Check(context.Background(), pipeline(), patchDate)

	if res.Status != domain.StatusPass {
		t.Fatalf("status=%s, want PASS", res.Status)
	}
	if math.Abs(res.Detail.Totals.Revenue+10) > 1e-9 || math.Abs(res.Detail.Totals.Actuals()-10) > 1e-9 {
		t.Fatalf("revenue=%v actuals=%v, want -10 10", res.Detail.Totals.Revenue, res.Detail.Totals.Actuals())
	}
}

func TestForecastDetailFailureOrder(t *testing.T) {
	t.Run("forbidden", func(t *testing.T) {
		wh := fakes.NewWarehouse()
		wh.TableErr[detailTable] = &googleapi.Error{Code: 403, Message: "Access Denied"}
		res := forecastChecker(wh).Check(context.Background(), pipeline(), patchDate)
		if res.Reason != domain.ReasonForbidden || res.Detail.ErrorSnippet == "" {
			t.Fatalf("reason=%q snippet=%q, want forbidden with snippet", res.Reason, res.Detail.ErrorSnippet)
		}
	})
	t.Run("missing table", func(t *testing.T) {
		res := forecastChecker(fakes.NewWarehouse()).Check(context.Background(), pipeline(), patchDate)
		wantReason(t, res, domain.ReasonNotFound)
	})
	t.Run("invalid reference", func(t *testing.T) {
		p := pipeline()
		p.DetailTable = "proj.only"
		res := forecastChecker(fakes.NewWarehouse()).Check(context.Background(), p, patchDate)
		wantReason(t, res, domain.ReasonBQError)
	})
	t.Run("missing columns", func(t *testing.T) {
		wh := fakes.NewWarehouse()
		wh.AddTable(detailTable, []string{"date", "sessions"}, time.Now())
		res := forecastChecker(wh).Check(context.Background(), pipeline(), patchDate)
		wantReason(t, res, "missing_columns:revenue_db,transactions_db")
	})
	t.Run("no rows", func(t *testing.T) {
		wh := fakes.NewWarehouse()
		wh.AddTable(detailTable, detailColumns, time.Now())
		wh.Insert(detailTable, map[string]any{"date": "2024-01-13", "sessions": 5, "revenue_db": 1, "transactions_db": 1})
		res := forecastChecker(wh).Check(context.Background(), pipeline(), patchDate)
		wantReason(t, res, domain.ReasonNoRowsForDate)
	})
}

func TestForecastRollupTier(t *testing.T) {
	newWarehouse := func(rollupCols []string) *fakes.Warehouse {
		wh := fakes.NewWarehouse()
		wh.AddTable(detailTable, detailColumns, time.Now())
		wh.Insert(detailTable, map[string]any{"date": "2024-01-14", "sessions": 5, "revenue_db": 1, "transactions_db": 1})
		wh.AddTable(rollupTable, rollupCols, time.Now())
		return wh
	}
	p := pipeline()
	p.RollupTable = rollupTable

	t.Run("prefers domain filter", func(t *testing.T) {
		wh := newWarehouse([]string{"date", "domain", "country", "sessions", "revenue_db", "transactions_db"})
		wh.Insert(rollupTable,
			map[string]any{"date": "2024-01-14", "domain": "other", "country": "cz", "sessions": 5, "revenue_db": 1, "transactions_db": 1},
		)
		res := forecastChecker(wh).Check(context.Background(), p, patchDate)
		if res.Rollup == nil || res.Rollup.Filter != "domain=brand" {
			t.Fatalf("rollup=%+v, want filter domain=brand", res.Rollup)
		}
		if res.Status != domain.StatusFail {
			t.Fatalf("status=%s, want FAIL", res.Status)
		}
		wantReason(t, res, "rollup:no_rows_for_date")
	})
	t.Run("country filter", func(t *testing.T) {
		wh := newWarehouse([]string{"date", "country", "sessions", "revenue_db", "transactions_db"})
		wh.Insert(rollupTable, map[string]any{"date": "2024-01-14", "country": "cz", "sessions": 1, "revenue_db": 0, "transactions_db": 0})
		res := forecastChecker(wh).Check(context.Background(), p, patchDate)
		if res.Rollup == nil || res.Rollup.Filter != "country=cz" || res.Status != domain.StatusPass {
			t.Fatalf("rollup=%+v status=%s, want country=cz PASS", res.Rollup, res.Status)
		}
	})
	t.Run("unfiltered", func(t *testing.T) {
		wh := newWarehouse([]string{"date", "sessions", "revenue_db", "transactions_db"})
		wh.Insert(rollupTable, map[string]any{"date": "2024-01-14", "sessions": 1, "revenue_db": 0, "transactions_db": 0})
		res := forecastChecker(wh).Check(context.Background(), p, patchDate)
		if res.Rollup == nil || res.Rollup.Filter != "" || res.Status != domain.StatusPass {
			t.Fatalf("rollup=%+v status=%s, want unfiltered PASS", res.Rollup, res.Status)
		}
		if last := wh.Queries[len(wh.Queries)-1]; len(last.Filters) != 0 {
			t.Fatalf("rollup filters=%v, want none", last.Filters)
		}
	})
}

func TestForecastChannelBreakdownIsInformational(t *testing.T) {
	wh := fakes.NewWarehouse()
	wh.AddTable(detailTable, detailColumns, time.Now())
	wh.Insert(detailTable,
		map[string]any{"date": "2024-01-14", "channel": "paid", "sessions": 5, "revenue_db": 1, "transactions_db": 1, "cost": 2},
		map[string]any{"date": "2024-01-14", "channel": "organic", "sessions": 0, "revenue_db": 0, "transactions_db": 0, "cost": 0},
	)
	checker := forecastChecker(wh)
	checker.Breakdown = []settings.BreakdownTarget{{Tenant: "BRAND", Country: "CZ"}}

	res := checker.Check(context.Background(), pipeline(), patchDate)

	if res.Status != domain.StatusPass || !res.Detail.CostPresent || math.Abs(res.Detail.Totals.Cost-2) > 1e-9 {
		t.Fatalf("status=%s cost_present=%v cost=%v, want PASS true 2", res.Status, res.Detail.CostPresent, res.Detail.Totals.Cost)
	}
	if len(res.Channels) != 2 {
		t.Fatalf("channels=%+v, want 2", res.Channels)
	}
	if c := res.Channels[0]; c.Channel != "organic" || c.Reason != domain.ReasonActualsZero {
		t.Fatalf("channels[0]=%+v, want organic %s", c, domain.ReasonActualsZero)
	}
	if res.Channels[1].Status != domain.StatusPass {
		t.Fatalf("channels[1].status=%s, want PASS", res.Channels[1].Status)
	}
	want := warehouse.AggregateQuery{
		JobProject: "proj",
		Table:      warehouse.TableRef{Project: "proj", Dataset: "forecast", Table: "final_13"},
		DateColumn: "date",
		Date:       "2024-01-14",
		Metrics:    []string{"sessions", "revenue_db", "transactions_db", "cost"},
		GroupBy:    "channel",
	}
	if diff := cmp.Diff(want, wh.Queries[len(wh.Queries)-1]); diff != "" {
		t.Fatalf("breakdown query mismatch (-want +got):\n%s", diff)
	}
}
