package heal

import (
	"math"
	"strconv"
	"strings"

	"github.com/animus-labs/guardrails/internal/domain"
)

// Metrics are the per-channel sums of one upstream table.
type Metrics map[string]float64

var (
	TxnMetrics  = []string{"sessions", "quantity_db", "revenue_db", "revenue_with_vat_db", "buyprice_db", "margin_db", "transactions_db"}
	CostMetrics = []string{"clicks", "cost", "impressions"}

	// ActualColumns are the export columns a patch may rewrite.
	ActualColumns = append(append([]string(nil), TxnMetrics...), CostMetrics...)
)

var integerColumns = map[string]bool{
	"sessions":        true,
	"quantity_db":     true,
	"transactions_db": true,
	"clicks":          true,
	"impressions":     true,
}

// floatShares are redistributed by weight; quantity and transactions go
// through LargestRemainder.
var floatShares = []string{"revenue_db", "revenue_with_vat_db", "buyprice_db", "margin_db", "sessions"}

// ChannelKey normalises a channel label for matching.
func ChannelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Upstream holds final_prep sums keyed by ChannelKey.
type Upstream struct {
	Txns map[string]Metrics
	Cost map[string]Metrics
}

// Totals sums sessions, revenue and transactions over the txns table and
// cost over the cost table.
func (u Upstream) Totals() domain.Totals {
	var t domain.Totals
	for _, m := range u.Txns {
		t.Sessions += m["sessions"]
		t.Revenue += m["revenue_db"]
		t.Transactions += m["transactions_db"]
	}
	for _, m := range u.Cost {
		t.Cost += m["cost"]
	}
	return t
}

// BuildActuals returns the formatted replacement values per target channel
// key. When the unattributed bucket exists upstream but not among the
// targets, its transaction metrics are spread across the targets by positive
// revenue share, then session share, then uniformly.
func BuildActuals(targets []string, up Upstream, unattributed string, eps float64) map[string]map[string]string {
	values := make([]Metrics, len(targets))
	targetSet := map[string]bool{}
	for i, ch := range targets {
		key := ChannelKey(ch)
		targetSet[key] = true
		m := Metrics{}
		for _, col := range TxnMetrics {
			m[col] = up.Txns[key][col]
		}
		for _, col := range CostMetrics {
			m[col] = up.Cost[key][col]
		}
		values[i] = m
	}

	unKey := ChannelKey(unattributed)
	if bucket, ok := up.Txns[unKey]; ok && !targetSet[unKey] && len(targets) > 0 {
		weights := positive(values, "revenue_db")
		if sum(weights) <= 0 {
			weights = positive(values, "sessions")
		}
		if sum(weights) <= 0 {
			weights = make([]float64, len(values))
			for i := range weights {
				weights[i] = 1
			}
		}
		total := sum(weights)
		for i := range values {
			share := weights[i] / total
			for _, col := range floatShares {
				values[i][col] += share * bucket[col]
			}
		}
		for _, col := range []string{"quantity_db", "transactions_db"} {
			alloc := LargestRemainder(int64(math.Round(bucket[col])), weights)
			for i := range values {
				values[i][col] += float64(alloc[i])
			}
		}
	}

	out := make(map[string]map[string]string, len(targets))
	for i, ch := range targets {
		row := make(map[string]string, len(ActualColumns))
		for _, col := range ActualColumns {
			row[col] = FormatValue(col, values[i][col], eps)
		}
		out[ChannelKey(ch)] = row
	}
	return out
}

// FormatValue renders integer columns rounded and float columns in shortest
// decimal form, with near-zero values written as "0".
func FormatValue(col string, v float64, eps float64) string {
	if integerColumns[col] {
		return strconv.FormatInt(int64(math.Round(v)), 10)
	}
	if math.Abs(v) < eps {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func positive(values []Metrics, col string) []float64 {
	out := make([]float64, len(values))
	for i, m := range values {
		out[i] = math.Max(0, m[col])
	}
	return out
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
