package domain

import (
	"math"
	"time"

	"cloud.google.com/go/civil"
)

// ObjectResult is the outcome of one cost producer evaluated against its object.
type ObjectResult struct {
	Producer  CostProducer
	Group     string
	DateStart civil.Date
	SLALocal  time.Time
	Status    Status
	Reason    string
	AsOf      *ObjectVersion
	Current   *ObjectVersion
	RowCount  int
	SumSpend  float64
}

// GroupResult aggregates the object results of one (group, mode) key.
type GroupResult struct {
	GroupID                  string
	Mode                     Mode
	Country                  string
	DateStart                civil.Date
	SLALocal                 time.Time
	Status                   Status
	Reason                   string
	MembersTotal             int
	MembersOK                int
	MembersMissingGeneration int
	SumSpend                 float64
	RowCount                 int
}

// TableCheckResult is the freshness outcome of one matched table (or of a producer
// that matched nothing).
type TableCheckResult struct {
	Producer     TableProducer
	TableID      string
	TableType    string
	LastModified time.Time
	SLALocal     time.Time
	Status       Status
	Reason       string
}

// Totals are the summed forecast metrics of a table slice.
type Totals struct {
	Sessions     float64
	Revenue      float64
	Transactions float64
	Cost         float64
}

// Actuals is |sessions| + |revenue| + |transactions|. Refunds make revenue and
// transactions legitimately negative, so the signed sum can cancel to zero.
func (t Totals) Actuals() float64 {
	return math.Abs(t.Sessions) + math.Abs(t.Revenue) + math.Abs(t.Transactions)
}

// TierResult is the outcome of one table tier of a forecast check.
type TierResult struct {
	Table        string
	Filter       string
	Status       Status
	Reason       string
	RowCount     int64
	Totals       Totals
	CostPresent  bool
	ErrorSnippet string
}

// ChannelResult is one informational per-channel row of the breakdown check.
type ChannelResult struct {
	Channel  string
	RowCount int64
	Totals   Totals
	Status   Status
	Reason   string
}

// ForecastResult is the D-1 readiness outcome of one pipeline.
type ForecastResult struct {
	Pipeline  Pipeline
	Slot      string
	Policy    string
	PatchDate civil.Date
	Required  bool
	Status    Status
	Reason    string
	Detail    TierResult
	Rollup    *TierResult
	Channels  []ChannelResult
}

// PatchRecord is the self-heal outcome of one pipeline.
type PatchRecord struct {
	Pipeline           Pipeline
	RunMode            string
	PatchDate          civil.Date
	Status             Status
	Reason             string
	Upstream           Totals
	Downstream         Totals
	MissingMetrics     []string
	PatchedColumns     []string
	PatchedRows        int
	TriggeredDetail    bool
	TriggeredDependent bool
	ErrorSnippet       string
}
