// Package readiness evaluates producers against their SLA: object content as
// of an SLA instant, table freshness and two-tier table aggregates.
package readiness

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/generation"
	"github.com/animus-labs/guardrails/internal/storage"
	"github.com/pkg/errors"
)

type ZeroSpendPolicy string

const (
	// ZeroSpendFail fails an object whose spend sums to zero.
	ZeroSpendFail ZeroSpendPolicy = "fail"
	// ZeroSpendAllow passes an object with rows for the day and a net zero sum.
	ZeroSpendAllow ZeroSpendPolicy = "allow"
)

func ParseZeroSpendPolicy(v string) (ZeroSpendPolicy, error) {
	switch ZeroSpendPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", ZeroSpendFail:
		return ZeroSpendFail, nil
	case ZeroSpendAllow:
		return ZeroSpendAllow, nil
	default:
		return "", errors.Errorf("invalid zero spend policy %q (expected fail|allow)", v)
	}
}

// ObjectChecker verifies the cost export of a producer as it existed at the
// SLA instant.
type ObjectChecker struct {
	Store     storage.Store
	Location  *time.Location
	ZeroSpend ZeroSpendPolicy
	Epsilon   float64
	Logger    *slog.Logger
}

// Check evaluates p for the run date dateLocal. The export covers
// dateLocal-1 and must have been written by the SLA on dateLocal.
func (c ObjectChecker) Check(ctx context.Context, p domain.CostProducer, dateLocal civil.Date) domain.ObjectResult {
	res := domain.ObjectResult{
		Producer:  p,
		Group:     p.Group(),
		DateStart: dateLocal.AddDays(-1),
		SLALocal:  p.SLA.On(dateLocal, c.Location),
		Status:    domain.StatusFail,
	}
	log := c.logger().With("object", p.ObjectRef, "tenant", p.Tenant, "country", p.Country)

	uri, err := storage.ParseURI(p.ObjectRef)
	if err != nil {
		res.Reason = domain.ReasonStorageError
		log.Warn("invalid object reference", "error", err)
		return res
	}

	versions, err := c.Store.ListVersions(ctx, uri)
	if err != nil {
		res.Reason = errclass.Reason(err, domain.ReasonStorageError)
		log.Warn("list object versions failed", "reason", res.Reason, "error", errclass.Snippet(err))
		return res
	}

	resolved := generation.Resolve(versions, res.SLALocal)
	res.AsOf, res.Current = resolved.AsOf, resolved.Current
	if !resolved.Found() {
		res.Reason = domain.ReasonObjectNotFound
		return res
	}
	if resolved.AsOf == nil {
		res.Reason = domain.ReasonNoGenerationBeforeSLA
		return res
	}

	data, err := c.Store.ReadVersion(ctx, uri, resolved.AsOf.ID)
	if err != nil {
		kind := errclass.Classify(err)
		res.Reason = domain.WithDetail(domain.ReasonDownloadOrParse, string(kind))
		log.Warn("read object version failed", "version", resolved.AsOf.ID, "error", errclass.Snippet(err))
		return res
	}
	rows, sum, err := sumSpend(data, res.DateStart.String(), log)
	if err != nil {
		res.Reason = domain.WithDetail(domain.ReasonDownloadOrParse, "parse")
		log.Warn("parse cost export failed", "version", resolved.AsOf.ID, "error", err)
		return res
	}
	res.RowCount, res.SumSpend = rows, sum

	switch {
	case sum > 0:
		res.Status, res.Reason = domain.StatusPass, ""
	case c.ZeroSpend == ZeroSpendAllow && rows > 0 && math.Abs(sum) <= c.Epsilon:
		res.Status, res.Reason = domain.StatusPass, ""
	default:
		res.Reason = domain.ReasonSumSpendNotPositive
	}
	return res
}

func (c ObjectChecker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// sumSpend counts the rows whose date_start equals day and sums their spend.
// Unparseable spend values count as zero.
func sumSpend(data []byte, day string, log *slog.Logger) (int, float64, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, errors.New("empty export")
		}
		return 0, 0, errors.Wrap(err, "read header")
	}
	dateIdx, spendIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "date_start":
			dateIdx = i
		case "spend":
			spendIdx = i
		}
	}
	if dateIdx < 0 || spendIdx < 0 {
		return 0, 0, errors.Errorf("missing required columns date_start/spend (got %v)", header)
	}

	var (
		rows int
		sum  float64
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, errors.Wrap(err, "read row")
		}
		if field(rec, dateIdx) != day {
			continue
		}
		rows++
		raw := field(rec, spendIdx)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Warn("unparseable spend value", "value", raw, "date_start", day)
			continue
		}
		sum += v
	}
	return rows, sum, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
