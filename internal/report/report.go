// Package report renders guardrail outcomes as CSV, Markdown and canonical
// JSON artifacts.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/pkg/errors"
)

// Artifact suffixes; the file name is "<guardrail>_<suffix>".
const (
	SuffixReportCSV  = "report.csv"
	SuffixObjectsCSV = "objects.csv"
	SuffixGroupsCSV  = "groups.csv"
	SuffixChannelCSV = "channels.csv"
	SuffixReportMD   = "report.md"
	SuffixSummary    = "summary.json"
)

func Name(guardrail, suffix string) string {
	return guardrail + "_" + suffix
}

// Meta is the header shared by every Markdown report.
type Meta struct {
	DateLocal string
	Timezone  string
	CheckedAt time.Time
	Status    domain.Status
	Location  *time.Location
}

// Emitter writes artifacts under Dir.
type Emitter struct {
	Dir string
}

func (e Emitter) create(name string, data []byte) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output dir %s", e.Dir)
	}
	path := filepath.Join(e.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

func (e Emitter) CSV(name string, header []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", errors.Wrapf(err, "encode %s", name)
	}
	if err := w.WriteAll(rows); err != nil {
		return "", errors.Wrapf(err, "encode %s", name)
	}
	return e.create(name, buf.Bytes())
}

func (e Emitter) Markdown(name string, lines []string) (string, error) {
	return e.create(name, []byte(strings.TrimRight(strings.Join(lines, "\n"), " \n\t")+"\n"))
}

// JSON writes v with sorted keys, two-space indent and a trailing newline.
func (e Emitter) JSON(name string, v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", errors.Wrapf(err, "encode %s", name)
	}
	return e.create(name, data)
}

// Canonical encodes v as JSON with object keys sorted at every level.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func f6(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// UTC renders t as second-precision RFC 3339 in UTC; zero is empty.
func UTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func local(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Truncate(time.Second).Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func statusBadge(s domain.Status) string {
	switch s {
	case domain.StatusFail:
		return "🚨 FAIL"
	case domain.StatusNoop:
		return "NOOP"
	default:
		return "✅ PASS"
	}
}

func header(title string, m Meta, extra ...string) []string {
	lines := []string{"# " + title, ""}
	lines = append(lines, extra...)
	lines = append(lines,
		fmt.Sprintf("- Date (local): `%s` (`%s`)", m.DateLocal, m.Timezone),
		fmt.Sprintf("- Checked at (UTC): `%s`", UTC(m.CheckedAt)),
		"",
		"## Summary",
		fmt.Sprintf("- Status: **%s**", statusBadge(m.Status)),
	)
	return lines
}

func counts(label string, pass, fail int) string {
	return fmt.Sprintf("- %s: %d PASS / %d FAIL (total: %d)", label, pass, fail, pass+fail)
}
