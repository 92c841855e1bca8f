// Package specs parses the per-guardrail inventory CSVs into typed records.
//
// Every inventory has an exact header contract: a missing or extra column is a
// HeaderError and nothing is evaluated. Blank lines and lines starting with '#'
// are skipped.
package specs

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoRows is returned when an inventory has a header but no data rows.
var ErrNoRows = errors.New("no specs found")

type HeaderError struct {
	Source   string
	Expected []string
	Got      []string
}

func (e *HeaderError) Error() string {
	return "invalid CSV header in " + e.Source + ". Expected: [" + strings.Join(e.Expected, ",") + "]; got: [" + strings.Join(e.Got, ",") + "]"
}

// Missing returns the expected columns absent from the header.
func (e *HeaderError) Missing() []string {
	return difference(e.Expected, e.Got)
}

// Extra returns the header columns outside the expected set.
func (e *HeaderError) Extra() []string {
	return difference(e.Got, e.Expected)
}

// RowError identifies the offending data row (1-based) and column.
type RowError struct {
	Source string
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return e.Source + ": row " + strconv.Itoa(e.Row) + " column " + e.Column + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error { return e.Err }

type row struct {
	index  int
	values map[string]string
}

func (r row) get(col string) string {
	return r.values[col]
}

func (r row) trimmed(col string) string {
	return strings.TrimSpace(r.values[col])
}

func openAndRead(path string, expected []string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config csv")
	}
	defer func() { _ = f.Close() }()
	return readRows(f, path, expected)
}

func readRows(r io.Reader, source string, expected []string) ([]row, error) {
	filtered, err := stripComments(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}

	cr := csv.NewReader(strings.NewReader(filtered))
	header, err := cr.Read()
	if err == io.EOF {
		return nil, &HeaderError{Source: source, Expected: sortedCopy(expected)}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", source)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if !sameSet(header, expected) {
		return nil, &HeaderError{Source: source, Expected: sortedCopy(expected), Got: header}
	}

	var rows []row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", source)
		}
		values := make(map[string]string, len(header))
		for i, col := range header {
			values[col] = rec[i]
		}
		rows = append(rows, row{index: len(rows) + 1, values: values})
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrNoRows, source)
	}
	return rows, nil
}

func stripComments(r io.Reader) (string, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), sc.Err()
}

func sameSet(got []string, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]struct{}, len(got))
	for _, g := range got {
		if _, dup := seen[g]; dup {
			return false
		}
		seen[g] = struct{}{}
	}
	for _, w := range want {
		if _, ok := seen[w]; !ok {
			return false
		}
	}
	return true
}

func difference(a []string, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
