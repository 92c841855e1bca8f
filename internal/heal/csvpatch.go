package heal

import (
	"bytes"
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var bom = []byte("\ufeff")

// ErrMissingKeyColumns is returned for an export without date or channel.
var ErrMissingKeyColumns = errors.New("CSV missing required columns: date/channel")

type PatchResult struct {
	Data    []byte
	Rows    int
	Columns []string
}

type export struct {
	bom     bool
	header  []string
	records [][]string
	index   map[string]int
}

func readExport(data []byte) (*export, error) {
	e := &export{bom: bytes.HasPrefix(data, bom), index: map[string]int{}}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, bom)))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingKeyColumns
		}
		return nil, errors.Wrap(err, "read export header")
	}
	e.header = header
	for i, h := range header {
		e.index[strings.TrimSpace(h)] = i
	}
	if _, ok := e.index["date"]; !ok {
		return nil, ErrMissingKeyColumns
	}
	if _, ok := e.index["channel"]; !ok {
		return nil, ErrMissingKeyColumns
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read export row")
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		e.records = append(e.records, rec)
	}
	return e, nil
}

func (e *export) value(rec []string, col string) string {
	return strings.TrimSpace(rec[e.index[col]])
}

// Channels lists the channel labels of rows dated date, in first-seen order,
// deduplicated by ChannelKey.
func Channels(data []byte, date string) ([]string, error) {
	e, err := readExport(data)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, rec := range e.records {
		if e.value(rec, "date") != date {
			continue
		}
		ch := e.value(rec, "channel")
		if ch == "" || seen[ChannelKey(ch)] {
			continue
		}
		seen[ChannelKey(ch)] = true
		out = append(out, ch)
	}
	return out, nil
}

// Patch rewrites the rows dated date with actuals keyed by ChannelKey. Only
// columns already in the header change; rows of unknown channels get zeros.
func Patch(data []byte, date string, actuals map[string]map[string]string) (PatchResult, error) {
	e, err := readExport(data)
	if err != nil {
		return PatchResult{}, err
	}

	var res PatchResult
	touched := map[string]bool{}
	for _, rec := range e.records {
		if e.value(rec, "date") != date {
			continue
		}
		values, known := actuals[ChannelKey(e.value(rec, "channel"))]
		for _, col := range ActualColumns {
			i, ok := e.index[col]
			if !ok {
				continue
			}
			if known {
				rec[i] = values[col]
			} else {
				rec[i] = "0"
			}
			touched[col] = true
		}
		res.Rows++
	}
	for col := range touched {
		res.Columns = append(res.Columns, col)
	}
	sort.Strings(res.Columns)

	var buf bytes.Buffer
	if e.bom {
		buf.Write(bom)
	}
	w := csv.NewWriter(&buf)
	if err := w.Write(e.header); err != nil {
		return PatchResult{}, errors.Wrap(err, "write export header")
	}
	if err := w.WriteAll(e.records); err != nil {
		return PatchResult{}, errors.Wrap(err, "write export rows")
	}
	res.Data = buf.Bytes()
	return res, nil
}
