package warehouse

import (
	"strings"

	"github.com/pkg/errors"
)

// TableRef is a fully-qualified project.dataset.table reference. The table
// part keeps its raw spacing; some legacy tables carry a leading space.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

func ParseTableRef(raw string) (TableRef, error) {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) != 3 {
		return TableRef{}, errors.Errorf("invalid table reference %q (expected project.dataset.table)", raw)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return TableRef{}, errors.Errorf("invalid table reference %q (expected project.dataset.table)", raw)
		}
	}
	return TableRef{
		Project: strings.TrimSpace(parts[0]),
		Dataset: strings.TrimSpace(parts[1]),
		Table:   strings.TrimRight(parts[2], " \t\r\n"),
	}, nil
}

func (t TableRef) String() string {
	return t.Project + "." + t.Dataset + "." + t.Table
}
