// Package generation picks the as-of and current versions from an object's
// version history.
package generation

import (
	"sort"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
)

// Resolution holds the version that was current at the as-of instant and the
// newest version overall. Either is nil when absent.
type Resolution struct {
	AsOf    *domain.ObjectVersion
	Current *domain.ObjectVersion
}

// Found reports whether the object had any version at all.
func (r Resolution) Found() bool {
	return r.Current != nil
}

// Resolve orders versions by creation time (update time when creation is
// unknown, ties by id). The input slice is not modified.
func Resolve(versions []domain.ObjectVersion, asOf time.Time) Resolution {
	if len(versions) == 0 {
		return Resolution{}
	}
	ordered := append([]domain.ObjectVersion(nil), versions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].OrderTime(), ordered[j].OrderTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ordered[i].ID < ordered[j].ID
	})

	current := ordered[len(ordered)-1]
	res := Resolution{Current: &current}
	for i := len(ordered) - 1; i >= 0; i-- {
		if !ordered[i].OrderTime().After(asOf) {
			v := ordered[i]
			res.AsOf = &v
			break
		}
	}
	return res
}
