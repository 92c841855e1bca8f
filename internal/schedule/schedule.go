// Package schedule maps the literal cron expression that triggered a run to a
// named local slot.
//
// A scheduler firing UTC crons cannot follow daylight saving, so every local
// slot is scheduled twice (once per offset). The table lists which literal cron
// stands for which slot under which UTC offset; the cron that does not belong
// to the current offset resolves to Noop.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/platform/settings"
)

const (
	Noop   = "noop"
	Auto   = "auto"
	Manual = "manual"

	// AnySchedule as an entry cron matches any non-empty schedule value.
	AnySchedule = "*"
)

type Slot struct {
	Name   string
	Start  time.Duration
	Window time.Duration
}

// Contains reports whether the local time of now lies in [Start, Start+Window).
func (s Slot) Contains(now time.Time) bool {
	tod := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute + time.Duration(now.Second())*time.Second
	return tod >= s.Start && tod < s.Start+s.Window
}

type Entry struct {
	Offset time.Duration
	Cron   string
	Slot   string
}

type Table struct {
	Slots      []Slot
	Entries    []Entry
	ManualSlot string
	Policies   map[string]string
}

// FromSettings validates a configured slot table.
func FromSettings(cfg settings.Schedule) (Table, error) {
	t := Table{ManualSlot: strings.TrimSpace(cfg.ManualSlot), Policies: map[string]string{}}
	names := map[string]struct{}{}
	for i, s := range cfg.Slots {
		name := strings.TrimSpace(s.Name)
		if name == "" || name == Noop {
			return Table{}, fmt.Errorf("slots[%d].name is invalid: %q", i, s.Name)
		}
		if _, dup := names[name]; dup {
			return Table{}, fmt.Errorf("slots[%d].name must be unique (duplicate %q)", i, name)
		}
		start, err := domain.ParseSLA(s.Start)
		if err != nil {
			return Table{}, fmt.Errorf("slots[%d].start: %w", i, err)
		}
		if s.Window <= 0 {
			return Table{}, fmt.Errorf("slots[%d].window must be positive", i)
		}
		names[name] = struct{}{}
		t.Slots = append(t.Slots, Slot{
			Name:   name,
			Start:  time.Duration(start.Hour)*time.Hour + time.Duration(start.Minute)*time.Minute,
			Window: s.Window,
		})
	}
	for i, e := range cfg.Entries {
		offset, err := ParseOffset(e.UTCOffset)
		if err != nil {
			return Table{}, fmt.Errorf("entries[%d].utc_offset: %w", i, err)
		}
		slot := strings.TrimSpace(e.Slot)
		if _, ok := names[slot]; !ok {
			return Table{}, fmt.Errorf("entries[%d].slot unknown: %q", i, e.Slot)
		}
		cron := NormalizeCron(e.Cron)
		if cron == "" {
			return Table{}, fmt.Errorf("entries[%d].cron is required", i)
		}
		t.Entries = append(t.Entries, Entry{Offset: offset, Cron: cron, Slot: slot})
	}
	for slot, policy := range cfg.Policies {
		t.Policies[strings.TrimSpace(slot)] = strings.TrimSpace(policy)
	}
	if t.ManualSlot == "" {
		return Table{}, fmt.Errorf("manual_slot is required")
	}
	return t, nil
}

// Infer returns the slot executing at now, or Noop. It never fails.
func (t Table) Infer(now time.Time, schedule string) string {
	schedule = NormalizeCron(schedule)
	if schedule == "" {
		for _, s := range t.Slots {
			if s.Contains(now) {
				return s.Name
			}
		}
		return Noop
	}

	_, offsetSeconds := now.Zone()
	offset := time.Duration(offsetSeconds) * time.Second
	for _, e := range t.Entries {
		if e.Offset != offset {
			continue
		}
		if e.Cron == schedule {
			return e.Slot
		}
		if e.Cron == AnySchedule {
			if s, ok := t.slot(e.Slot); ok && s.Contains(now) {
				return e.Slot
			}
		}
	}
	return Noop
}

// Resolve applies an execution mode: Manual selects ManualSlot, Auto infers,
// and a slot name (or ManualSlot) selects itself.
func (t Table) Resolve(mode string, now time.Time, schedule string) (string, error) {
	mode = strings.TrimSpace(mode)
	switch mode {
	case Auto:
		return t.Infer(now, schedule), nil
	case Manual, t.ManualSlot:
		return t.ManualSlot, nil
	}
	if _, ok := t.slot(mode); ok {
		return mode, nil
	}
	return "", fmt.Errorf("invalid mode: %q", mode)
}

// Policy returns the policy configured for slot, or def.
func (t Table) Policy(slot string, def string) string {
	if p, ok := t.Policies[slot]; ok && p != "" {
		return p
	}
	return def
}

func (t Table) slot(name string) (Slot, bool) {
	for _, s := range t.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// NormalizeCron collapses runs of whitespace.
func NormalizeCron(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}

// ParseOffset parses "+01:00", "-05:30" or "Z".
func ParseOffset(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "Z" || v == "+00:00" || v == "-00:00" {
		return 0, nil
	}
	if len(v) != 6 || (v[0] != '+' && v[0] != '-') || v[3] != ':' {
		return 0, fmt.Errorf("invalid utc offset %q (expected +HH:MM)", v)
	}
	hh, err := strconv.Atoi(v[1:3])
	if err != nil || hh > 14 {
		return 0, fmt.Errorf("invalid utc offset %q (expected +HH:MM)", v)
	}
	mm, err := strconv.Atoi(v[4:6])
	if err != nil || mm > 59 {
		return 0, fmt.Errorf("invalid utc offset %q (expected +HH:MM)", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if v[0] == '-' {
		d = -d
	}
	return d, nil
}
