// Package settings loads the optional guardrail settings file over built-in
// defaults.
package settings

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Settings struct {
	Retry               Retry             `koanf:"retry"`
	Epsilon             float64           `koanf:"epsilon"`
	Forecast            Schedule          `koanf:"forecast"`
	SelfHeal            Schedule          `koanf:"self_heal"`
	Breakdown           []BreakdownTarget `koanf:"breakdown"`
	DependentTrigger    DependentTrigger  `koanf:"dependent_trigger"`
	UnattributedChannel string            `koanf:"unattributed_channel"`
	RequiredCountry     string            `koanf:"required_country"`
}

type Retry struct {
	Attempts int           `koanf:"attempts"`
	Initial  time.Duration `koanf:"initial"`
	Max      time.Duration `koanf:"max"`
}

// Schedule is the slot table of one schedule-gated guardrail.
type Schedule struct {
	Slots      []Slot            `koanf:"slots"`
	Entries    []Entry           `koanf:"entries"`
	ManualSlot string            `koanf:"manual_slot"`
	Policies   map[string]string `koanf:"policies"`
}

type Slot struct {
	Name   string        `koanf:"name"`
	Start  string        `koanf:"start"`
	Window time.Duration `koanf:"window"`
}

// Entry maps a literal UTC cron under one UTC offset to a slot. Cron "*"
// matches any schedule value.
type Entry struct {
	UTCOffset string `koanf:"utc_offset"`
	Cron      string `koanf:"cron"`
	Slot      string `koanf:"slot"`
}

type BreakdownTarget struct {
	Tenant  string `koanf:"tenant"`
	Country string `koanf:"country"`
}

type DependentTrigger struct {
	Projects    []string      `koanf:"projects"`
	SettleDelay time.Duration `koanf:"settle_delay"`
}

func Defaults() Settings {
	return Settings{
		Retry:   Retry{Attempts: 5, Initial: 2 * time.Second, Max: 30 * time.Second},
		Epsilon: 1e-9,
		Forecast: Schedule{
			Slots: []Slot{
				{Name: "08", Start: "08:00", Window: time.Hour},
				{Name: "10", Start: "10:00", Window: time.Hour},
				{Name: "15", Start: "15:00", Window: time.Hour},
			},
			Entries: []Entry{
				{UTCOffset: "+01:00", Cron: "0 7 * * *", Slot: "08"},
				{UTCOffset: "+01:00", Cron: "0 9 * * *", Slot: "10"},
				{UTCOffset: "+01:00", Cron: "0 14 * * *", Slot: "15"},
				{UTCOffset: "+02:00", Cron: "0 6 * * *", Slot: "08"},
				{UTCOffset: "+02:00", Cron: "0 8 * * *", Slot: "10"},
				{UTCOffset: "+02:00", Cron: "0 13 * * *", Slot: "15"},
			},
			ManualSlot: "15",
			Policies:   map[string]string{"08": "cz_only", "10": "cz_only", "15": "all"},
		},
		SelfHeal: Schedule{
			// 16m covers minutes 00 through 15 inclusive.
			Slots: []Slot{
				{Name: "cz_morning", Start: "06:00", Window: 16 * time.Minute},
				{Name: "noncz_afternoon", Start: "14:00", Window: 16 * time.Minute},
			},
			Entries: []Entry{
				{UTCOffset: "+01:00", Cron: "0 5 * * *", Slot: "cz_morning"},
				{UTCOffset: "+01:00", Cron: "0 13 * * *", Slot: "noncz_afternoon"},
				{UTCOffset: "+02:00", Cron: "0 4 * * *", Slot: "cz_morning"},
				{UTCOffset: "+02:00", Cron: "0 12 * * *", Slot: "noncz_afternoon"},
			},
			ManualSlot: "all",
			Policies:   map[string]string{"cz_morning": "cz_only", "noncz_afternoon": "non_cz", "all": "all"},
		},
		DependentTrigger: DependentTrigger{
			Projects:    []string{"cerano-main"},
			SettleDelay: 90 * time.Second,
		},
		UnattributedChannel: "not_in_ga4",
		RequiredCountry:     "cz",
	}
}

// listKeys are replaced wholesale when present in the file.
var listKeys = map[string]func(*Settings){
	"forecast.slots":             func(s *Settings) { s.Forecast.Slots = nil },
	"forecast.entries":           func(s *Settings) { s.Forecast.Entries = nil },
	"self_heal.slots":            func(s *Settings) { s.SelfHeal.Slots = nil },
	"self_heal.entries":          func(s *Settings) { s.SelfHeal.Entries = nil },
	"breakdown":                  func(s *Settings) { s.Breakdown = nil },
	"dependent_trigger.projects": func(s *Settings) { s.DependentTrigger.Projects = nil },
}

// Load reads path (.json, .yaml or .yml) over Defaults. An empty path returns
// the defaults.
func Load(path string) (Settings, error) {
	cfg := Defaults()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parser = json.Parser()
	case ".yaml", ".yml":
		parser = YAMLParser()
	default:
		return Settings{}, errors.Errorf("settings %s: unsupported extension (expected .json, .yaml or .yml)", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Settings{}, errors.Wrapf(err, "load settings %s", path)
	}
	for key, reset := range listKeys {
		if k.Exists(key) {
			reset(&cfg)
		}
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Settings{}, errors.Wrapf(err, "decode settings %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, errors.Wrapf(err, "settings %s", path)
	}
	return cfg, nil
}

func (s Settings) Validate() error {
	if s.Retry.Attempts < 1 {
		return errors.New("retry.attempts must be >= 1")
	}
	if s.Retry.Initial < 0 || s.Retry.Max < s.Retry.Initial {
		return errors.New("retry.initial must be >= 0 and <= retry.max")
	}
	if s.Epsilon < 0 {
		return errors.New("epsilon must be >= 0")
	}
	if s.DependentTrigger.SettleDelay < 0 {
		return errors.New("dependent_trigger.settle_delay must be >= 0")
	}
	if strings.TrimSpace(s.UnattributedChannel) == "" {
		return errors.New("unattributed_channel is required")
	}
	for name, sched := range map[string]Schedule{"forecast": s.Forecast, "self_heal": s.SelfHeal} {
		if strings.TrimSpace(sched.ManualSlot) == "" {
			return errors.Errorf("%s.manual_slot is required", name)
		}
		if len(sched.Slots) == 0 {
			return errors.Errorf("%s.slots must not be empty", name)
		}
	}
	return nil
}
