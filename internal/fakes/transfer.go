package fakes

import (
	"context"
	"time"
)

type TriggerCall struct {
	Project  string
	Location string
	Config   string
	RunTime  time.Time
}

// Trigger records transfer runs. OnTrigger runs after a successful call, e.g.
// to load a patched export into the warehouse.
type Trigger struct {
	Err       map[string]error
	Calls     []TriggerCall
	OnTrigger func(call TriggerCall)
}

func NewTrigger() *Trigger {
	return &Trigger{Err: map[string]error{}}
}

func (t *Trigger) Trigger(_ context.Context, project, location, config string, runTime time.Time) error {
	if err := t.Err[config]; err != nil {
		return err
	}
	call := TriggerCall{Project: project, Location: location, Config: config, RunTime: runTime}
	t.Calls = append(t.Calls, call)
	if t.OnTrigger != nil {
		t.OnTrigger(call)
	}
	return nil
}

// Count returns how many runs of config were requested.
func (t *Trigger) Count(config string) int {
	n := 0
	for _, c := range t.Calls {
		if c.Config == config {
			n++
		}
	}
	return n
}
