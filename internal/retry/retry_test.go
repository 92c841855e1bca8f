package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDoRetriesTransientWithCappedBackoff(t *testing.T) {
	rec := &recorder{}
	p := Default()
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("read tcp 10.0.0.1:443: connection reset by peer")
	})
	if err == nil {
		t.Fatalf("Do() err=nil, want last error")
	}
	if calls != 5 {
		t.Fatalf("calls=%d, want 5", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(rec.waits) != len(want) {
		t.Fatalf("waits=%v, want %v", rec.waits, want)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Fatalf("waits=%v, want %v", rec.waits, want)
		}
	}
}

func TestDoCapsAtMax(t *testing.T) {
	rec := &recorder{}
	p := Policy{Attempts: 7, Initial: 2 * time.Second, Max: 30 * time.Second, Sleep: rec.sleep}
	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("i/o timeout") })
	if got := rec.waits[len(rec.waits)-1]; got != 30*time.Second {
		t.Fatalf("last wait=%v, want 30s", got)
	}
}

func TestDoStopsOnNonTransient(t *testing.T) {
	rec := &recorder{}
	p := Default()
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("Access Denied: Table proj:ds.t")
	})
	if err == nil || calls != 1 || len(rec.waits) != 0 {
		t.Fatalf("err=%v calls=%d waits=%v, want one call and no waits", err, calls, rec.waits)
	}
}

func TestValueReturnsResultAfterRecovery(t *testing.T) {
	p := Default()
	p.Sleep = (&recorder{}).sleep

	calls := 0
	got, err := Value(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("Could not connect with BigQuery server")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Fatalf("Value()=%d err=%v calls=%d, want 42 nil 3", got, err, calls)
	}
}

func TestDoAbortsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Default().Do(ctx, func(context.Context) error {
		calls++
		return errors.New("i/o timeout")
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d, want error after one call", err, calls)
	}
}
