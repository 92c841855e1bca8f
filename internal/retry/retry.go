// Package retry re-runs backend calls that fail with a transient network error.
package retry

import (
	"context"
	"time"

	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/platform/settings"
)

type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration

	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Retryable decides which errors are retried; nil retries transient kinds.
	Retryable func(err error) bool
}

func FromSettings(cfg settings.Retry) Policy {
	return Policy{Attempts: cfg.Attempts, Initial: cfg.Initial, Max: cfg.Max}
}

func Default() Policy {
	return FromSettings(settings.Defaults().Retry)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return errclass.Classify(err) == errclass.KindTransient }
	}

	wait := p.Initial
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
		wait *= 2
		if p.Max > 0 && wait > p.Max {
			wait = p.Max
		}
	}
	return err
}

// Value is Do for calls returning a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
