package main

import (
	"context"
	"io"
	"time"

	"github.com/animus-labs/guardrails/internal/guardrail"
	"github.com/animus-labs/guardrails/internal/platform/auditlog"
	"github.com/animus-labs/guardrails/internal/platform/env"
	"github.com/animus-labs/guardrails/internal/platform/objectstore"
	"github.com/animus-labs/guardrails/internal/platform/postgres"
	"github.com/animus-labs/guardrails/internal/retry"
	"github.com/animus-labs/guardrails/internal/storage"
	"github.com/animus-labs/guardrails/internal/transfer"
	"github.com/animus-labs/guardrails/internal/warehouse"
	"go.uber.org/multierr"
)

// need selects the backends a guardrail uses.
type need struct {
	store     bool
	warehouse bool
	trigger   bool
	audit     bool
}

// connect builds the production backends, each behind the retry policy and
// the per-call timeout.
func connect(ctx context.Context, a *app, n need) (guardrail.Backends, func() error, error) {
	var closers []io.Closer
	closeAll := func() error {
		var err error
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
		return err
	}
	fail := func(err error) (guardrail.Backends, func() error, error) {
		return guardrail.Backends{}, nil, multierr.Append(err, closeAll())
	}

	timeout, err := env.Duration("GUARDRAIL_CALL_TIMEOUT", 60*time.Second)
	if err != nil {
		return fail(err)
	}
	policy := retry.FromSettings(a.settings.Retry)

	var b guardrail.Backends
	if n.store {
		gcs, err := storage.NewGCS(ctx)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, gcs)
		router := storage.Router{GCS: gcs}

		s3cfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			return fail(err)
		}
		if s3cfg.Enabled() {
			s3, err := storage.NewS3(s3cfg)
			if err != nil {
				return fail(err)
			}
			router.S3 = s3
		}
		b.Store = storage.Retrying{Next: router, Policy: policy, Timeout: timeout}
	}
	if n.warehouse {
		bq := warehouse.NewBigQuery()
		closers = append(closers, bq)
		b.Warehouse = warehouse.Retrying{Next: bq, Policy: policy, Timeout: timeout}
	}
	if n.trigger {
		dts, err := transfer.NewDataTransfer(ctx)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, dts)
		b.Trigger = transfer.Retrying{Next: dts, Policy: policy, Timeout: timeout}
	}
	if n.audit {
		cfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return fail(err)
		}
		if cfg.Enabled() {
			db, err := postgres.Open(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, db)
			if err := auditlog.EnsureSchema(ctx, db); err != nil {
				return fail(err)
			}
			b.Audit = auditlog.Ledger{DB: db, RunID: a.runID, Actor: "forecast_self_heal", Timeout: timeout}
			a.logger.Info("audit ledger enabled")
		}
	}
	return b, closeAll, nil
}
