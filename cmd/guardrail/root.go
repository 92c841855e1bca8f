package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/guardrail"
	"github.com/animus-labs/guardrails/internal/platform/env"
	"github.com/animus-labs/guardrails/internal/platform/logging"
	"github.com/animus-labs/guardrails/internal/platform/settings"
	"github.com/animus-labs/guardrails/internal/report"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	outdir    string
	timezone  string
	settings  string
	logLevel  string
	logFormat string
}

// app is the state shared by all subcommands of one invocation.
type app struct {
	flags    rootFlags
	stdout   io.Writer
	stderr   io.Writer
	settings settings.Settings
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
	runID    string
	exitCode int

	// connect opens the backends a guardrail needs; tests replace it.
	connect func(ctx context.Context, a *app, need need) (guardrail.Backends, func() error, error)
}

func run(ctx context.Context, args []string) int {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, now: time.Now, connect: connect}
	return a.main(ctx, args)
}

// main executes args and maps the outcome to the process exit code.
func (a *app) main(ctx context.Context, args []string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("guardrail failed", "error", err)
		} else {
			fmt.Fprintln(a.stderr, err)
		}
		return domain.ExitError
	}
	return a.exitCode
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "guardrail",
		Short: "Data readiness guardrails and forecast self-heal",
		Long: "guardrail checks that scheduled analytics pipelines produced non-trivial output\n" +
			"by a local-time SLA and patches forecast exports when upstream totals are missing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.Version = version

	f := root.PersistentFlags()
	f.StringVar(&a.flags.outdir, "outdir", env.String("GUARDRAIL_OUTDIR", "guardrail-out"), "Directory for report artifacts")
	f.StringVar(&a.flags.timezone, "timezone", env.String("GUARDRAIL_TIMEZONE", "Europe/Prague"), "IANA timezone of SLAs and dates")
	f.StringVar(&a.flags.settings, "settings", env.String("GUARDRAIL_SETTINGS", ""), "Optional settings file (.json, .yaml, .yml)")
	f.StringVar(&a.flags.logLevel, "log-level", env.String("GUARDRAIL_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	f.StringVar(&a.flags.logFormat, "log-format", env.String("GUARDRAIL_LOG_FORMAT", "json"), "Log format (json, text)")

	root.AddCommand(
		newTablesCmd(a),
		newCostCmd(a),
		newForecastCmd(a),
		newSelfHealCmd(a),
		newNotifyCmd(a),
	)
	return root
}

func (a *app) setup() error {
	logger, err := logging.New(a.stderr, a.flags.logLevel, a.flags.logFormat)
	if err != nil {
		return err
	}
	a.logger = logger

	loc, err := time.LoadLocation(strings.TrimSpace(a.flags.timezone))
	if err != nil {
		return errors.Wrapf(err, "invalid --timezone %q", a.flags.timezone)
	}
	a.loc = loc

	cfg, err := settings.Load(a.flags.settings)
	if err != nil {
		return err
	}
	cfg.DependentTrigger.Projects = env.List("GUARDRAIL_DEPENDENT_PROJECTS", cfg.DependentTrigger.Projects)
	a.settings = cfg
	a.runID = uuid.NewString()
	return nil
}

// date parses a --date-local style flag; empty falls back to today plus
// offsetDays in the configured timezone.
func (a *app) date(value string, offsetDays int) (civil.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return civil.DateOf(a.now().In(a.loc)).AddDays(offsetDays), nil
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, errors.Errorf("invalid date %q (expected YYYY-MM-DD)", value)
	}
	return d, nil
}

func (a *app) runner(backends guardrail.Backends) *guardrail.Runner {
	return &guardrail.Runner{
		Backends: backends,
		Settings: a.settings,
		Location: a.loc,
		Emitter:  report.Emitter{Dir: a.flags.outdir},
		Now:      a.now,
		NewID:    func() string { return a.runID },
		Logger:   a.logger,
	}
}

// execute runs fn and records the exit code. The backends are opened only
// once fn has loaded its inventory. Any abort still leaves a FAIL summary
// behind.
func (a *app) execute(ctx context.Context, name, date, mode string, need need, fn func(context.Context, *guardrail.Runner) (domain.RunSummary, error)) error {
	closeAll := func() error { return nil }
	r := a.runner(guardrail.Backends{})
	r.Open = func(ctx context.Context) (guardrail.Backends, error) {
		backends, closer, err := a.connect(ctx, a, need)
		if err != nil {
			return guardrail.Backends{}, err
		}
		closeAll = closer
		return backends, nil
	}

	s, err := fn(ctx, r)
	if err != nil {
		r.FailureSummary(name, date, mode, err)
		return multierr.Append(err, closeAll())
	}
	if err := closeAll(); err != nil {
		a.logger.Warn("close backends", "error", err)
	}

	a.exitCode = s.ExitCode()
	fmt.Fprintf(a.stdout, "%s: %s (total=%d failed=%d required_failed=%d)\n", name, s.Status, s.Total, s.Failed, s.RequiredFailed)
	return nil
}

// abort writes the FAIL summary of a run that could not start.
func (a *app) abort(name, date, mode string, err error) error {
	a.runner(guardrail.Backends{}).FailureSummary(name, date, mode, err)
	return err
}

var errNegativeDelay = errors.New("--settle-delay must be >= 0")
