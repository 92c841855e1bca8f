package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/notify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// digestSender is the e-mail boundary; tests replace newEmailer.
type digestSender interface {
	Send(to []string, subject, body string) error
}

var newEmailer = func() (digestSender, error) {
	return notify.NewEmailer(notify.EmailConfigFromEnv())
}

func newNotifyCmd(a *app) *cobra.Command {
	var flags struct {
		summary  string
		reportMD string
		out      string
		emailTo  []string
	}
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Render a run summary for Slack and optionally e-mail the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(flags.summary)
			if err != nil {
				return errors.Wrapf(err, "read summary %s", flags.summary)
			}
			var s domain.RunSummary
			if err := json.Unmarshal(raw, &s); err != nil {
				return errors.Wrapf(err, "decode summary %s", flags.summary)
			}
			text := notify.SummaryText(s)

			var w io.Writer = a.stdout
			if flags.out != "" {
				file, err := os.Create(flags.out)
				if err != nil {
					return errors.Wrapf(err, "create %s", flags.out)
				}
				defer file.Close()
				w = file
			}
			if _, err := fmt.Fprintln(w, text); err != nil {
				return errors.Wrap(err, "write slack text")
			}

			if len(flags.emailTo) == 0 {
				return nil
			}
			body := text
			if flags.reportMD != "" {
				md, err := os.ReadFile(flags.reportMD)
				if err != nil {
					return errors.Wrapf(err, "read report %s", flags.reportMD)
				}
				body = string(md)
			}
			sender, err := newEmailer()
			if err != nil {
				return err
			}
			if err := sender.Send(flags.emailTo, notify.Subject(s.Guardrail, string(s.Status), s.DateLocal), body); err != nil {
				return err
			}
			a.logger.Info("digest sent", "guardrail", s.Guardrail, "recipients", len(flags.emailTo))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.summary, "summary", "", "Summary JSON written by a guardrail run (required)")
	f.StringVar(&flags.reportMD, "report-md", "", "Markdown report used as the e-mail body")
	f.StringVar(&flags.out, "out", "", "Write the Slack text here instead of stdout")
	f.StringSliceVar(&flags.emailTo, "email-to", nil, "E-mail recipients (comma separated or repeated)")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}
