package notify

import (
	"html"
	"strings"

	"github.com/animus-labs/guardrails/internal/platform/env"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailConfig struct {
	APIKey   string
	From     string
	FromName string
}

func EmailConfigFromEnv() EmailConfig {
	return EmailConfig{
		APIKey:   strings.TrimSpace(env.String("SENDGRID_API_KEY", "")),
		From:     strings.TrimSpace(env.String("GUARDRAIL_EMAIL_FROM", "")),
		FromName: env.NonEmpty("GUARDRAIL_EMAIL_FROM_NAME", "Data guardrails"),
	}
}

func (c EmailConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("SENDGRID_API_KEY is required for e-mail digests")
	}
	if c.From == "" {
		return errors.New("GUARDRAIL_EMAIL_FROM is required for e-mail digests")
	}
	return nil
}

// Sender is the subset of the SendGrid client used for digests.
type Sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type Emailer struct {
	Client Sender
	From   *mail.Email
}

func NewEmailer(cfg EmailConfig) (*Emailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Emailer{
		Client: sendgrid.NewSendClient(cfg.APIKey),
		From:   mail.NewEmail(cfg.FromName, cfg.From),
	}, nil
}

// Send mails the plain-text body to each recipient; the HTML part is the same
// text preformatted.
func (e *Emailer) Send(to []string, subject, body string) error {
	htmlBody := "<pre>" + html.EscapeString(body) + "</pre>"
	for _, addr := range to {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		msg := mail.NewSingleEmail(e.From, subject, mail.NewEmail("", addr), body, htmlBody)
		resp, err := e.Client.Send(msg)
		if err != nil {
			return errors.Wrapf(err, "send digest to %s", addr)
		}
		if resp != nil && resp.StatusCode >= 300 {
			return errors.Errorf("send digest to %s: sendgrid status %d", addr, resp.StatusCode)
		}
	}
	return nil
}

// Subject is the digest subject line for a run summary.
func Subject(guardrail, status, date string) string {
	title, ok := titles[guardrail]
	if !ok {
		title = guardrail
	}
	subject := "[" + status + "] " + title
	if date != "" {
		subject += " " + date
	}
	return subject
}
