// Package auditlog appends self-heal side effects (export uploads and
// transfer triggers) to a Postgres ledger.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/guardrails/internal/heal"
	"github.com/google/uuid"
)

// Schema creates the ledger table.
const Schema = `CREATE TABLE IF NOT EXISTS guardrail_audit_events (
	event_id         UUID PRIMARY KEY,
	occurred_at      TIMESTAMPTZ NOT NULL,
	run_id           TEXT NOT NULL,
	actor            TEXT NOT NULL,
	kind             TEXT NOT NULL,
	project_id       TEXT NOT NULL,
	resource         TEXT NOT NULL,
	patch_date       DATE NOT NULL,
	payload          JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Event struct {
	ID         string
	OccurredAt time.Time
	RunID      string
	Actor      string
	Kind       string
	ProjectID  string
	Resource   string
	PatchDate  string
	Payload    any
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Kind) == "" {
		return errors.New("Kind is required")
	}
	if strings.TrimSpace(e.Resource) == "" {
		return errors.New("Resource is required")
	}
	if strings.TrimSpace(e.PatchDate) == "" {
		return errors.New("PatchDate is required")
	}
	return nil
}

func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Insert writes one event and returns its id.
func Insert(ctx context.Context, db Execer, event Event) (string, error) {
	if db == nil {
		return "", errors.New("execer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := event.Validate(); err != nil {
		return "", err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return "", err
	}

	_, err = db.ExecContext(
		ctx,
		`INSERT INTO guardrail_audit_events (
			event_id,
			occurred_at,
			run_id,
			actor,
			kind,
			project_id,
			resource,
			patch_date,
			payload,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		event.ID,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.RunID),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Kind),
		strings.TrimSpace(event.ProjectID),
		strings.TrimSpace(event.Resource),
		strings.TrimSpace(event.PatchDate),
		payloadJSON,
		integrity,
	)
	if err != nil {
		return "", fmt.Errorf("insert audit event: %w", err)
	}
	return event.ID, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		ID         string          `json:"event_id"`
		OccurredAt time.Time       `json:"occurred_at"`
		RunID      string          `json:"run_id"`
		Actor      string          `json:"actor"`
		Kind       string          `json:"kind"`
		ProjectID  string          `json:"project_id,omitempty"`
		Resource   string          `json:"resource"`
		PatchDate  string          `json:"patch_date"`
		Payload    json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		ID:         event.ID,
		OccurredAt: event.OccurredAt.UTC(),
		RunID:      strings.TrimSpace(event.RunID),
		Actor:      strings.TrimSpace(event.Actor),
		Kind:       strings.TrimSpace(event.Kind),
		ProjectID:  strings.TrimSpace(event.ProjectID),
		Resource:   strings.TrimSpace(event.Resource),
		PatchDate:  strings.TrimSpace(event.PatchDate),
		Payload:    payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Ledger records self-heal events of one run.
type Ledger struct {
	DB      Execer
	RunID   string
	Actor   string
	Timeout time.Duration
	Now     func() time.Time
}

func (l Ledger) Record(ctx context.Context, e heal.Event) error {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	var payload any
	if e.Payload != nil {
		payload = e.Payload
	}
	_, err := Insert(ctx, l.DB, Event{
		OccurredAt: now().UTC(),
		RunID:      l.RunID,
		Actor:      l.Actor,
		Kind:       e.Kind,
		ProjectID:  e.Project,
		Resource:   e.Resource,
		PatchDate:  e.PatchDate.String(),
		Payload:    payload,
	})
	return err
}
