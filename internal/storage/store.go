// Package storage is the object-storage capability used by the guardrails:
// versioned listing, reads of one exact version and whole-object writes.
package storage

import (
	"context"
	"time"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/retry"
	"github.com/pkg/errors"
)

type Store interface {
	// ListVersions returns every version of exactly the named object.
	ListVersions(ctx context.Context, uri URI) ([]domain.ObjectVersion, error)
	// ReadVersion reads one version; an empty id reads the live version.
	ReadVersion(ctx context.Context, uri URI, id string) ([]byte, error)
	Write(ctx context.Context, uri URI, data []byte, contentType string) error
}

// Router dispatches on the URI scheme.
type Router struct {
	GCS Store
	S3  Store
}

func (r Router) ListVersions(ctx context.Context, uri URI) ([]domain.ObjectVersion, error) {
	s, err := r.pick(uri)
	if err != nil {
		return nil, err
	}
	return s.ListVersions(ctx, uri)
}

func (r Router) ReadVersion(ctx context.Context, uri URI, id string) ([]byte, error) {
	s, err := r.pick(uri)
	if err != nil {
		return nil, err
	}
	return s.ReadVersion(ctx, uri, id)
}

func (r Router) Write(ctx context.Context, uri URI, data []byte, contentType string) error {
	s, err := r.pick(uri)
	if err != nil {
		return err
	}
	return s.Write(ctx, uri, data, contentType)
}

func (r Router) pick(uri URI) (Store, error) {
	var s Store
	switch uri.Scheme {
	case SchemeGCS:
		s = r.GCS
	case SchemeS3:
		s = r.S3
	}
	if s == nil {
		return nil, errors.Errorf("no storage backend configured for %s://", uri.Scheme)
	}
	return s, nil
}

// Retrying wraps a Store with the retry policy and a per-attempt timeout.
type Retrying struct {
	Next    Store
	Policy  retry.Policy
	Timeout time.Duration
}

func (r Retrying) ListVersions(ctx context.Context, uri URI) ([]domain.ObjectVersion, error) {
	return retry.Value(ctx, r.Policy, func(ctx context.Context) ([]domain.ObjectVersion, error) {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.Next.ListVersions(ctx, uri)
	})
}

func (r Retrying) ReadVersion(ctx context.Context, uri URI, id string) ([]byte, error) {
	return retry.Value(ctx, r.Policy, func(ctx context.Context) ([]byte, error) {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.Next.ReadVersion(ctx, uri, id)
	})
}

func (r Retrying) Write(ctx context.Context, uri URI, data []byte, contentType string) error {
	return r.Policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.Next.Write(ctx, uri, data, contentType)
	})
}

func (r Retrying) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}
