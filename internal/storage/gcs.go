package storage

import (
	"context"
	"io"
	"strconv"

	gcs "cloud.google.com/go/storage"
	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
)

// GCS serves gs:// URIs. Versions are object generations.
type GCS struct {
	client *gcs.Client
}

// NewGCS builds a client from Application Default Credentials.
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "storage client")
	}
	return &GCS{client: client}, nil
}

func NewGCSWithClient(client *gcs.Client) (*GCS, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	return &GCS{client: client}, nil
}

func (s *GCS) ListVersions(ctx context.Context, uri URI) ([]domain.ObjectVersion, error) {
	it := s.client.Bucket(uri.Bucket).Objects(ctx, &gcs.Query{Prefix: uri.Object, Versions: true})
	var out []domain.ObjectVersion
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "list versions of %s", uri)
		}
		if attrs.Name != uri.Object {
			continue
		}
		out = append(out, domain.ObjectVersion{
			ID:      strconv.FormatInt(attrs.Generation, 10),
			Created: attrs.Created,
			Updated: attrs.Updated,
		})
	}
	return out, nil
}

func (s *GCS) ReadVersion(ctx context.Context, uri URI, id string) ([]byte, error) {
	obj := s.client.Bucket(uri.Bucket).Object(uri.Object)
	if id != "" {
		gen, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid generation %q", id)
		}
		obj = obj.Generation(gen)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s#%s", uri, id)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s#%s", uri, id)
	}
	return data, nil
}

func (s *GCS) Write(ctx context.Context, uri URI, data []byte, contentType string) error {
	w := s.client.Bucket(uri.Bucket).Object(uri.Object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "write %s", uri)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "write %s", uri)
	}
	return nil
}

func (s *GCS) Close() error {
	return s.client.Close()
}
