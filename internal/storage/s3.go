package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/animus-labs/guardrails/internal/domain"
	"github.com/animus-labs/guardrails/internal/platform/objectstore"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

// S3 serves s3:// URIs on any S3-compatible store with bucket versioning.
type S3 struct {
	client *minio.Client
}

func NewS3(cfg objectstore.Config) (*S3, error) {
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return &S3{client: client}, nil
}

func NewS3WithClient(client *minio.Client) (*S3, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	return &S3{client: client}, nil
}

// ListVersions skips delete markers. S3 has no distinct creation time, so a
// version's last-modified time is its creation time.
func (s *S3) ListVersions(ctx context.Context, uri URI) ([]domain.ObjectVersion, error) {
	opts := minio.ListObjectsOptions{Prefix: uri.Object, WithVersions: true, Recursive: true}
	var out []domain.ObjectVersion
	for obj := range s.client.ListObjects(ctx, uri.Bucket, opts) {
		if obj.Err != nil {
			return nil, errors.Wrapf(obj.Err, "list versions of %s", uri)
		}
		if obj.Key != uri.Object || obj.IsDeleteMarker {
			continue
		}
		out = append(out, domain.ObjectVersion{
			ID:      obj.VersionID,
			Created: obj.LastModified,
			Updated: obj.LastModified,
		})
	}
	return out, nil
}

func (s *S3) ReadVersion(ctx context.Context, uri URI, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, uri.Bucket, uri.Object, minio.GetObjectOptions{VersionID: id})
	if err != nil {
		return nil, errors.Wrapf(err, "read %s#%s", uri, id)
	}
	defer func() { _ = obj.Close() }()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s#%s", uri, id)
	}
	return data, nil
}

func (s *S3) Write(ctx context.Context, uri URI, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, uri.Bucket, uri.Object, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return errors.Wrapf(err, "write %s", uri)
	}
	return nil
}
