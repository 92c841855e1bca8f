package storage

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	SchemeGCS = "gs"
	SchemeS3  = "s3"
)

// URI names one object: gs://bucket/object or s3://bucket/object.
type URI struct {
	Scheme string
	Bucket string
	Object string
}

func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return URI{}, errors.Errorf("invalid object uri %q (expected gs://bucket/object or s3://bucket/object)", raw)
	}
	scheme = strings.ToLower(scheme)
	if scheme != SchemeGCS && scheme != SchemeS3 {
		return URI{}, errors.Errorf("invalid object uri %q: unsupported scheme %q", raw, scheme)
	}
	bucket, object, _ := strings.Cut(rest, "/")
	if strings.TrimSpace(bucket) == "" {
		return URI{}, errors.Errorf("invalid object uri %q: bucket is required", raw)
	}
	if strings.TrimSpace(object) == "" || strings.HasSuffix(object, "/") {
		return URI{}, errors.Errorf("invalid object uri %q: object name is required", raw)
	}
	return URI{Scheme: scheme, Bucket: bucket, Object: object}, nil
}

func (u URI) String() string {
	return u.Scheme + "://" + u.Bucket + "/" + u.Object
}
