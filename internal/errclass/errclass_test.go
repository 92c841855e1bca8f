package errclass

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyText(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{msg: "ServerNotFoundError('Unable to find the server at bigquery.googleapis.com')", want: KindTransient},
		{msg: `ServerNotFoundError("Unable to find the server at bigquery.googleapis.com")`, want: KindTransient},
		{msg: "Could not connect with BigQuery server", want: KindTransient},
		{msg: "Retrying request, attempt 2", want: KindTransient},
		{msg: "read tcp: connection reset by peer", want: KindTransient},
		{msg: "dial tcp 10.0.0.1:443: i/o timeout", want: KindTransient},
		{msg: "net/http: TLS handshake timeout", want: KindTransient},
		{msg: "unexpected EOF", want: KindTransient},
		{msg: "dial tcp: lookup storage.googleapis.com: no such host", want: KindTransient},
		{msg: "Not found: Table proj:ds.t was not found", want: KindNotFound},
		{msg: "The specified key does not exist.", want: KindNotFound},
		{msg: "NoSuchBucket", want: KindNotFound},
		{msg: "Access Denied: Table proj:ds.t", want: KindForbidden},
		{msg: "Permission denied on resource", want: KindForbidden},
		{msg: "googleapi: Error 403: caller lacks permission", want: KindForbidden},
		{msg: "FORBIDDEN", want: KindForbidden},
		{msg: "syntax error at [1:8]", want: KindUnknown},
		{msg: "", want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyText(tt.msg); got != tt.want {
				t.Fatalf("ClassifyText(%q)=%q, want %q", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassifyStructuredErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "canceled", err: fmt.Errorf("list: %w", context.Canceled), want: KindCanceled},
		{name: "deadline", err: context.DeadlineExceeded, want: KindCanceled},
		{name: "gcs object", err: fmt.Errorf("read: %w", storage.ErrObjectNotExist), want: KindNotFound},
		{name: "googleapi 403", err: &googleapi.Error{Code: http.StatusForbidden, Message: "nope"}, want: KindForbidden},
		{name: "googleapi 404", err: &googleapi.Error{Code: http.StatusNotFound}, want: KindNotFound},
		{name: "googleapi 503", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: KindTransient},
		{name: "googleapi 400 text", err: &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid query"}, want: KindUnknown},
		{name: "minio denied", err: fmt.Errorf("get: %w", minio.ErrorResponse{Code: "AccessDenied"}), want: KindForbidden},
		{name: "minio key", err: minio.ErrorResponse{Code: "NoSuchKey"}, want: KindNotFound},
		{name: "minio slowdown", err: minio.ErrorResponse{Code: "SlowDown"}, want: KindTransient},
		{name: "grpc denied", err: errors.Wrap(status.Error(codes.PermissionDenied, "The caller does not have permission"), "start manual transfer run"), want: KindForbidden},
		{name: "grpc unauthenticated", err: status.Error(codes.Unauthenticated, "invalid credentials"), want: KindForbidden},
		{name: "grpc not found", err: status.Error(codes.NotFound, "config gone"), want: KindNotFound},
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "try later"), want: KindTransient},
		{name: "grpc exhausted", err: status.Error(codes.ResourceExhausted, "quota"), want: KindTransient},
		{name: "grpc deadline", err: status.Error(codes.DeadlineExceeded, "slow"), want: KindTransient},
		{name: "grpc canceled", err: status.Error(codes.Canceled, "stop"), want: KindCanceled},
		{name: "grpc invalid", err: status.Error(codes.InvalidArgument, "bad run time"), want: KindUnknown},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v)=%q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err      error
		fallback string
		want     string
	}{
		{err: errors.New("403 Forbidden"), fallback: "bq_error", want: "forbidden"},
		{err: storage.ErrObjectNotExist, fallback: "storage_error", want: "not_found"},
		{err: errors.New("quota exceeded"), fallback: "bq_error", want: "bq_error"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err, tt.fallback); got != tt.want {
			t.Fatalf("Reason(%v)=%q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsConnectFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: errors.New("Could not connect with BigQuery server"), want: true},
		{err: errors.New("dial tcp 10.0.0.1:443: connect: connection refused"), want: true},
		{err: status.Error(codes.Unavailable, `connection error: desc = "transport: Error while dialing: dial tcp: i/o timeout"`), want: true},
		{err: errors.New("read tcp: connection reset by peer"), want: false},
		{err: errors.New("unexpected EOF"), want: false},
		{err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: false},
		{err: fmt.Errorf("no such host: %w", context.Canceled), want: false},
	}
	for _, tt := range tests {
		if got := IsConnectFailure(tt.err); got != tt.want {
			t.Fatalf("IsConnectFailure(%v)=%v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSnippetIsSingleLineAndBounded(t *testing.T) {
	err := errors.New("line one\nline\ttwo  " + strings.Repeat("x", 1000))
	got := Snippet(err)
	if len(got) != maxSnippet {
		t.Fatalf("len(Snippet)=%d, want %d", len(got), maxSnippet)
	}
	if strings.Contains(got, "\n") || !strings.HasPrefix(got, "line one line two x") {
		t.Fatalf("Snippet=%q, want single line starting with the message", got[:40])
	}
	if Snippet(nil) != "" {
		t.Fatalf("Snippet(nil)=%q, want empty", Snippet(nil))
	}
}
