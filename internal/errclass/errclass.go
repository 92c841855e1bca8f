// Package errclass maps transport errors from storage, warehouse and transfer
// backends onto a closed set of kinds.
package errclass

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Kind string

const (
	KindForbidden Kind = "forbidden"
	KindNotFound  Kind = "not_found"
	KindTransient Kind = "transient"
	KindCanceled  Kind = "canceled"
	KindUnknown   Kind = "unknown"
)

// TransientSubstrings are fragments of error text that mark a retryable network failure.
var TransientSubstrings = []string{
	"ServerNotFoundError('Unable to find the server at bigquery.googleapis.com')",
	`ServerNotFoundError("Unable to find the server at bigquery.googleapis.com")`,
	"Could not connect with BigQuery server",
	"Retrying request, attempt",
	"connection reset by peer",
	"i/o timeout",
	"TLS handshake timeout",
	"no such host",
	"unexpected EOF",
}

var (
	notFoundSubstrings  = []string{"not found", "notfound", "nosuchkey", "nosuchbucket", "does not exist", "404"}
	forbiddenSubstrings = []string{"access denied", "accessdenied", "permission denied", "forbidden", "403"}
)

// Classify returns the kind of err. Structured codes win over text matching.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return KindNotFound
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusForbidden, http.StatusUnauthorized:
			return KindForbidden
		case http.StatusNotFound:
			return KindNotFound
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return KindTransient
		}
	}

	var merr minio.ErrorResponse
	if errors.As(err, &merr) {
		switch merr.Code {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return KindForbidden
		case "NoSuchKey", "NoSuchBucket", "NoSuchVersion":
			return KindNotFound
		case "SlowDown", "ServiceUnavailable", "InternalError":
			return KindTransient
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return KindForbidden
		case codes.NotFound:
			return KindNotFound
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
			return KindTransient
		case codes.Canceled:
			return KindCanceled
		}
	}

	return ClassifyText(err.Error())
}

// ConnectSubstrings mark failures raised before a request reached the server.
var ConnectSubstrings = []string{
	"ServerNotFoundError('Unable to find the server at bigquery.googleapis.com')",
	`ServerNotFoundError("Unable to find the server at bigquery.googleapis.com")`,
	"Could not connect with BigQuery server",
	"Retrying request, attempt",
	"Error while dialing",
	"connection refused",
	"no such host",
	"TLS handshake timeout",
}

// IsConnectFailure reports whether err happened while connecting, so the
// request cannot have been accepted. Calls that are not idempotent retry
// only on these.
func IsConnectFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return containsAny(err.Error(), ConnectSubstrings)
}

// ClassifyText applies the substring rules to a raw error message.
func ClassifyText(msg string) Kind {
	if IsTransientText(msg) {
		return KindTransient
	}
	lower := strings.ToLower(msg)
	if containsAny(lower, notFoundSubstrings) {
		return KindNotFound
	}
	if containsAny(lower, forbiddenSubstrings) {
		return KindForbidden
	}
	return KindUnknown
}

// IsTransientText reports whether msg contains one of TransientSubstrings.
func IsTransientText(msg string) bool {
	return containsAny(msg, TransientSubstrings)
}

// Reason maps err to a report reason code; fallback names unknown kinds.
func Reason(err error, fallback string) string {
	switch Classify(err) {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return fallback
	}
}

const maxSnippet = 800

// Snippet returns a single-line, truncated rendering of err for triage columns.
func Snippet(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxSnippet {
		msg = msg[:maxSnippet]
	}
	return msg
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
