// Package transfer triggers manual runs of scheduled BigQuery Data Transfer
// configurations.
package transfer

import (
	"context"
	"strings"
	"time"

	datatransfer "cloud.google.com/go/bigquery/datatransfer/apiv1"
	"cloud.google.com/go/bigquery/datatransfer/apiv1/datatransferpb"
	"github.com/animus-labs/guardrails/internal/errclass"
	"github.com/animus-labs/guardrails/internal/retry"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Trigger requests one run of a transfer configuration at runTime.
type Trigger interface {
	Trigger(ctx context.Context, project, location, config string, runTime time.Time) error
}

// ConfigName expands a bare config id into its resource name. Values that
// already start with "projects/" are returned unchanged.
func ConfigName(project, location, config string) (string, error) {
	config = strings.TrimSpace(config)
	if config == "" {
		return "", errors.New("transfer config is required")
	}
	if strings.HasPrefix(config, "projects/") {
		return config, nil
	}
	if strings.TrimSpace(project) == "" {
		return "", errors.Errorf("project is required for transfer config %q", config)
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return "projects/" + project + "/transferConfigs/" + config, nil
	}
	return "projects/" + project + "/locations/" + strings.ToLower(location) + "/transferConfigs/" + config, nil
}

// DataTransfer is the Data Transfer Service adapter.
type DataTransfer struct {
	client *datatransfer.Client
}

func NewDataTransfer(ctx context.Context) (*DataTransfer, error) {
	client, err := datatransfer.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "datatransfer client")
	}
	return &DataTransfer{client: client}, nil
}

func (d *DataTransfer) Trigger(ctx context.Context, project, location, config string, runTime time.Time) error {
	name, err := ConfigName(project, location, config)
	if err != nil {
		return err
	}
	req := &datatransferpb.StartManualTransferRunsRequest{
		Parent: name,
		Time: &datatransferpb.StartManualTransferRunsRequest_RequestedRunTime{
			RequestedRunTime: timestamppb.New(runTime.UTC().Truncate(time.Second)),
		},
	}
	if _, err := d.client.StartManualTransferRuns(ctx, req); err != nil {
		return errors.Wrapf(err, "start manual transfer run %s", name)
	}
	return nil
}

func (d *DataTransfer) Close() error {
	return d.client.Close()
}

// Retrying wraps a Trigger with the retry policy and a per-attempt timeout.
// A manual run is not idempotent, so unless Policy sets Retryable only
// connect failures are retried.
type Retrying struct {
	Next    Trigger
	Policy  retry.Policy
	Timeout time.Duration
}

func (r Retrying) Trigger(ctx context.Context, project, location, config string, runTime time.Time) error {
	policy := r.Policy
	if policy.Retryable == nil {
		policy.Retryable = errclass.IsConnectFailure
	}
	return policy.Do(ctx, func(ctx context.Context) error {
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		return r.Next.Trigger(ctx, project, location, config, runTime)
	})
}
