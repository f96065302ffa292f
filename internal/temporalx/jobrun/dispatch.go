package jobrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Dispatcher starts one workflow per job. The workflow id is derived from the
// job id, so repeated submissions of a running or succeeded job are no-ops.
type Dispatcher struct {
	client    temporalsdkclient.Client
	taskQueue string
	retry     RetryConfig
}

func NewDispatcher(c temporalsdkclient.Client, taskQueue string, retry RetryConfig) (*Dispatcher, error) {
	if c == nil {
		return nil, fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if taskQueue == "" {
		taskQueue = "deckrebuild"
	}
	return &Dispatcher{client: c, taskQueue: taskQueue, retry: retry.withDefaults()}, nil
}

func WorkflowID(jobID uuid.UUID) string { return "deck_rebuild:" + jobID.String() }

func (d *Dispatcher) Name() string { return "temporal" }

func (d *Dispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        WorkflowID(jobID),
		TaskQueue: d.taskQueue,
		// A failed run may be resubmitted; a completed one may not.
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}
	_, err := d.client.ExecuteWorkflow(ctx, opts, WorkflowName, WorkflowInput{JobID: jobID.String(), Retry: d.retry})
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if err == nil || errors.As(err, &already) {
		return nil
	}
	return err
}
