package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

/*
Workflow drives one job to a terminal state. Each activity execution is one
claimed attempt; Temporal retries failed attempts after a fixed delay
(backoff coefficient 1) until the budget is spent. Deterministic failures
come back as ErrTypeDeterministic and are not retried.
*/
func Workflow(ctx workflow.Context, in WorkflowInput) (AttemptResult, error) {
	jobID := strings.TrimSpace(in.JobID)
	if jobID == "" {
		return AttemptResult{}, fmt.Errorf("jobrun: missing job_id")
	}
	retry := in.Retry.withDefaults()

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: retry.AttemptTimeout,
		HeartbeatTimeout:    retry.HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        retry.Delay,
			BackoffCoefficient:     1.0,
			MaximumInterval:        retry.Delay,
			MaximumAttempts:        int32(retry.MaxAttempts),
			NonRetryableErrorTypes: []string{ErrTypeDeterministic},
		},
	})

	var out AttemptResult
	if err := workflow.ExecuteActivity(ctx, ActivityRunAttempt, jobID).Get(ctx, &out); err != nil {
		workflow.GetLogger(ctx).Warn("Job ended without success", "job_id", jobID, "error", err)
		return out, err
	}
	return out, nil
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 3
	}
	if r.Delay <= 0 {
		r.Delay = 60 * time.Second
	}
	if r.AttemptTimeout <= 0 {
		r.AttemptTimeout = 30 * time.Minute
	}
	if r.HeartbeatTimeout <= 0 {
		r.HeartbeatTimeout = time.Minute
	}
	return r
}
