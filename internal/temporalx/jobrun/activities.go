package jobrun

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// JobRunner claims and executes a single job attempt. *worker.Worker satisfies it.
type JobRunner interface {
	RunJobWithPolicy(ctx context.Context, id uuid.UUID, policy jobrepos.ClaimPolicy) (*types.RebuildJob, bool, error)
}

type Activities struct {
	Log    *logger.Logger
	Runner JobRunner
	// Policy bounds the claim. Its RetryDelay is ignored: Temporal owns the delay.
	Policy            jobrepos.ClaimPolicy
	HeartbeatInterval time.Duration
}

func (a *Activities) RunAttempt(ctx context.Context, jobID string) (AttemptResult, error) {
	res := AttemptResult{JobID: jobID}
	if a == nil || a.Runner == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(jobID)
	if err != nil || id == uuid.Nil {
		return res, temporal.NewNonRetryableApplicationError("invalid job_id "+jobID, ErrTypeDeterministic, err)
	}

	stop := a.startHeartbeat(ctx)
	defer stop()

	policy := a.Policy
	policy.RetryDelay = 0
	job, ran, err := a.Runner.RunJobWithPolicy(ctx, id, policy)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, temporal.NewNonRetryableApplicationError("job not found", ErrTypeDeterministic, nil)
	}

	res.Status = job.Status
	res.Stage = job.Stage
	res.Attempt = job.Attempts
	res.Ran = ran
	res.Error = job.Error
	res.ErrorKind = job.ErrorKind

	switch job.Status {
	case types.StatusSucceeded:
		return res, nil
	case types.StatusFailed:
		msg := fmt.Sprintf("job failed at stage %s: %s", job.Stage, job.Error)
		if job.NonRetryable || job.Attempts >= policy.MaxAttempts {
			return res, temporal.NewNonRetryableApplicationError(msg, ErrTypeDeterministic, nil, res)
		}
		return res, temporal.NewApplicationError(msg, ErrTypeRetryable, res)
	default:
		// Claimed by another runner or not yet visible; try again after the delay.
		return res, temporal.NewApplicationError(fmt.Sprintf("job is %s", job.Status), ErrTypeRetryable, res)
	}
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.HeartbeatInterval
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
