package services

import (
	"context"
	"time"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
	"github.com/yungbote/deckrebuild-backend/internal/realtime"
	"github.com/yungbote/deckrebuild-backend/internal/realtime/bus"
)

type JobNotifier interface {
	JobCreated(job *types.RebuildJob)
	JobProgress(job *types.RebuildJob, stage string, progress int, message string)
	JobFailed(job *types.RebuildJob, stage string, errorMessage string)
	JobDone(job *types.RebuildJob)
}

const publishTimeout = 2 * time.Second

// jobNotifier publishes lifecycle messages on the bus. Publishing is best
// effort: a failed publish is logged and never fails the job.
type jobNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

func NewJobNotifier(baseLog *logger.Logger, b bus.Bus) JobNotifier {
	return &jobNotifier{log: baseLog.With("service", "JobNotifier"), bus: b}
}

func (n *jobNotifier) publish(job *types.RebuildJob, event string, data map[string]any) {
	if n == nil || n.bus == nil || job == nil {
		return
	}
	data["job_id"] = job.ID
	data["job_type"] = job.JobType
	data["status"] = job.Status
	data["attempt"] = job.Attempts
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	msg := realtime.Message{Channel: job.ID.String(), Event: event, Data: data}
	if err := n.bus.Publish(ctx, msg); err != nil {
		n.log.Warn("Publish job notification failed", "event", event, "job_id", job.ID, "error", err)
	}
}

func (n *jobNotifier) JobCreated(job *types.RebuildJob) {
	n.publish(job, realtime.EventJobCreated, map[string]any{})
}

func (n *jobNotifier) JobProgress(job *types.RebuildJob, stage string, progress int, message string) {
	n.publish(job, realtime.EventJobProgress, map[string]any{
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(job *types.RebuildJob, stage string, errorMessage string) {
	n.publish(job, realtime.EventJobFailed, map[string]any{
		"stage":      stage,
		"error":      errorMessage,
		"error_kind": job.ErrorKind,
		"retryable":  !job.NonRetryable,
	})
}

func (n *jobNotifier) JobDone(job *types.RebuildJob) {
	n.publish(job, realtime.EventJobDone, map[string]any{
		"stage":  job.Stage,
		"result": job.Result,
	})
}
