package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/ctxutil"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// Notifier is the side channel for job lifecycle updates.
type Notifier interface {
	JobProgress(job *types.RebuildJob, stage string, progress int, message string)
	JobFailed(job *types.RebuildJob, stage string, errorMessage string)
	JobDone(job *types.RebuildJob)
}

/*
Context is the execution handle for one claimed attempt of a job.
Pipelines never write the rebuild_job row or its events directly; they report
through Progress, Fail and Succeed so the forward-only status rules and the
one-event-per-transition rule stay in one place.

Every write is guarded on the row not already being SUCCEEDED or FAILED, so a
late writer cannot move a finished attempt backwards.
*/
type Context struct {
	Ctx    context.Context
	Job    *types.RebuildJob
	Repo   jobrepos.RebuildJobRepo
	Events jobrepos.JobEventRepo
	Notify Notifier
	// RetryDeterministic leaves parse/validation failures eligible for the retry claim.
	RetryDeterministic bool

	log     *logger.Logger
	options map[string]any
}

var finished = []string{types.StatusSucceeded, types.StatusFailed}

func NewContext(ctx context.Context, log *logger.Logger, job *types.RebuildJob, repo jobrepos.RebuildJobRepo, events jobrepos.JobEventRepo, notify Notifier) *Context {
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{
		Ctx:    ctxutil.Default(ctx),
		Job:    job,
		Repo:   repo,
		Events: events,
		Notify: notify,
		log:    log,
	}
	if job != nil {
		c.log = log.With("job_id", job.ID, "attempt", job.Attempts)
	}
	_ = c.decodeOptions()
	return c
}

// decodeOptions leaves an empty map behind on malformed JSON; the pipeline
// validates the fields it needs.
func (c *Context) decodeOptions() error {
	c.options = map[string]any{}
	if c.Job == nil || len(c.Job.Options) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Options, &m); err != nil {
		return err
	}
	if m != nil {
		c.options = m
	}
	return nil
}

func (c *Context) Log() *logger.Logger { return c.log }

// Options never returns nil.
func (c *Context) Options() map[string]any {
	if c.options == nil {
		c.options = map[string]any{}
	}
	return c.options
}

func (c *Context) OptionBool(key string) bool {
	v, _ := c.Options()[key].(bool)
	return v
}

func (c *Context) jobID() uuid.UUID {
	if c == nil || c.Job == nil {
		return uuid.Nil
	}
	return c.Job.ID
}

func (c *Context) appendEvent(eventType, stage string, pct int, msg string, data any) {
	if c.Events == nil || c.jobID() == uuid.Nil {
		return
	}
	if _, err := c.Events.AppendData(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, eventType, stage, pct, msg, data); err != nil {
		c.log.Warn("Append job event failed", "event", eventType, "stage", stage, "error", err)
	}
}

func (c *Context) update(updates map[string]interface{}) bool {
	if c.Repo == nil || c.jobID() == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, finished, updates)
	if err != nil {
		c.log.Warn("Update job failed", "error", err)
		return false
	}
	return ok
}

// Started records the STARTED event for this attempt.
func (c *Context) Started() {
	if c == nil || c.Job == nil {
		return
	}
	c.appendEvent(types.EventStarted, c.Job.Stage, c.Job.Progress, "", map[string]any{"attempt": c.Job.Attempts})
}

// Heartbeat keeps a long step from being reclaimed as stale.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.jobID() == uuid.Nil {
		return
	}
	if err := c.Repo.Heartbeat(dbctx.Context{Ctx: c.Ctx}, c.Job.ID); err != nil {
		c.log.Debug("Heartbeat failed", "error", err)
	}
}

// Progress persists stage and percentage, appends one PROGRESS event and notifies.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now()
	if !c.update(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.appendEvent(types.EventProgress, stage, pct, msg, nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
}

/*
Fail ends this attempt as FAILED with a bounded error string.
Deterministic failures are marked non-retryable unless RetryDeterministic is
set; the retry claim skips non-retryable rows.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := rebuild.TruncateError(err)
	kind := rebuild.Classify(err)
	nonRetryable := rebuild.IsDeterministic(err) && !c.RetryDeterministic

	if !c.update(map[string]interface{}{
		"status":        types.StatusFailed,
		"stage":         stage,
		"error":         msg,
		"error_kind":    string(kind),
		"non_retryable": nonRetryable,
		"last_error_at": now,
		"completed_at":  now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}

	if c.Job != nil {
		c.Job.Status = types.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.ErrorKind = string(kind)
		c.Job.NonRetryable = nonRetryable
		c.Job.LastErrorAt = &now
		c.Job.CompletedAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.log.Warn("Job attempt failed", "stage", stage, "kind", kind, "non_retryable", nonRetryable, "error", msg)
	pct := 0
	if c.Job != nil {
		pct = c.Job.Progress
	}
	c.appendEvent(types.EventFailed, stage, pct, msg, map[string]any{
		"kind":      kind,
		"retryable": !nonRetryable,
	})
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

// Succeed marks the job SUCCEEDED with progress 100 and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if !c.update(map[string]interface{}{
		"status":        types.StatusSucceeded,
		"stage":         finalStage,
		"progress":      100,
		"error":         "",
		"error_kind":    "",
		"non_retryable": false,
		"result":        res,
		"locked_at":     nil,
		"heartbeat_at":  now,
		"completed_at":  now,
		"updated_at":    now,
	}) {
		return
	}

	if c.Job != nil {
		c.Job.Status = types.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Error = ""
		c.Job.ErrorKind = ""
		c.Job.NonRetryable = false
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.CompletedAt = &now
		c.Job.UpdatedAt = now
	}
	c.appendEvent(types.EventSucceeded, finalStage, 100, "", nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job)
	}
}
