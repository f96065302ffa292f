package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/ctxutil"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deckrebuild-backend/internal/pkg/errors"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// Dispatcher hands a persisted job to whatever runs it. Dispatch must be
// safe to call more than once for the same job.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
	Name() string
}

// PollDispatcher leaves QUEUED jobs for the polling worker pool.
type PollDispatcher struct{}

func (PollDispatcher) Dispatch(context.Context, uuid.UUID) error { return nil }
func (PollDispatcher) Name() string                              { return "poll" }

type CreateRequest struct {
	DeckFileID        uuid.UUID
	TemplateVersionID uuid.UUID
	DryRun            bool
}

type JobService interface {
	Create(dbc dbctx.Context, req CreateRequest) (*types.RebuildJob, error)
	Submit(dbc dbctx.Context, jobID uuid.UUID) error
	Get(dbc dbctx.Context, jobID uuid.UUID) (*types.RebuildJob, error)
	Events(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobEvent, error)
	Artifacts(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobArtifact, error)
}

type jobService struct {
	db         *gorm.DB
	log        *logger.Logger
	jobs       jobrepos.RebuildJobRepo
	events     jobrepos.JobEventRepo
	artifacts  jobrepos.JobArtifactRepo
	inputs     jobrepos.InputRepo
	notify     JobNotifier
	dispatcher Dispatcher
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs jobrepos.RebuildJobRepo,
	events jobrepos.JobEventRepo,
	artifacts jobrepos.JobArtifactRepo,
	inputs jobrepos.InputRepo,
	notify JobNotifier,
	dispatcher Dispatcher,
) JobService {
	if dispatcher == nil {
		dispatcher = PollDispatcher{}
	}
	return &jobService{
		db:         db,
		log:        baseLog.With("service", "JobService"),
		jobs:       jobs,
		events:     events,
		artifacts:  artifacts,
		inputs:     inputs,
		notify:     notify,
		dispatcher: dispatcher,
	}
}

// Create persists a QUEUED job with its CREATED event and submits it. Inputs
// must exist and the template version must be published.
func (s *jobService) Create(dbc dbctx.Context, req CreateRequest) (*types.RebuildJob, error) {
	if req.DeckFileID == uuid.Nil {
		return nil, fmt.Errorf("missing deck_file_id: %w", pkgerrors.ErrInvalidArgument)
	}
	if req.TemplateVersionID == uuid.Nil {
		return nil, fmt.Errorf("missing template_version_id: %w", pkgerrors.ErrInvalidArgument)
	}
	if err := s.checkInputs(dbc, req); err != nil {
		return nil, err
	}

	opts, _ := json.Marshal(map[string]any{"dry_run": req.DryRun})
	job := &types.RebuildJob{
		ID:                uuid.New(),
		JobType:           types.JobTypeDeckRebuild,
		DeckFileID:        req.DeckFileID,
		TemplateVersionID: req.TemplateVersionID,
		Status:            types.StatusQueued,
		Stage:             "queued",
		Options:           datatypes.JSON(opts),
	}
	err := dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if _, err := s.jobs.Create(txc, []*types.RebuildJob{job}); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		if _, err := s.events.AppendData(txc, job.ID, types.EventCreated, job.Stage, 0, "Queued", map[string]any{"dry_run": req.DryRun}); err != nil {
			return fmt.Errorf("append created event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.JobCreated(job)
	}
	s.log.Info("Job created", "job_id", job.ID, "dry_run", req.DryRun, "dispatch", s.dispatcher.Name())

	// Dispatch only after commit so the runner always sees the row.
	if err := s.Submit(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

func (s *jobService) checkInputs(dbc dbctx.Context, req CreateRequest) error {
	if _, err := s.inputs.GetDeckFile(dbc, req.DeckFileID); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return &rebuild.PrerequisiteError{What: fmt.Sprintf("source file %s", req.DeckFileID)}
		}
		return err
	}
	tv, err := s.inputs.GetTemplateVersion(dbc, req.TemplateVersionID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return &rebuild.PrerequisiteError{What: fmt.Sprintf("template version %s", req.TemplateVersionID)}
		}
		return err
	}
	if !tv.Published() {
		return &rebuild.PrerequisiteError{What: fmt.Sprintf("published template version (%s v%d is a draft)", tv.Template, tv.Version)}
	}
	return nil
}

// Submit is the single entry point that starts work on a job. Succeeded jobs
// are left alone; a dispatch failure ends the job as FAILED at stage dispatch.
func (s *jobService) Submit(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id: %w", pkgerrors.ErrInvalidArgument)
	}
	job, err := s.jobs.Load(dbc, jobID)
	if err != nil {
		return err
	}
	if job.Status == types.StatusSucceeded {
		s.log.Debug("Submit skipped; job already succeeded", "job_id", jobID)
		return nil
	}

	ctx := ctxutil.Default(dbc.Ctx)
	derr := s.dispatcher.Dispatch(ctx, jobID)
	if derr == nil {
		return nil
	}

	now := time.Now()
	msg := rebuild.TruncateError(derr)
	ok, uerr := s.jobs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, jobID,
		[]string{types.StatusSucceeded, types.StatusFailed},
		map[string]interface{}{
			"status":        types.StatusFailed,
			"stage":         "dispatch",
			"error":         msg,
			"error_kind":    string(rebuild.KindTransport),
			"last_error_at": now,
			"completed_at":  now,
			"locked_at":     nil,
			"updated_at":    now,
		})
	if uerr != nil {
		s.log.Warn("Mark job failed after dispatch error", "job_id", jobID, "error", uerr)
	}
	if ok {
		if _, err := s.events.AppendData(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, jobID, types.EventFailed, "dispatch", job.Progress, msg, map[string]any{
			"kind":      rebuild.KindTransport,
			"retryable": true,
		}); err != nil {
			s.log.Warn("Append job event failed", "job_id", jobID, "error", err)
		}
		if s.notify != nil {
			job.Status, job.Stage, job.Error = types.StatusFailed, "dispatch", msg
			s.notify.JobFailed(job, "dispatch", msg)
		}
	}
	return fmt.Errorf("dispatch job %s: %w", jobID, derr)
}

func (s *jobService) Get(dbc dbctx.Context, jobID uuid.UUID) (*types.RebuildJob, error) {
	return s.jobs.Load(dbc, jobID)
}

func (s *jobService) Events(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobEvent, error) {
	return s.events.List(dbc, jobID)
}

func (s *jobService) Artifacts(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobArtifact, error) {
	return s.artifacts.List(dbc, jobID)
}
