package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deckrebuild-backend/internal/pkg/errors"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// ClaimPolicy decides which jobs a worker may pick up.
type ClaimPolicy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type RebuildJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.RebuildJob) ([]*types.RebuildJob, error)
	Load(dbc dbctx.Context, id uuid.UUID) (*types.RebuildJob, error)
	ClaimNextRunnable(dbc dbctx.Context, policy ClaimPolicy) (*types.RebuildJob, error)
	ClaimByID(dbc dbctx.Context, id uuid.UUID, policy ClaimPolicy) (*types.RebuildJob, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type rebuildJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRebuildJobRepo(db *gorm.DB, baseLog *logger.Logger) RebuildJobRepo {
	return &rebuildJobRepo{
		db:  db,
		log: baseLog.With("repo", "RebuildJobRepo"),
	}
}

func (r *rebuildJobRepo) Create(dbc dbctx.Context, jobs []*types.RebuildJob) ([]*types.RebuildJob, error) {
	if len(jobs) == 0 {
		return []*types.RebuildJob{}, nil
	}
	if err := dbc.Conn(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *rebuildJobRepo) Load(dbc dbctx.Context, id uuid.UUID) (*types.RebuildJob, error) {
	var job types.RebuildJob
	err := dbc.Conn(r.db).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// runnable restricts q to jobs a worker may start now: queued jobs, failed
// jobs still inside their retry budget whose delay has elapsed, and running
// jobs whose worker stopped heart-beating.
func runnable(q *gorm.DB, policy ClaimPolicy, now time.Time) *gorm.DB {
	return q.Where(`
        (
          status = ?
          OR (
            status = ?
            AND non_retryable = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at <= ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.StatusQueued,
		types.StatusFailed, false, policy.MaxAttempts, now.Add(-policy.RetryDelay),
		types.StatusRunning, now.Add(-policy.StaleRunning))
}

func (r *rebuildJobRepo) ClaimNextRunnable(dbc dbctx.Context, policy ClaimPolicy) (*types.RebuildJob, error) {
	return r.claim(dbc, policy, nil)
}

// ClaimByID claims one specific job. It returns nil when the job exists but
// is not runnable (already running, succeeded, or out of retries).
func (r *rebuildJobRepo) ClaimByID(dbc dbctx.Context, id uuid.UUID, policy ClaimPolicy) (*types.RebuildJob, error) {
	return r.claim(dbc, policy, &id)
}

func (r *rebuildJobRepo) claim(dbc dbctx.Context, policy ClaimPolicy, id *uuid.UUID) (*types.RebuildJob, error) {
	now := time.Now()
	var claimed *types.RebuildJob
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		var job types.RebuildJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if id != nil {
			q = q.Where("id = ?", *id)
		}
		qErr := runnable(q, policy, now).Order("created_at ASC").First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		res := txx.Model(&types.RebuildJob{}).
			Where("id = ? AND status = ? AND attempts = ?", job.ID, job.Status, job.Attempts).
			Updates(map[string]interface{}{
				"status":       types.StatusRunning,
				"stage":        "running",
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"started_at":   gorm.Expr("COALESCE(started_at, ?)", now),
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to another claimer.
			return nil
		}
		if err := txx.Where("id = ?", job.ID).First(&job).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *rebuildJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.RebuildJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *rebuildJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := dbc.Conn(r.db).
		Model(&types.RebuildJob{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *rebuildJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return dbc.Conn(r.db).
		Model(&types.RebuildJob{}).
		Where("id = ? AND status = ?", id, types.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
