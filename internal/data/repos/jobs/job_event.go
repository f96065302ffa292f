package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// JobEventRepo is append-only: there is no update or delete.
type JobEventRepo interface {
	Append(dbc dbctx.Context, ev *types.JobEvent) (*types.JobEvent, error)
	AppendData(dbc dbctx.Context, jobID uuid.UUID, eventType, stage string, progress int, message string, data any) (*types.JobEvent, error)
	List(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobEvent, error)
}

type jobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) JobEventRepo {
	return &jobEventRepo{db: db, log: baseLog.With("repo", "JobEventRepo")}
}

// Append assigns the next per-job sequence number inside a transaction.
func (r *jobEventRepo) Append(dbc dbctx.Context, ev *types.JobEvent) (*types.JobEvent, error) {
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		var last int64
		if err := txx.Model(&types.JobEvent{}).
			Where("job_id = ?", ev.JobID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		ev.Seq = last + 1
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now()
		}
		return txx.Create(ev).Error
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *jobEventRepo) AppendData(dbc dbctx.Context, jobID uuid.UUID, eventType, stage string, progress int, message string, data any) (*types.JobEvent, error) {
	ev := &types.JobEvent{
		JobID:    jobID,
		Type:     eventType,
		Stage:    stage,
		Progress: progress,
		Message:  message,
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		ev.Data = datatypes.JSON(b)
	}
	return r.Append(dbc, ev)
}

func (r *jobEventRepo) List(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobEvent, error) {
	var out []*types.JobEvent
	if err := dbc.Conn(r.db).
		Where("job_id = ?", jobID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
