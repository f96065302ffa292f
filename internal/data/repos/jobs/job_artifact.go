package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

type JobArtifactRepo interface {
	// Upsert records an artifact, replacing the storage reference of an existing (job, kind, name) row.
	Upsert(dbc dbctx.Context, a *types.JobArtifact) error
	Get(dbc dbctx.Context, jobID uuid.UUID, kind types.ArtifactKind, name string) (*types.JobArtifact, error)
	List(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobArtifact, error)
}

type jobArtifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobArtifactRepo(db *gorm.DB, baseLog *logger.Logger) JobArtifactRepo {
	return &jobArtifactRepo{db: db, log: baseLog.With("repo", "JobArtifactRepo")}
}

func (r *jobArtifactRepo) Upsert(dbc dbctx.Context, a *types.JobArtifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "kind"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_key", "content_type", "size_bytes"}),
	}).Create(a).Error
}

// Get returns nil without error when the artifact does not exist.
func (r *jobArtifactRepo) Get(dbc dbctx.Context, jobID uuid.UUID, kind types.ArtifactKind, name string) (*types.JobArtifact, error) {
	var a types.JobArtifact
	err := dbc.Conn(r.db).
		Where("job_id = ? AND kind = ? AND name = ?", jobID, kind, name).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *jobArtifactRepo) List(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobArtifact, error) {
	var out []*types.JobArtifact
	if err := dbc.Conn(r.db).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
