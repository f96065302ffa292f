package jobs

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deckrebuild-backend/internal/pkg/errors"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

// InputRepo holds the records a job depends on: source decks and template versions.
type InputRepo interface {
	CreateDeckFile(dbc dbctx.Context, f *types.DeckFile) error
	CreateTemplateVersion(dbc dbctx.Context, v *types.TemplateVersion) error
	GetDeckFile(dbc dbctx.Context, id uuid.UUID) (*types.DeckFile, error)
	GetTemplateVersion(dbc dbctx.Context, id uuid.UUID) (*types.TemplateVersion, error)
}

type inputRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInputRepo(db *gorm.DB, baseLog *logger.Logger) InputRepo {
	return &inputRepo{db: db, log: baseLog.With("repo", "InputRepo")}
}

func (r *inputRepo) CreateDeckFile(dbc dbctx.Context, f *types.DeckFile) error {
	return dbc.Conn(r.db).Create(f).Error
}

func (r *inputRepo) CreateTemplateVersion(dbc dbctx.Context, v *types.TemplateVersion) error {
	return dbc.Conn(r.db).Create(v).Error
}

func (r *inputRepo) GetDeckFile(dbc dbctx.Context, id uuid.UUID) (*types.DeckFile, error) {
	var f types.DeckFile
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *inputRepo) GetTemplateVersion(dbc dbctx.Context, id uuid.UUID) (*types.TemplateVersion, error) {
	var v types.TemplateVersion
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
