package app

import (
	"gorm.io/gorm"

	jobrepos "github.com/yungbote/deckrebuild-backend/internal/data/repos/jobs"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

type Repos struct {
	Jobs      jobrepos.RebuildJobRepo
	Events    jobrepos.JobEventRepo
	Artifacts jobrepos.JobArtifactRepo
	Inputs    jobrepos.InputRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Jobs:      jobrepos.NewRebuildJobRepo(db, log),
		Events:    jobrepos.NewJobEventRepo(db, log),
		Artifacts: jobrepos.NewJobArtifactRepo(db, log),
		Inputs:    jobrepos.NewInputRepo(db, log),
	}
}
