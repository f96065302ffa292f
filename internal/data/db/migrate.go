package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/deckrebuild-backend/internal/domain/jobs"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&jobs.DeckFile{},
		&jobs.TemplateVersion{},
		&jobs.RebuildJob{},
		&jobs.JobEvent{},
		&jobs.JobArtifact{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
