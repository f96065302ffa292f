package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ArtifactKind string

const (
	ArtifactInputDeck     ArtifactKind = "INPUT_DECK"
	ArtifactInputTemplate ArtifactKind = "INPUT_TEMPLATE"
	ArtifactOutputDeck    ArtifactKind = "OUTPUT_DECK"
	ArtifactMappingJSON   ArtifactKind = "MAPPING_JSON"
	ArtifactLog           ArtifactKind = "LOG"
)

// JobArtifact points at a stored blob produced or consumed by a job.
type JobArtifact struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_job_artifact_kind_name,priority:1" json:"job_id"`
	Kind        ArtifactKind `gorm:"column:kind;not null;uniqueIndex:idx_job_artifact_kind_name,priority:2" json:"kind"`
	Name        string       `gorm:"column:name;not null;uniqueIndex:idx_job_artifact_kind_name,priority:3" json:"name"`
	StorageKey  string       `gorm:"column:storage_key;not null" json:"storage_key"`
	ContentType string       `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64        `gorm:"column:size_bytes" json:"size_bytes"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (JobArtifact) TableName() string { return "job_artifact" }

func (a *JobArtifact) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
