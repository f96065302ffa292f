package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const JobTypeDeckRebuild = "deck_rebuild"

const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Terminal reports whether no further work is scheduled for status.
// FAILED jobs may still be re-claimed by the retry path while retryable.
func Terminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// RebuildJob is one request to rebuild a deck against a template version.
// Options holds {"dry_run": bool}; Result holds the final report.
type RebuildJob struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType           string         `gorm:"column:job_type;not null;index" json:"job_type"`
	DeckFileID        uuid.UUID      `gorm:"type:uuid;column:deck_file_id;not null;index" json:"deck_file_id"`
	TemplateVersionID uuid.UUID      `gorm:"type:uuid;column:template_version_id;not null;index" json:"template_version_id"`
	Status            string         `gorm:"column:status;not null;index" json:"status"`
	Stage             string         `gorm:"column:stage;not null" json:"stage"`
	Progress          int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts          int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error             string         `gorm:"column:error;type:text" json:"error,omitempty"`
	ErrorKind         string         `gorm:"column:error_kind" json:"error_kind,omitempty"`
	NonRetryable      bool           `gorm:"column:non_retryable;not null;default:false" json:"non_retryable"`
	Options           datatypes.JSON `gorm:"column:options" json:"options"`
	Result            datatypes.JSON `gorm:"column:result" json:"result"`
	LockedAt          *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt       *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt       *time.Time     `gorm:"column:last_error_at;index" json:"last_error_at,omitempty"`
	StartedAt         *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (RebuildJob) TableName() string { return "rebuild_job" }

func (j *RebuildJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.JobType == "" {
		j.JobType = JobTypeDeckRebuild
	}
	if j.Status == "" {
		j.Status = StatusQueued
	}
	if j.Stage == "" {
		j.Stage = "queued"
	}
	return nil
}
