package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventCreated   = "CREATED"
	EventStarted   = "STARTED"
	EventProgress  = "PROGRESS"
	EventSucceeded = "SUCCEEDED"
	EventFailed    = "FAILED"
)

// JobEvent is the append-only timeline of a job. Rows are never updated or
// deleted; Seq orders them within a job.
type JobEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_job_event_job_seq,priority:1" json:"job_id"`
	Seq       int64          `gorm:"column:seq;not null;uniqueIndex:idx_job_event_job_seq,priority:2" json:"seq"`
	Type      string         `gorm:"column:type;not null" json:"type"`
	Stage     string         `gorm:"column:stage;not null" json:"stage"`
	Progress  int            `gorm:"column:progress;not null" json:"progress"`
	Message   string         `gorm:"column:message;type:text" json:"message,omitempty"`
	Data      datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (JobEvent) TableName() string { return "job_event" }

func (e *JobEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
