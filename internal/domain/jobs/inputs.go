package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeckFile is an uploaded source presentation.
type DeckFile struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OriginalName string    `gorm:"column:original_name;not null" json:"original_name"`
	StorageKey   string    `gorm:"column:storage_key;not null" json:"storage_key"`
	SizeBytes    int64     `gorm:"column:size_bytes" json:"size_bytes"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (DeckFile) TableName() string { return "deck_file" }

func (f *DeckFile) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// TemplateVersion is one immutable revision of a corporate template. Only
// published versions can be rebuilt against.
type TemplateVersion struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Template    string     `gorm:"column:template;not null;index" json:"template"`
	Version     int        `gorm:"column:version;not null" json:"version"`
	StorageKey  string     `gorm:"column:storage_key;not null" json:"storage_key"`
	PublishedAt *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

func (TemplateVersion) TableName() string { return "template_version" }

func (v *TemplateVersion) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (v *TemplateVersion) Published() bool { return v != nil && v.PublishedAt != nil }
