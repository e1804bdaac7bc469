package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// File is one row per file inside an uploaded container. JSON members keep
// their parsed content. Rows are deduplicated by (name, size, content).
type File struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:text;not null" json:"name"`
	Size int64     `gorm:"not null" json:"size"`

	Content datatypes.JSON `gorm:"type:jsonb" json:"content,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (File) TableName() string { return "files" }
