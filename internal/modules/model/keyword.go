package model

import (
	"time"

	"github.com/google/uuid"
)

// Keyword is a free text tag, deduplicated by name.
type Keyword struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:text;not null;uniqueIndex" json:"name"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Keyword) TableName() string { return "keywords" }
