package model

import (
	"time"

	"github.com/google/uuid"
)

// Software describes a dependency used to produce a dataset. Rows are
// deduplicated by (name, version, external id, id type).
type Software struct {
	DBID uuid.UUID `gorm:"column:dbid;type:uuid;primaryKey" json:"dbid"`

	Name    string `gorm:"type:text;not null" json:"name"`
	Version string `gorm:"type:text;not null" json:"version"`

	// Optional external identifier; IDType is required whenever ExternalID
	// is set.
	ExternalID string `gorm:"column:external_id;type:text;not null;default:''" json:"id,omitempty"`
	IDType     string `gorm:"column:id_type;type:text;not null;default:''" json:"id_type,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Software) TableName() string { return "softwares" }
