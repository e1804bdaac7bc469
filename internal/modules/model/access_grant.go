package model

import (
	"time"

	"github.com/google/uuid"
)

// GrantAction names a permission that can be granted on a dataset.
type GrantAction string

const (
	// ActionView is read only access.
	ActionView GrantAction = "view"
	// ActionChange is read and write access.
	ActionChange GrantAction = "change"
)

// AccessGrant gives a user or a group an action on a dataset. Exactly one
// of UserID and GroupID is set. Ownership is not a grant; it lives on the
// dataset itself.
type AccessGrant struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID   `gorm:"type:uuid;not null;index" json:"dataset_id"`
	Action    GrantAction `gorm:"type:text;not null" json:"action"`

	UserID  *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	GroupID *uuid.UUID `gorm:"type:uuid;index" json:"group_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Dataset *Dataset `gorm:"foreignKey:DatasetID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (AccessGrant) TableName() string { return "access_grants" }
