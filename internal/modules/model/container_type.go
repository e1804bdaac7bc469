package model

import (
	"time"

	"github.com/google/uuid"
)

// ContainerType identifies the producing instrument or pipeline of a
// dataset. Rows are deduplicated by the (name, external id, version) tuple
// with get-or-create semantics and never updated in place.
type ContainerType struct {
	DBID uuid.UUID `gorm:"column:dbid;type:uuid;primaryKey" json:"dbid"`

	Name string `gorm:"type:text;not null" json:"name"`

	// External identifier of the container type and its version. Version is
	// required whenever the identifier is given.
	ExternalID *string `gorm:"column:external_id;type:text" json:"id,omitempty"`
	Version    *string `gorm:"type:text" json:"version,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ContainerType) TableName() string { return "container_types" }

func (t *ContainerType) String() string {
	if t.Version != nil {
		return t.Name + ", v" + *t.Version
	}
	return t.Name
}
