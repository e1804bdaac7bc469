package model

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is the full record of an uploaded container. The identifier is
// declared by the uploaded document itself, not generated by the server.
type Dataset struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Owner   *User     `gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:RESTRICT,OnUpdate:CASCADE;" json:"owner,omitempty"`

	// Server side bookkeeping.
	UploadTime time.Time `gorm:"autoCreateTime" json:"upload_time"`
	Size       int64     `gorm:"not null" json:"size"`
	ServerPath string    `gorm:"type:text" json:"-"`

	// Lifecycle flags.
	Complete            bool   `gorm:"not null" json:"complete"`
	Valid               bool   `gorm:"not null" json:"valid"`
	InvalidationComment string `gorm:"type:text;not null;default:''" json:"invalidation_comment"`

	// Content document fields.
	Created         time.Time `gorm:"not null" json:"created"`
	StorageTime     time.Time `gorm:"not null" json:"storage_time"`
	Static          bool      `gorm:"not null;default:false" json:"static"`
	Hash            string    `gorm:"type:text" json:"hash"`
	ContainerTypeID uuid.UUID `gorm:"type:uuid;not null" json:"-"`
	ContainerType   *ContainerType `gorm:"foreignKey:ContainerTypeID;references:DBID;constraint:OnDelete:RESTRICT,OnUpdate:CASCADE;" json:"container_type,omitempty"`
	ModelVersion    string    `gorm:"type:text;not null" json:"model_version"`

	// StaticHash mirrors Hash while Static is true and is nil otherwise.
	// The unique index is the authoritative hash uniqueness guard among
	// static datasets; the application pre-check only yields the friendlier
	// redirect response.
	StaticHash *string `gorm:"type:text;uniqueIndex" json:"-"`

	// Meta document fields.
	Author       string     `gorm:"type:text;not null" json:"author"`
	Email        string     `gorm:"type:text;not null" json:"email"`
	Organization string     `gorm:"type:text;not null;default:''" json:"organization"`
	Comment      string     `gorm:"type:text;not null;default:''" json:"comment"`
	Title        string     `gorm:"type:text;not null" json:"title"`
	Description  string     `gorm:"type:text;not null;default:''" json:"description"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	DOI          string     `gorm:"column:doi;type:text;not null;default:''" json:"doi"`
	License      string     `gorm:"type:text;not null;default:''" json:"license"`

	// Successor link of the replacement chain. Points at the dataset that
	// replaces this one. Unique: a dataset replaces at most one
	// predecessor, so chains never branch.
	ReplacedByID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"replaced_by_id,omitempty"`

	UsedSoftware []Software `gorm:"many2many:dataset_software;" json:"used_software,omitempty"`
	Keywords     []Keyword  `gorm:"many2many:dataset_keywords;" json:"keywords,omitempty"`
	Files        []File     `gorm:"many2many:dataset_files;" json:"content,omitempty"`
}

func (Dataset) TableName() string { return "datasets" }

// IsReplaced reports whether a successor exists.
func (d *Dataset) IsReplaced() bool { return d.ReplacedByID != nil }

// DatasetPlaceholder is a forward reference stand-in: it exists when a
// dataset identifier was declared as a "replaces" target before that
// dataset was ever uploaded. It carries no metadata beside the identifier
// and the replacement link.
type DatasetPlaceholder struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReplacedByID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"replaced_by_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DatasetPlaceholder) TableName() string { return "dataset_placeholders" }

func (p *DatasetPlaceholder) IsReplaced() bool { return p.ReplacedByID != nil }

// RecordRef is the tagged union returned when a chain link may resolve to
// either a full record or a placeholder. Exactly one of the two fields is
// set on a non-zero ref.
type RecordRef struct {
	Full        *Dataset
	Placeholder *DatasetPlaceholder
}

// IsZero reports whether the ref points at nothing.
func (r RecordRef) IsZero() bool { return r.Full == nil && r.Placeholder == nil }

// IsPlaceholder reports whether the ref resolves to a placeholder only.
func (r RecordRef) IsPlaceholder() bool { return r.Placeholder != nil }

// ID returns the identifier of the referenced record.
func (r RecordRef) ID() uuid.UUID {
	switch {
	case r.Full != nil:
		return r.Full.ID
	case r.Placeholder != nil:
		return r.Placeholder.ID
	default:
		return uuid.Nil
	}
}

// ReplacedByID returns the successor link of the referenced record.
func (r RecordRef) ReplacedByID() *uuid.UUID {
	switch {
	case r.Full != nil:
		return r.Full.ReplacedByID
	case r.Placeholder != nil:
		return r.Placeholder.ReplacedByID
	default:
		return nil
	}
}
