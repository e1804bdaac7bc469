package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username string    `gorm:"type:text;not null;uniqueIndex" json:"username"`
	Email    string    `gorm:"type:text" json:"email"`
	IsAdmin  bool      `gorm:"not null;default:false" json:"is_admin"`

	// HMAC of the API key secret, used for token lookup.
	APIKeyHMAC string `gorm:"column:api_key_hmac;type:text;index" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// User <-> Group
	Groups []Group `gorm:"many2many:user_groups;" json:"-"`
}

func (User) TableName() string { return "users" }

type Group struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:text;not null;uniqueIndex" json:"name"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Users []User `gorm:"many2many:user_groups;" json:"-"`
}

func (Group) TableName() string { return "groups" }
