package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles
const (
	RoleAdmin  = "admin"
	RolePicker = "picker"
)

// UserAuth represents a warehouse account
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type UserAuth struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	Username  string     `gorm:"unique;not null" json:"username" bson:"username"`
	Password  string     `gorm:"not null" json:"-" bson:"password"`
	Name      string     `json:"name,omitempty" bson:"name,omitempty"`
	Role      string     `gorm:"default:'picker'" json:"role" bson:"role"`
	IsActive  bool       `gorm:"default:true" json:"isActive" bson:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// TableName specifies the table name for UserAuth model
func (UserAuth) TableName() string {
	return "user_auths"
}

// BeforeCreate assigns a UUID when the caller did not
func (u *UserAuth) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the account may change the catalog
func (u UserAuth) IsAdmin() bool {
	return u.Role == RoleAdmin
}
