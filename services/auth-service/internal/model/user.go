package model

import (
	"time"

	"github.com/fleetmanager/backend/gomicro/tenantdb"
)

// Role is the coarse authorization role carried in tokens
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleDriver  Role = "DRIVER"
	RoleViewer  Role = "VIEWER"
)

// UserStatus controls whether a user may log in
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User represents the user model stored in the database.
// Emails are unique within a tenant.
type User struct {
	ID uint `json:"id" gorm:"primaryKey"`
	tenantdb.Owned
	Email        string     `json:"email" gorm:"type:varchar(255);not null"`
	PasswordHash string     `json:"-" gorm:"column:password_hash;type:varchar(255);not null"`
	Name         string     `json:"name" gorm:"type:varchar(100);not null"`
	Role         Role       `json:"role" gorm:"type:varchar(20);not null"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);not null;default:ACTIVE"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"<-:create"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
