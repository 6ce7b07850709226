package model

import (
	"time"
)

// Tenant is a registered organization. The subdomain is written on insert
// only and is unique across all tenants.
type Tenant struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Subdomain string    `json:"subdomain" gorm:"<-:create;type:varchar(50);uniqueIndex;not null"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"<-:create"`
}
