package model

import (
	"time"

	"github.com/fleetmanager/backend/gomicro/tenantdb"
	"gorm.io/gorm"
)

// VehicleType is the kind of vehicle
type VehicleType string

const (
	VehicleTypeCar        VehicleType = "CAR"
	VehicleTypeVan        VehicleType = "VAN"
	VehicleTypeTruck      VehicleType = "TRUCK"
	VehicleTypeBus        VehicleType = "BUS"
	VehicleTypeMotorcycle VehicleType = "MOTORCYCLE"
)

// VehicleStatus is the operational state of a vehicle
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "AVAILABLE"
	VehicleStatusInUse       VehicleStatus = "IN_USE"
	VehicleStatusMaintenance VehicleStatus = "MAINTENANCE"
	VehicleStatusRetired     VehicleStatus = "RETIRED"
)

// Vehicle represents the vehicle model stored in the database.
// License plates are unique within a tenant.
type Vehicle struct {
	ID uint `json:"id" gorm:"primaryKey"`
	tenantdb.Owned
	LicensePlate string         `json:"license_plate" gorm:"type:varchar(20);not null"`
	Make         string         `json:"make" gorm:"type:varchar(50);not null"`
	Model        string         `json:"model" gorm:"type:varchar(50);not null"`
	Year         int            `json:"year"`
	VIN          string         `json:"vin" gorm:"column:vin;type:varchar(17)"`
	Type         VehicleType    `json:"type" gorm:"type:varchar(20);not null;index"`
	Status       VehicleStatus  `json:"status" gorm:"type:varchar(20);not null;default:AVAILABLE;index"`
	ImageURL     string         `json:"image_url" gorm:"column:image_url;type:varchar(500)"`
	Odometer     int64          `json:"odometer" gorm:"not null;default:0"`
	CreatedBy    uint           `json:"created_by" gorm:"<-:create"`
	UpdatedBy    uint           `json:"updated_by"`
	CreatedAt    time.Time      `json:"created_at" gorm:"<-:create"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
