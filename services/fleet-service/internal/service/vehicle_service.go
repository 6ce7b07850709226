package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/paging"
	"github.com/fleetmanager/backend/services/fleet-service/internal/model"
	"github.com/fleetmanager/backend/services/fleet-service/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPlateTaken is returned when a license plate is already used in the tenant.
	ErrPlateTaken = apperror.Conflict("License plate already exists for this tenant")

	// ErrVehicleNotFound hides whether the vehicle is missing or owned by another tenant.
	ErrVehicleNotFound = apperror.NotFound("Vehicle not found")
)

// SortColumns are the columns a listing may be ordered by.
var SortColumns = []string{"created_at", "updated_at", "license_plate", "make", "model", "year", "odometer", "status", "type"}

// VehicleRequest is the create and update payload
type VehicleRequest struct {
	LicensePlate string              `json:"license_plate" validate:"required,min=3,max=20"`
	Make         string              `json:"make" validate:"required,max=50"`
	Model        string              `json:"model" validate:"required,max=50"`
	Year         int                 `json:"year" validate:"required,min=1900,max=2100"`
	VIN          string              `json:"vin" validate:"omitempty,min=11,max=17"`
	Type         model.VehicleType   `json:"type" validate:"required,oneof=CAR VAN TRUCK BUS MOTORCYCLE"`
	Status       model.VehicleStatus `json:"status" validate:"omitempty,oneof=AVAILABLE IN_USE MAINTENANCE RETIRED"`
	ImageURL     string              `json:"image_url" validate:"omitempty,max=500,http_url"`
	Odometer     int64               `json:"odometer" validate:"min=0"`
}

// VehiclePage is one page of vehicles
type VehiclePage struct {
	Vehicles   []model.Vehicle `json:"vehicles"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"total_pages"`
}

// VehicleService manages the vehicles of the tenant bound in the context.
type VehicleService struct {
	vehicles *repository.VehicleRepository
}

// NewVehicleService creates a VehicleService.
func NewVehicleService(vehicles *repository.VehicleRepository) *VehicleService {
	return &VehicleService{vehicles: vehicles}
}

// Create registers a new AVAILABLE vehicle.
func (s *VehicleService) Create(ctx context.Context, userID uint, req VehicleRequest) (*model.Vehicle, error) {
	log := logger.FromContext(ctx)

	taken, err := s.vehicles.PlateTaken(ctx, req.LicensePlate, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		log.Warn("License plate already exists", zap.String("license_plate", req.LicensePlate))
		return nil, ErrPlateTaken
	}

	v := &model.Vehicle{
		LicensePlate: req.LicensePlate,
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		VIN:          req.VIN,
		Type:         req.Type,
		Status:       model.VehicleStatusAvailable,
		ImageURL:     req.ImageURL,
		Odometer:     req.Odometer,
		CreatedBy:    userID,
		UpdatedBy:    userID,
	}
	if err := s.vehicles.Create(ctx, v); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrPlateTaken
		}
		return nil, err
	}

	log.Info("Vehicle created", zap.Uint("vehicle_id", v.ID), zap.String("license_plate", v.LicensePlate))
	return v, nil
}

// Get returns one vehicle.
func (s *VehicleService) Get(ctx context.Context, id uint) (*model.Vehicle, error) {
	v, err := s.vehicles.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVehicleNotFound
	}
	return v, err
}

// List returns one page of vehicles matching f.
func (s *VehicleService) List(ctx context.Context, f repository.VehicleFilter, p paging.Params) (*VehiclePage, error) {
	f.Status = model.VehicleStatus(strings.ToUpper(string(f.Status)))
	f.Type = model.VehicleType(strings.ToUpper(string(f.Type)))
	if !validStatus(f.Status) {
		return nil, apperror.BadRequest("Invalid status filter")
	}
	if !validType(f.Type) {
		return nil, apperror.BadRequest("Invalid type filter")
	}

	vehicles, total, err := s.vehicles.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if vehicles == nil {
		vehicles = []model.Vehicle{}
	}
	return &VehiclePage{
		Vehicles:   vehicles,
		Page:       p.Page,
		Size:       p.Size,
		Total:      total,
		TotalPages: p.TotalPages(total),
	}, nil
}

// Update replaces the attributes of vehicle id. An empty status keeps the current one.
func (s *VehicleService) Update(ctx context.Context, id, userID uint, req VehicleRequest) (*model.Vehicle, error) {
	log := logger.FromContext(ctx)

	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.LicensePlate != v.LicensePlate {
		taken, err := s.vehicles.PlateTaken(ctx, req.LicensePlate, v.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			log.Warn("License plate already exists",
				zap.Uint("vehicle_id", v.ID),
				zap.String("license_plate", req.LicensePlate))
			return nil, ErrPlateTaken
		}
	}

	v.LicensePlate = req.LicensePlate
	v.Make = req.Make
	v.Model = req.Model
	v.Year = req.Year
	v.VIN = req.VIN
	v.Type = req.Type
	if req.Status != "" {
		v.Status = req.Status
	}
	v.ImageURL = req.ImageURL
	v.Odometer = req.Odometer
	v.UpdatedBy = userID
	// TenantID stays as loaded; the store rejects any change.

	if err := s.vehicles.Save(ctx, v); err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, ErrPlateTaken
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}

	log.Info("Vehicle updated", zap.Uint("vehicle_id", v.ID))
	return v, nil
}

// Delete removes vehicle id.
func (s *VehicleService) Delete(ctx context.Context, id uint) error {
	v, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.vehicles.Delete(ctx, v); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVehicleNotFound
		}
		return err
	}
	logger.FromContext(ctx).Info("Vehicle deleted", zap.Uint("vehicle_id", id))
	return nil
}

// CountByTenant returns the live vehicles of every tenant. It is not
// confined to a tenant and must only feed metrics.
func (s *VehicleService) CountByTenant(ctx context.Context) (map[uint]int64, error) {
	return s.vehicles.CountByTenant(ctx)
}

func validStatus(s model.VehicleStatus) bool {
	switch s {
	case "", model.VehicleStatusAvailable, model.VehicleStatusInUse, model.VehicleStatusMaintenance, model.VehicleStatusRetired:
		return true
	}
	return false
}

func validType(t model.VehicleType) bool {
	switch t {
	case "", model.VehicleTypeCar, model.VehicleTypeVan, model.VehicleTypeTruck, model.VehicleTypeBus, model.VehicleTypeMotorcycle:
		return true
	}
	return false
}
