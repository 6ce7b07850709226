package repository

import (
	"context"
	"strings"

	"github.com/fleetmanager/backend/gomicro/paging"
	"github.com/fleetmanager/backend/gomicro/tenantdb"
	"github.com/fleetmanager/backend/services/fleet-service/internal/model"
	"gorm.io/gorm"
)

// VehicleFilter narrows a vehicle listing. Empty fields match everything.
type VehicleFilter struct {
	Status model.VehicleStatus
	Type   model.VehicleType
	// Search matches license plate or make, case-insensitively.
	Search string
}

func (f VehicleFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		db = db.Where("type = ?", f.Type)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		db = db.Where("(LOWER(license_plate) LIKE ? OR LOWER(make) LIKE ?)", like, like)
	}
	return db
}

// VehicleRepository stores vehicles of the tenant bound in the context.
type VehicleRepository struct {
	store *tenantdb.Store[model.Vehicle, *model.Vehicle]
}

// NewVehicleRepository creates a VehicleRepository.
func NewVehicleRepository(db *gorm.DB, opts ...tenantdb.Option) *VehicleRepository {
	return &VehicleRepository{store: tenantdb.NewStore[model.Vehicle](db, opts...)}
}

// Create inserts v for the context tenant.
func (r *VehicleRepository) Create(ctx context.Context, v *model.Vehicle) error {
	return r.store.Create(ctx, v)
}

// FindByID returns the vehicle with id.
func (r *VehicleRepository) FindByID(ctx context.Context, id uint) (*model.Vehicle, error) {
	return r.store.FindByID(ctx, id)
}

// PlateTaken reports whether plate is used by a vehicle other than exceptID.
func (r *VehicleRepository) PlateTaken(ctx context.Context, plate string, exceptID uint) (bool, error) {
	if exceptID == 0 {
		return r.store.Exists(ctx, "license_plate = ?", plate)
	}
	return r.store.Exists(ctx, "license_plate = ? AND id <> ?", plate, exceptID)
}

// List returns one page of vehicles matching f, and the total match count.
// p.SortBy must already be a known column.
func (r *VehicleRepository) List(ctx context.Context, f VehicleFilter, p paging.Params) ([]model.Vehicle, int64, error) {
	total, err := r.store.Count(ctx, f.scope)
	if err != nil {
		return nil, 0, err
	}
	var vehicles []model.Vehicle
	err = r.store.Find(ctx, &vehicles, f.scope, func(db *gorm.DB) *gorm.DB {
		return db.Order(p.SortBy + " " + p.SortDir).Order("id").Limit(p.Size).Offset(p.Offset())
	})
	return vehicles, total, err
}

// Save writes every column of v.
func (r *VehicleRepository) Save(ctx context.Context, v *model.Vehicle) error {
	return r.store.Save(ctx, v)
}

// Delete soft-deletes v.
func (r *VehicleRepository) Delete(ctx context.Context, v *model.Vehicle) error {
	return r.store.Delete(ctx, v)
}

// CountByTenant returns the number of live vehicles per tenant. It reads
// across tenants and is only meant for metrics.
func (r *VehicleRepository) CountByTenant(ctx context.Context) (map[uint]int64, error) {
	db, err := r.store.System().Query(ctx)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		TenantID uint
		Total    int64
	}
	if err := db.Select("tenant_id, COUNT(*) AS total").Group("tenant_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.TenantID] = row.Total
	}
	return counts, nil
}

// Migrate creates the vehicles table and its per-tenant plate index.
// Soft-deleted vehicles release their plate.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Vehicle{}); err != nil {
		return err
	}
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicles_tenant_plate ON vehicles (tenant_id, license_plate) WHERE deleted_at IS NULL").Error
}
