package repository

import (
	"context"
	"errors"

	"github.com/fleetmanager/backend/services/auth-service/internal/model"
	"gorm.io/gorm"
)

// TenantRepository stores tenants. Tenants are not tenant-owned, so it uses
// plain gorm access.
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a TenantRepository.
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TenantRepository) WithTx(tx *gorm.DB) *TenantRepository {
	return &TenantRepository{db: tx}
}

// Create inserts t.
func (r *TenantRepository) Create(ctx context.Context, t *model.Tenant) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// ExistsBySubdomain reports whether a tenant uses subdomain.
func (r *TenantRepository) ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Tenant{}).Where("subdomain = ?", subdomain).Count(&n).Error
	return n > 0, err
}

// FindBySubdomain returns the tenant with subdomain, or nil when there is none.
func (r *TenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error) {
	var t model.Tenant
	err := r.db.WithContext(ctx).Where("subdomain = ?", subdomain).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByID returns the tenant with id.
func (r *TenantRepository) FindByID(ctx context.Context, id uint) (*model.Tenant, error) {
	var t model.Tenant
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
