// Package tenantdb confines gorm access to the tenant bound in the request context.
package tenantdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetmanager/backend/gomicro/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCrossTenantOverride is returned when a record would be bound to a tenant
// other than the one in the current context. It is a security violation,
// not a validation error.
var ErrCrossTenantOverride = errors.New("cross-tenant data access attempt blocked")

// ErrMissingTenantContext is tenant.ErrMissingTenantContext, re-exported for callers of this package.
var ErrMissingTenantContext = tenant.ErrMissingTenantContext

// Owned is embedded in every tenant-owned record. The column is written on
// insert only, so an UPDATE can never move a row to another tenant.
type Owned struct {
	TenantID uint `json:"tenant_id" gorm:"<-:create;not null;index"`
}

// Ownership returns the embedded tenant binding.
func (o *Owned) Ownership() *Owned {
	return o
}

// BindTenant sets the record's tenant. It fails with ErrCrossTenantOverride
// when id differs from the tenant in ctx, or when the record is already bound
// to another tenant; the stored value is left unchanged in both cases.
func (o *Owned) BindTenant(ctx context.Context, id uint) error {
	if current, ok := tenant.Get(ctx); ok && current != id {
		return fmt.Errorf("%w: context tenant %d, requested %d", ErrCrossTenantOverride, current, id)
	}
	if o.TenantID != 0 && o.TenantID != id {
		return fmt.Errorf("%w: record tenant %d, requested %d", ErrCrossTenantOverride, o.TenantID, id)
	}
	o.TenantID = id
	return nil
}

// Record is implemented by pointers to structs that embed Owned.
type Record interface {
	Ownership() *Owned
}

// ByTenant restricts a query to rows of one tenant.
func ByTenant(id uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: "tenant_id"},
			Value:  id,
		})
	}
}
