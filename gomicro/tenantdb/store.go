package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	security *metrics.SecurityMetrics
}

// WithSecurityMetrics counts violations and missing tenant context.
func WithSecurityMetrics(m *metrics.SecurityMetrics) Option {
	return func(o *options) { o.security = m }
}

// Store gives tenant-confined access to one model. Every read carries a
// tenant_id predicate taken from the context, every insert is stamped with the
// context tenant, and every mutation is checked for a tenant mismatch before
// any SQL is sent.
//
// By default a context without a tenant is an error. System returns a store
// whose reads run unrestricted in that case, for public and internal call sites
// that supply their own predicates. Writes always need a bound tenant.
type Store[T any, PT interface {
	*T
	Record
}] struct {
	db     *gorm.DB
	schema *schema.Schema
	system bool
	opts   options
}

// NewStore creates a tenant-confined store for T.
func NewStore[T any, PT interface {
	*T
	Record
}](db *gorm.DB, opts ...Option) *Store[T, PT] {
	s := &Store[T, PT]{db: db, schema: parseSchema[T, PT](db)}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// System returns a copy of the store whose reads tolerate a missing tenant
// context. A tenant bound in the context is still enforced.
func (s *Store[T, PT]) System() *Store[T, PT] {
	cp := *s
	cp.system = true
	return &cp
}

// WithTx returns a copy of the store bound to tx.
func (s *Store[T, PT]) WithTx(tx *gorm.DB) *Store[T, PT] {
	cp := *s
	cp.db = tx
	return &cp
}

// Transaction runs fn with a store bound to a new transaction.
func (s *Store[T, PT]) Transaction(ctx context.Context, fn func(tx *Store[T, PT]) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.WithTx(tx))
	})
}

// Query returns a session on T restricted to the context tenant.
func (s *Store[T, PT]) Query(ctx context.Context) (*gorm.DB, error) {
	db := s.db.WithContext(ctx).Model(PT(new(T)))
	if id, ok := tenant.Get(ctx); ok {
		return db.Scopes(ByTenant(id)), nil
	}
	if s.system {
		return db, nil
	}
	s.missing(ctx, "query")
	return nil, ErrMissingTenantContext
}

// First loads the first row matching conds into dest.
func (s *Store[T, PT]) First(ctx context.Context, dest PT, conds ...interface{}) error {
	db, err := s.Query(ctx)
	if err != nil {
		return err
	}
	return db.First(dest, conds...).Error
}

// FindByID loads the row with the given primary key.
func (s *Store[T, PT]) FindByID(ctx context.Context, id uint) (PT, error) {
	rec := PT(new(T))
	if err := s.First(ctx, rec, id); err != nil {
		return nil, err
	}
	return rec, nil
}

// Find loads every row selected by the scopes into dest.
func (s *Store[T, PT]) Find(ctx context.Context, dest *[]T, scopes ...func(*gorm.DB) *gorm.DB) error {
	db, err := s.Query(ctx)
	if err != nil {
		return err
	}
	return db.Scopes(scopes...).Find(dest).Error
}

// Count counts the rows selected by the scopes.
func (s *Store[T, PT]) Count(ctx context.Context, scopes ...func(*gorm.DB) *gorm.DB) (int64, error) {
	db, err := s.Query(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Scopes(scopes...).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Exists reports whether a row matches query.
func (s *Store[T, PT]) Exists(ctx context.Context, query interface{}, args ...interface{}) (bool, error) {
	n, err := s.Count(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
	return n > 0, err
}

// Create inserts rec. A record without a tenant is stamped with the context
// tenant; a record carrying another tenant is rejected.
func (s *Store[T, PT]) Create(ctx context.Context, rec PT) error {
	if err := s.guard(ctx, rec, "create"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// Save writes every column of an existing rec. The row must belong to the
// context tenant; otherwise gorm.ErrRecordNotFound is returned and nothing is written.
func (s *Store[T, PT]) Save(ctx context.Context, rec PT) error {
	if err := s.guard(ctx, rec, "update"); err != nil {
		return err
	}
	if err := s.requireKey(ctx, rec); err != nil {
		return err
	}
	db := s.db.WithContext(ctx).Model(rec).Select("*").Scopes(ByTenant(rec.Ownership().TenantID))
	return rowsOrNotFound(db.Updates(rec))
}

// Updates writes the given columns of rec under the same rules as Save.
func (s *Store[T, PT]) Updates(ctx context.Context, rec PT, values map[string]interface{}) error {
	if _, ok := values["tenant_id"]; ok {
		s.violation(ctx, "update", rec.Ownership().TenantID, 0)
		return fmt.Errorf("%w: tenant_id cannot be updated", ErrCrossTenantOverride)
	}
	if err := s.guard(ctx, rec, "update"); err != nil {
		return err
	}
	if err := s.requireKey(ctx, rec); err != nil {
		return err
	}
	db := s.db.WithContext(ctx).Model(rec).Scopes(ByTenant(rec.Ownership().TenantID))
	return rowsOrNotFound(db.Updates(values))
}

// Delete removes rec under the same rules as Save.
func (s *Store[T, PT]) Delete(ctx context.Context, rec PT) error {
	if err := s.guard(ctx, rec, "delete"); err != nil {
		return err
	}
	if err := s.requireKey(ctx, rec); err != nil {
		return err
	}
	db := s.db.WithContext(ctx).Scopes(ByTenant(rec.Ownership().TenantID))
	return rowsOrNotFound(db.Delete(rec))
}

// requireKey rejects a record without a primary key. gorm drops a zero key
// from the WHERE clause, which would widen the write to every row of the tenant.
func (s *Store[T, PT]) requireKey(ctx context.Context, rec PT) error {
	if s.schema == nil || len(s.schema.PrimaryFields) == 0 {
		return gorm.ErrMissingWhereClause
	}
	rv := reflect.ValueOf(rec)
	for _, f := range s.schema.PrimaryFields {
		if _, zero := f.ValueOf(ctx, rv); zero {
			return fmt.Errorf("%w: %s has no primary key", gorm.ErrMissingWhereClause, s.table())
		}
	}
	return nil
}

// guard enforces the tenant binding of rec before a write.
func (s *Store[T, PT]) guard(ctx context.Context, rec PT, op string) error {
	owned := rec.Ownership()
	current, ok := tenant.Get(ctx)
	if !ok {
		s.missing(ctx, op)
		return ErrMissingTenantContext
	}

	if owned.TenantID == 0 {
		owned.TenantID = current
		return nil
	}
	if owned.TenantID != current {
		s.violation(ctx, op, current, owned.TenantID)
		return fmt.Errorf("%w: context tenant %d, record tenant %d", ErrCrossTenantOverride, current, owned.TenantID)
	}
	return nil
}

func (s *Store[T, PT]) violation(ctx context.Context, op string, current, requested uint) {
	logger.FromContext(ctx).Error("Cross-tenant override blocked",
		zap.String("operation", op),
		zap.String("table", s.table()),
		zap.Uint("context_tenant_id", current),
		zap.Uint("record_tenant_id", requested))
	s.opts.security.TenantViolation(op)
}

func (s *Store[T, PT]) missing(ctx context.Context, op string) {
	// A tenant-owned table reached without a tenant means the filter chain
	// was bypassed or misconfigured.
	logger.FromContext(ctx).Error("Tenant context missing for tenant-owned data",
		zap.String("operation", op),
		zap.String("table", s.table()))
	s.opts.security.MissingTenantContext(op)
}

func (s *Store[T, PT]) table() string {
	if s.schema == nil {
		return ""
	}
	return s.schema.Table
}

func parseSchema[T any, PT interface {
	*T
	Record
}](db *gorm.DB) *schema.Schema {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(PT(new(T))); err != nil {
		return nil
	}
	return stmt.Schema
}

func rowsOrNotFound(db *gorm.DB) error {
	if db.Error != nil {
		return db.Error
	}
	if db.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsSecurityViolation reports whether err is a blocked cross-tenant override.
func IsSecurityViolation(err error) bool {
	return errors.Is(err, ErrCrossTenantOverride)
}
