package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fleetmanager/backend/gomicro/tenantdb"
	"github.com/fleetmanager/backend/services/auth-service/internal/model"
	"gorm.io/gorm"
)

// UserRepository stores users of the tenant bound in the context.
type UserRepository struct {
	store *tenantdb.Store[model.User, *model.User]
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *gorm.DB, opts ...tenantdb.Option) *UserRepository {
	return &UserRepository{store: tenantdb.NewStore[model.User](db, opts...)}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{store: r.store.WithTx(tx)}
}

// Create inserts u for the context tenant.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.store.Create(ctx, u)
}

// FindByID returns the user with id.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return r.store.FindByID(ctx, id)
}

// FindByEmail returns the user with email, or nil when there is none.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.store.First(ctx, &u, "email = ?", email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns one page of users ordered by id, and the total count.
func (r *UserRepository) List(ctx context.Context, page, size int) ([]model.User, int64, error) {
	total, err := r.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	var users []model.User
	err = r.store.Find(ctx, &users, func(db *gorm.DB) *gorm.DB {
		return db.Order("id").Limit(size).Offset(page * size)
	})
	return users, total, err
}

// TouchLastLogin records a successful login.
func (r *UserRepository) TouchLastLogin(ctx context.Context, u *model.User, at time.Time) error {
	if err := r.store.Updates(ctx, u, map[string]interface{}{"last_login": at}); err != nil {
		return err
	}
	u.LastLogin = &at
	return nil
}

// Migrate creates the users table and its per-tenant email index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Tenant{}, &model.User{}); err != nil {
		return err
	}
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_email ON users (tenant_id, email)").Error
}
