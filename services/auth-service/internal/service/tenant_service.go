package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"github.com/fleetmanager/backend/services/auth-service/internal/model"
	"github.com/fleetmanager/backend/services/auth-service/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterTenantRequest is the tenant registration payload
type RegisterTenantRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,max=100"`
	Subdomain        string `json:"subdomain" validate:"required,min=3,max=50,subdomain"`
	AdminName        string `json:"admin_name" validate:"required,max=100"`
	AdminEmail       string `json:"admin_email" validate:"required,email"`
	AdminPassword    string `json:"admin_password" validate:"required,min=8"`
}

// RegisterTenantResponse is returned after a successful registration
type RegisterTenantResponse struct {
	TenantID    uint   `json:"tenant_id"`
	AdminUserID uint   `json:"admin_user_id"`
	Token       string `json:"token"`
}

// TenantService registers tenants together with their first administrator.
type TenantService struct {
	db      *gorm.DB
	tenants *repository.TenantRepository
	users   *repository.UserRepository
	hasher  PasswordHasher
	jwt     *jwtutil.JWTUtil
}

// NewTenantService creates a TenantService.
func NewTenantService(db *gorm.DB, tenants *repository.TenantRepository, users *repository.UserRepository, hasher PasswordHasher, jwt *jwtutil.JWTUtil) *TenantService {
	return &TenantService{db: db, tenants: tenants, users: users, hasher: hasher, jwt: jwt}
}

// Register creates the tenant and its ADMIN user in one transaction and
// returns a token for the new administrator.
func (s *TenantService) Register(ctx context.Context, req RegisterTenantRequest) (*RegisterTenantResponse, error) {
	log := logger.FromContext(ctx)

	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, apperror.Wrap(http.StatusInternalServerError, "Failed to register tenant", fmt.Errorf("hash admin password: %w", err))
	}

	var (
		t     *model.Tenant
		admin *model.User
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenants := s.tenants.WithTx(tx)

		taken, err := tenants.ExistsBySubdomain(ctx, req.Subdomain)
		if err != nil {
			return err
		}
		if taken {
			return ErrSubdomainTaken
		}

		t = &model.Tenant{Name: req.OrganizationName, Subdomain: req.Subdomain, Active: true}
		if err := tenants.Create(ctx, t); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSubdomainTaken
			}
			return err
		}

		admin = &model.User{
			Email:        req.AdminEmail,
			PasswordHash: hash,
			Name:         req.AdminName,
			Role:         model.RoleAdmin,
			Status:       model.UserStatusActive,
		}
		// The new tenant is bound for the insert so the admin is stamped by the
		// same path every other tenant-owned write takes.
		return tenant.Run(ctx, t.ID, func(ctx context.Context) error {
			return s.users.WithTx(tx).Create(ctx, admin)
		})
	})
	if err != nil {
		if errors.Is(err, ErrSubdomainTaken) {
			log.Warn("Subdomain already taken", zap.String("subdomain", req.Subdomain))
		}
		return nil, err
	}

	token, err := s.jwt.IssueDefault(admin.ID, t.ID, string(admin.Role))
	if err != nil {
		return nil, apperror.Wrap(http.StatusInternalServerError, "Failed to register tenant", fmt.Errorf("issue token: %w", err))
	}

	log.Info("Tenant registered",
		zap.Uint("tenant_id", t.ID),
		zap.String("subdomain", t.Subdomain),
		zap.Uint("admin_user_id", admin.ID))

	return &RegisterTenantResponse{TenantID: t.ID, AdminUserID: admin.ID, Token: token}, nil
}
