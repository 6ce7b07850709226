package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"github.com/fleetmanager/backend/services/auth-service/internal/model"
	"github.com/fleetmanager/backend/services/auth-service/internal/repository"
	"go.uber.org/zap"
)

// LoginRequest is the login payload
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	Subdomain string `json:"subdomain" validate:"required"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID uint   `json:"tenant_id"`
}

// Profile is the identity bound to an authenticated request
type Profile struct {
	Tenant *model.Tenant `json:"tenant"`
	User   *model.User   `json:"user"`
}

// UserPage is one page of users
type UserPage struct {
	Users []model.User `json:"users"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Total int64        `json:"total"`
}

// AuthService logs users in and reads the user directory of a tenant.
type AuthService struct {
	tenants *repository.TenantRepository
	users   *repository.UserRepository
	hasher  PasswordHasher
	jwt     *jwtutil.JWTUtil
	now     func() time.Time

	decoyOnce sync.Once
	decoy     string
}

// NewAuthService creates an AuthService.
func NewAuthService(tenants *repository.TenantRepository, users *repository.UserRepository, hasher PasswordHasher, jwt *jwtutil.JWTUtil) *AuthService {
	return &AuthService{tenants: tenants, users: users, hasher: hasher, jwt: jwt, now: time.Now}
}

// Login checks the credentials against the tenant named by the subdomain.
// Every failure is reported as ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	log := logger.FromContext(ctx)

	t, err := s.tenants.FindBySubdomain(ctx, req.Subdomain)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.Active {
		log.Warn("Login for unknown or inactive tenant", zap.String("subdomain", req.Subdomain))
		return nil, ErrInvalidCredentials
	}

	var user *model.User
	err = tenant.Run(ctx, t.ID, func(ctx context.Context) error {
		u, err := s.users.FindByEmail(ctx, req.Email)
		if err != nil {
			return err
		}
		if u == nil {
			// Unknown emails pay for a hash check too, so timing does not reveal them.
			s.hasher.Verify(s.decoyHash(), req.Password)
			return ErrInvalidCredentials
		}
		if u.Status != model.UserStatusActive || !s.hasher.Verify(u.PasswordHash, req.Password) {
			return ErrInvalidCredentials
		}
		if err := s.users.TouchLastLogin(ctx, u, s.now()); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			log.Warn("Invalid credentials", zap.Uint("tenant_id", t.ID))
		}
		return nil, err
	}

	token, err := s.jwt.IssueDefault(user.ID, user.TenantID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	log.Info("User logged in", zap.Uint("user_id", user.ID), zap.Uint("tenant_id", user.TenantID))
	return &LoginResponse{
		Token:    token,
		UserID:   user.ID,
		Email:    user.Email,
		Role:     string(user.Role),
		TenantID: user.TenantID,
	}, nil
}

// decoyHash is a hash with the hasher's cost that no password is checked into.
func (s *AuthService) decoyHash() string {
	s.decoyOnce.Do(func() {
		s.decoy, _ = s.hasher.Hash("decoy-password-never-issued")
	})
	return s.decoy
}

// Me returns the tenant and user bound to ctx.
func (s *AuthService) Me(ctx context.Context, userID uint) (*Profile, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{Tenant: t, User: u}, nil
}

// ListUsers returns one page of the context tenant's users.
func (s *AuthService) ListUsers(ctx context.Context, page, size int) (*UserPage, error) {
	users, total, err := s.users.List(ctx, page, size)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return &UserPage{Users: users, Page: page, Size: size, Total: total}, nil
}
