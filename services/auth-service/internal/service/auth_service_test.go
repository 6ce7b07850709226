package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/database/databasetest"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"github.com/fleetmanager/backend/services/auth-service/internal/model"
	"github.com/fleetmanager/backend/services/auth-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	users   *repository.UserRepository
	tenants *TenantService
	auth    *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := databasetest.NewDB(t)
	require.NoError(t, repository.Migrate(db))

	jwt, err := jwtutil.NewJWTUtil(config.JWTConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		TTL:    time.Hour,
		Issuer: "test",
	})
	require.NoError(t, err)

	tenantRepo := repository.NewTenantRepository(db)
	users := repository.NewUserRepository(db)
	hasher := &BcryptHasher{Cost: bcrypt.MinCost}
	return &fixture{
		db:      db,
		users:   users,
		tenants: NewTenantService(db, tenantRepo, users, hasher, jwt),
		auth:    NewAuthService(tenantRepo, users, hasher, jwt),
	}
}

func (f *fixture) register(t *testing.T, subdomain, email string) *RegisterTenantResponse {
	t.Helper()
	resp, err := f.tenants.Register(context.Background(), RegisterTenantRequest{
		OrganizationName: subdomain + " inc",
		Subdomain:        subdomain,
		AdminName:        "Admin",
		AdminEmail:       email,
		AdminPassword:    "s3cretpass",
	})
	require.NoError(t, err)
	return resp
}

func TestRegisterStampsAdminWithNewTenant(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "acme", "ada@acme.test")

	var admin model.User
	require.NoError(t, f.db.First(&admin, resp.AdminUserID).Error)
	assert.Equal(t, resp.TenantID, admin.TenantID)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	assert.NotEqual(t, "s3cretpass", admin.PasswordHash)
}

func TestRegisterConflictLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.register(t, "acme", "ada@acme.test")

	_, err := f.tenants.Register(context.Background(), RegisterTenantRequest{
		OrganizationName: "Other",
		Subdomain:        "acme",
		AdminName:        "Eve",
		AdminEmail:       "eve@other.test",
		AdminPassword:    "s3cretpass",
	})
	require.ErrorIs(t, err, ErrSubdomainTaken)

	var count int64
	require.NoError(t, f.db.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSameEmailInTwoTenants(t *testing.T) {
	f := newFixture(t)
	acme := f.register(t, "acme", "ops@example.test")
	globex := f.register(t, "globex", "ops@example.test")
	assert.NotEqual(t, acme.TenantID, globex.TenantID)

	resp, err := f.auth.Login(context.Background(), LoginRequest{Email: "ops@example.test", Password: "s3cretpass", Subdomain: "globex"})
	require.NoError(t, err)
	assert.Equal(t, globex.TenantID, resp.TenantID)
	assert.Equal(t, globex.AdminUserID, resp.UserID)
}

func TestLoginRecordsLastLogin(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "acme", "ada@acme.test")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.auth.now = func() time.Time { return at }

	_, err := f.auth.Login(context.Background(), LoginRequest{Email: "ada@acme.test", Password: "s3cretpass", Subdomain: "acme"})
	require.NoError(t, err)

	var admin model.User
	require.NoError(t, f.db.First(&admin, resp.AdminUserID).Error)
	require.NotNil(t, admin.LastLogin)
	assert.True(t, at.Equal(*admin.LastLogin))
}

func TestLoginRejectsInactiveUsers(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "acme", "ada@acme.test")
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", resp.AdminUserID).
		Update("status", model.UserStatusSuspended).Error)

	_, err := f.auth.Login(context.Background(), LoginRequest{Email: "ada@acme.test", Password: "s3cretpass", Subdomain: "acme"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsInactiveTenants(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "acme", "ada@acme.test")
	require.NoError(t, f.db.Model(&model.Tenant{}).Where("id = ?", resp.TenantID).Update("active", false).Error)

	_, err := f.auth.Login(context.Background(), LoginRequest{Email: "ada@acme.test", Password: "s3cretpass", Subdomain: "acme"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

type countingHasher struct {
	PasswordHasher
	verified []string
}

func (h *countingHasher) Verify(hash, password string) bool {
	h.verified = append(h.verified, hash)
	return h.PasswordHasher.Verify(hash, password)
}

func TestLoginChecksAHashForUnknownEmails(t *testing.T) {
	f := newFixture(t)
	f.register(t, "acme", "ada@acme.test")

	hasher := &countingHasher{PasswordHasher: &BcryptHasher{Cost: bcrypt.MinCost}}
	f.auth.hasher = hasher

	_, err := f.auth.Login(context.Background(), LoginRequest{
		Email:     "nobody@acme.test",
		Password:  "s3cretpass",
		Subdomain: "acme",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, hasher.verified, 1)
	assert.NotEmpty(t, hasher.verified[0])

	_, err = f.auth.Login(context.Background(), LoginRequest{
		Email:     "ada@acme.test",
		Password:  "wrong-password",
		Subdomain: "acme",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Len(t, hasher.verified, 2)
}

type brokenHasher struct{ PasswordHasher }

func (brokenHasher) Hash(string) (string, error) { return "", errors.New("entropy exhausted") }

func TestRegisterHidesInternalFailures(t *testing.T) {
	f := newFixture(t)
	f.tenants.hasher = brokenHasher{}

	_, err := f.tenants.Register(context.Background(), RegisterTenantRequest{
		OrganizationName: "Acme",
		Subdomain:        "acme",
		AdminName:        "Admin",
		AdminEmail:       "ada@acme.test",
		AdminPassword:    "s3cretpass",
	})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, "Failed to register tenant", appErr.Message)
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestMeAndListUsersNeedTenantContext(t *testing.T) {
	f := newFixture(t)
	acme := f.register(t, "acme", "ada@acme.test")
	f.register(t, "globex", "hank@globex.test")

	_, err := f.auth.Me(context.Background(), acme.AdminUserID)
	assert.ErrorIs(t, err, tenant.ErrMissingTenantContext)

	err = tenant.Run(context.Background(), acme.TenantID, func(ctx context.Context) error {
		profile, err := f.auth.Me(ctx, acme.AdminUserID)
		require.NoError(t, err)
		assert.Equal(t, "acme", profile.Tenant.Subdomain)

		page, err := f.auth.ListUsers(ctx, 0, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Users, 1)
		assert.Equal(t, "ada@acme.test", page.Users[0].Email)
		return nil
	})
	require.NoError(t, err)
}
