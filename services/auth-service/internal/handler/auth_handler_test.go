package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/database/databasetest"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/validation"
	"github.com/fleetmanager/backend/services/auth-service/internal/repository"
	"github.com/fleetmanager/backend/services/auth-service/internal/service"
	authprom "github.com/fleetmanager/backend/services/auth-service/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	e   *echo.Echo
	jwt *jwtutil.JWTUtil
	reg *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := databasetest.NewDB(t)
	require.NoError(t, repository.Migrate(db))

	jwt, err := jwtutil.NewJWTUtil(config.JWTConfig{Secret: testSecret, TTL: time.Hour, Issuer: "test"})
	require.NoError(t, err)

	tenants := repository.NewTenantRepository(db)
	users := repository.NewUserRepository(db)
	hasher := &service.BcryptHasher{Cost: bcrypt.MinCost}

	reg := prometheus.NewRegistry()
	h := NewAuthHandler(
		service.NewTenantService(db, tenants, users, hasher, jwt),
		service.NewAuthService(tenants, users, hasher, jwt),
		authprom.InitMetrics("auth", reg),
	)

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler
	e.Validator = validation.New()
	e.Use(middleware.TenantFilter(middleware.TenantFilterConfig{
		JWT:           jwt,
		ExcludedPaths: config.DefaultExcludedPaths,
	}))
	h.Register(e.Group("/api/auth"))

	return &testServer{e: e, jwt: jwt, reg: reg}
}

func (s *testServer) do(method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const acmeRegistration = `{"organization_name":"Acme Logistics","subdomain":"acme","admin_name":"Ada","admin_email":"ada@acme.test","admin_password":"s3cretpass"}`

func TestRegisterTenantLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/auth/register-tenant", acmeRegistration, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode(t, rec)
	assert.NotEmpty(t, reg["token"])
	tenantID := reg["tenant_id"].(float64)

	claims, err := s.jwt.Verify(reg["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, uint(tenantID), claims.TenantID.Uint())
	assert.Equal(t, "ADMIN", claims.Role)

	rec = s.do(http.MethodPost, "/api/auth/login", `{"email":"ada@acme.test","password":"s3cretpass","subdomain":"acme"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode(t, rec)
	assert.Equal(t, "ADMIN", login["role"])
	assert.Equal(t, tenantID, login["tenant_id"])

	rec = s.do(http.MethodGet, "/api/auth/me", "", login["token"].(string))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode(t, rec)
	assert.Equal(t, "acme", me["tenant"].(map[string]interface{})["subdomain"])
	user := me["user"].(map[string]interface{})
	assert.Equal(t, "ada@acme.test", user["email"])
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, user, "PasswordHash")

	expected := `
# HELP auth_login_total Total number of login attempts by outcome
# TYPE auth_login_total counter
auth_login_total{outcome="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(s.reg, strings.NewReader(expected), "auth_login_total"))
}

func TestRegisterTenantDuplicateSubdomain(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/auth/register-tenant", acmeRegistration, "").Code)
	rec := s.do(http.MethodPost, "/api/auth/register-tenant", acmeRegistration, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Conflict", decode(t, rec)["error"])
}

func TestRegisterTenantValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/auth/register-tenant",
		`{"organization_name":"Acme","subdomain":"Not_Valid","admin_name":"Ada","admin_email":"nope","admin_password":"short"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "subdomain")
	assert.Contains(t, fields, "admin_email")
	assert.Contains(t, fields, "admin_password")
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/auth/register-tenant", acmeRegistration, "").Code)

	for name, body := range map[string]string{
		"wrong password": `{"email":"ada@acme.test","password":"wrong-pass","subdomain":"acme"}`,
		"unknown user":   `{"email":"bob@acme.test","password":"s3cretpass","subdomain":"acme"}`,
		"unknown tenant": `{"email":"ada@acme.test","password":"s3cretpass","subdomain":"globex"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/auth/login", body, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid credentials", decode(t, rec)["message"])
		})
	}
}

func TestUsersAreScopedToTheCallerTenant(t *testing.T) {
	s := newTestServer(t)

	acme := decode(t, s.do(http.MethodPost, "/api/auth/register-tenant", acmeRegistration, ""))
	globex := decode(t, s.do(http.MethodPost, "/api/auth/register-tenant",
		`{"organization_name":"Globex","subdomain":"globex","admin_name":"Hank","admin_email":"hank@globex.test","admin_password":"s3cretpass"}`, ""))

	rec := s.do(http.MethodGet, "/api/auth/users", "", globex["token"].(string))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode(t, rec)
	assert.Equal(t, 1.0, page["total"])
	users := page["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "hank@globex.test", users[0].(map[string]interface{})["email"])

	// A valid acme token never sees globex users, even with a forged header.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/users", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+acme["token"].(string))
	req.Header.Set(middleware.HeaderTenantID, "2")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	users = decode(t, rec)["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "ada@acme.test", users[0].(map[string]interface{})["email"])
}

func TestListUsersRequiresAdminOrManager(t *testing.T) {
	s := newTestServer(t)
	token, err := s.jwt.Issue(1, 1, "DRIVER", time.Minute)
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/api/auth/users", "", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMeRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing or invalid Authorization header", decode(t, rec)["error"])
}
