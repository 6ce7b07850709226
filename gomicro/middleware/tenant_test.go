package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "service-filter-secret-0123456789abcdef"

type probe struct {
	slots    []*tenant.Slot
	observed []uint
	bound    []bool
}

func newTestServer(t *testing.T, now func() time.Time) (*echo.Echo, *jwtutil.JWTUtil, *probe, *prometheus.Registry) {
	t.Helper()

	var opts []jwtutil.Option
	if now != nil {
		opts = append(opts, jwtutil.WithClock(now))
	}
	j, err := jwtutil.NewJWTUtil(config.JWTConfig{Secret: testSecret, TTL: time.Hour, Issuer: "fleetmanager"}, opts...)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	p := &probe{}

	e := echo.New()
	e.Use(echomiddleware.Recover())
	e.Use(TenantFilter(TenantFilterConfig{
		JWT:           j,
		ExcludedPaths: config.DefaultExcludedPaths,
		Security:      metrics.NewSecurityMetrics("test", reg),
	}))

	record := func(c echo.Context) {
		ctx := c.Request().Context()
		p.slots = append(p.slots, tenant.SlotFrom(ctx))
		id, ok := tenant.Get(ctx)
		p.observed = append(p.observed, id)
		p.bound = append(p.bound, ok)
	}
	e.GET("/api/vehicles", func(c echo.Context) error {
		record(c)
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/fail", func(c echo.Context) error {
		record(c)
		return errors.New("business failure")
	})
	e.GET("/api/panic", func(c echo.Context) error {
		record(c)
		panic("handler exploded")
	})
	e.POST("/api/auth/login", func(c echo.Context) error {
		record(c)
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/api/me", func(c echo.Context) error {
		uid, _ := UserID(c)
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"user": uid, "role": Role(c), "tenant": claims.TenantID.Uint()})
	})

	return e, j, p, reg
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTenantBoundDuringRequestAndClearedAfter(t *testing.T) {
	e, j, p, _ := newTestServer(t, nil)
	token, err := j.Issue(1, 100, "ADMIN", time.Minute)
	require.NoError(t, err)

	for _, path := range []string{"/api/vehicles", "/api/fail", "/api/panic"} {
		rec := do(e, http.MethodGet, path, "Bearer "+token)
		if path == "/api/vehicles" {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		}
	}

	require.Len(t, p.observed, 3)
	for i := range p.observed {
		assert.True(t, p.bound[i])
		assert.Equal(t, uint(100), p.observed[i])

		_, still := p.slots[i].Get()
		assert.False(t, still, "slot leaked after request %d", i)
	}
}

func TestMissingAuthorizationIsRejected(t *testing.T) {
	e, _, p, reg := newTestServer(t, nil)

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   ", "Bearer a b"} {
		rec := do(e, http.MethodGet, "/api/vehicles", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Contains(t, rec.Body.String(), "Missing or invalid Authorization header")
	}
	assert.Empty(t, p.observed)

	n, err := testutil.GatherAndCount(reg, "auth_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExcludedPathsPassThrough(t *testing.T) {
	e, _, p, _ := newTestServer(t, nil)

	rec := do(e, http.MethodPost, "/api/auth/login", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, p.bound, 1)
	assert.False(t, p.bound[0])
}

func TestExpiredTokenIsRejected(t *testing.T) {
	now := time.Now()
	clock := now
	e, j, p, _ := newTestServer(t, func() time.Time { return clock })

	token, err := j.Issue(1, 100, "ADMIN", time.Minute)
	require.NoError(t, err)

	clock = now.Add(time.Hour)
	rec := do(e, http.MethodGet, "/api/vehicles", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired token")
	assert.Empty(t, p.observed)
}

func TestTokenWithoutTenantIsRejected(t *testing.T) {
	e, j, p, _ := newTestServer(t, nil)

	token, err := j.Issue(1, 0, "ADMIN", time.Minute)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/api/vehicles", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing tenant_id")
	assert.Empty(t, p.observed)

	token, err = j.Issue(0, 100, "ADMIN", time.Minute)
	require.NoError(t, err)
	rec = do(e, http.MethodGet, "/api/vehicles", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenSignedWithAnotherSecretIsRejected(t *testing.T) {
	e, _, p, _ := newTestServer(t, nil)

	other, err := jwtutil.NewJWTUtil(config.JWTConfig{Secret: "a-completely-different-secret-value-42", TTL: time.Hour, Issuer: "fleetmanager"})
	require.NoError(t, err)
	token, err := other.Issue(1, 100, "ADMIN", time.Minute)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/api/vehicles", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, p.observed)
}

func TestForwardedHeadersAreNotTrusted(t *testing.T) {
	e, j, p, _ := newTestServer(t, nil)
	token, err := j.Issue(1, 100, "VIEWER", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/vehicles", nil)
	req.Header.Set(echo.HeaderAuthorization, "bearer "+token)
	req.Header.Set(HeaderTenantID, "200")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, p.observed, 1)
	assert.Equal(t, uint(100), p.observed[0])
}

func TestClaimsPublishedOnContext(t *testing.T) {
	e, j, _, _ := newTestServer(t, nil)
	token, err := j.Issue(7, 100, "MANAGER", time.Minute)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/api/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":7,"role":"MANAGER","tenant":100}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set(ContextKeyRole, c.QueryParam("role"))
				return next(c)
			}
		},
		RequireRole("ADMIN", "MANAGER"),
	)

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodGet, "/?role=ADMIN", "").Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodGet, "/?role=manager", "").Code)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/", "").Code)

	rec := do(e, http.MethodGet, "/?role=DRIVER", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Forbidden"`)
	assert.Contains(t, rec.Body.String(), `"message":"insufficient role"`)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	for _, bad := range []string{"", "Bearer", "Bearer ", "Token abc", "Bearerabc"} {
		_, ok := BearerToken(bad)
		assert.False(t, ok, bad)
	}
}
