package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/paging"
	"github.com/fleetmanager/backend/services/auth-service/internal/service"
	"github.com/fleetmanager/backend/services/auth-service/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandler serves the /api/auth routes.
type AuthHandler struct {
	tenants *service.TenantService
	auth    *service.AuthService
	metrics *prometheus.Metrics
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(tenants *service.TenantService, auth *service.AuthService, metrics *prometheus.Metrics) *AuthHandler {
	return &AuthHandler{tenants: tenants, auth: auth, metrics: metrics}
}

// Register mounts the routes on g.
func (h *AuthHandler) Register(g *echo.Group) {
	g.POST("/register-tenant", h.RegisterTenant)
	g.POST("/login", h.Login)
	g.GET("/me", h.Me)
	g.GET("/users", h.ListUsers, middleware.RequireRole("ADMIN", "MANAGER"))
}

// RegisterTenant creates a tenant and its first administrator.
func (h *AuthHandler) RegisterTenant(c echo.Context) error {
	log := logger.FromEcho(c)

	var req service.RegisterTenantRequest
	if err := c.Bind(&req); err != nil {
		h.metrics.RecordAuthError("invalid_request")
		return apperror.BadRequest("Invalid request data")
	}
	if err := c.Validate(&req); err != nil {
		h.metrics.RecordRegistration("invalid")
		return err
	}

	defer h.metrics.TrackDBOperation("register_tenant")(time.Now())
	resp, err := h.tenants.Register(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrSubdomainTaken) {
			h.metrics.RecordRegistration("conflict")
		} else {
			h.metrics.RecordRegistration("error")
		}
		return err
	}

	h.metrics.RecordRegistration("success")
	log.Info("Tenant registration completed", zap.Uint("tenant_id", resp.TenantID))
	return c.JSON(http.StatusCreated, resp)
}

// Login issues a token for valid credentials.
func (h *AuthHandler) Login(c echo.Context) error {
	var req service.LoginRequest
	if err := c.Bind(&req); err != nil {
		h.metrics.RecordAuthError("invalid_request")
		return apperror.BadRequest("Invalid request data")
	}
	if err := c.Validate(&req); err != nil {
		h.metrics.RecordLogin("invalid")
		return err
	}

	defer h.metrics.TrackDBOperation("login")(time.Now())
	resp, err := h.auth.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.metrics.RecordLogin("invalid_credentials")
			h.metrics.RecordAuthError("invalid_credentials")
		} else {
			h.metrics.RecordLogin("error")
			h.metrics.RecordAuthError("db_error")
		}
		return err
	}

	h.metrics.RecordLogin("success")
	return c.JSON(http.StatusOK, resp)
}

// Me returns the caller's user and tenant.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperror.Unauthorized("authentication required")
	}

	profile, err := h.auth.Me(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// ListUsers returns one page of the caller's tenant users.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	p := paging.Parse(c, "id")

	defer h.metrics.TrackDBOperation("list_users")(time.Now())
	page, err := h.auth.ListUsers(c.Request().Context(), p.Page, p.Size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}
