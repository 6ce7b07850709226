package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Trusted identity headers set by the gateway. Services log them but never
// rely on them.
const (
	HeaderUserID   = "X-User-Id"
	HeaderTenantID = "X-Tenant-Id"
	HeaderUserRole = "X-User-Role"
)

// Echo context keys published by TenantFilter.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyTenantID = "tenant_id"
	ContextKeyRole     = "role"
	ContextKeyClaims   = "claims"
)

// TenantFilterConfig configures TenantFilter.
type TenantFilterConfig struct {
	JWT           *jwtutil.JWTUtil
	ExcludedPaths []string
	Security      *metrics.SecurityMetrics
}

// TenantFilter re-verifies the bearer token inside a service and binds the
// token's tenant to the request for the rest of the chain. The binding is
// cleared when the chain returns, on every path.
func TenantFilter(cfg TenantFilterConfig) echo.MiddlewareFunc {
	excluded := NewPathMatcher(cfg.ExcludedPaths)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if excluded.Match(req.URL.Path) {
				return next(c)
			}

			log := logger.FromEcho(c)
			reject := func(reason, message string) error {
				cfg.Security.AuthRejected(metrics.LayerService, reason)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": message})
			}

			token, ok := BearerToken(req.Header.Get(echo.HeaderAuthorization))
			if !ok {
				log.Warn("Missing or invalid Authorization header", zap.String("path", req.URL.Path))
				return reject("missing_header", "Missing or invalid Authorization header")
			}

			claims, err := cfg.JWT.Verify(token)
			if err != nil {
				log.Warn("Token verification failed",
					zap.String("reason", jwtutil.Reason(err)),
					zap.Error(err))
				return reject(jwtutil.Reason(err), "Invalid or expired token")
			}
			if claims.TenantID == 0 {
				log.Warn("Token missing tenant_id", zap.Uint("user_id", claims.UserID.Uint()))
				return reject("missing_claim", "Token missing tenant_id")
			}
			if claims.UserID == 0 {
				log.Warn("Token missing user_id", zap.Uint("tenant_id", claims.TenantID.Uint()))
				return reject("missing_claim", "Token missing user_id")
			}

			tenantID := claims.TenantID.Uint()
			if forwarded := req.Header.Get(HeaderTenantID); forwarded != "" && forwarded != strconv.FormatUint(uint64(tenantID), 10) {
				log.Warn("Forwarded tenant header disagrees with token",
					zap.String("header_tenant_id", forwarded),
					zap.Uint("token_tenant_id", tenantID))
			}

			ctx, slot := tenant.NewScope(req.Context())
			slot.Set(tenantID)
			defer slot.Clear()

			c.SetRequest(req.WithContext(ctx))
			c.Set(ContextKeyUserID, claims.UserID.Uint())
			c.Set(ContextKeyTenantID, tenantID)
			c.Set(ContextKeyRole, claims.Role)
			c.Set(ContextKeyClaims, claims)
			logger.With(c,
				zap.Uint("tenant_id", tenantID),
				zap.Uint("user_id", claims.UserID.Uint()))

			return next(c)
		}
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// UserID returns the verified user id of the request.
func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get(ContextKeyUserID).(uint)
	return id, ok && id != 0
}

// Role returns the verified role of the request, or "".
func Role(c echo.Context) string {
	role, _ := c.Get(ContextKeyRole).(string)
	return role
}

// ClaimsFrom returns the verified claims of the request.
func ClaimsFrom(c echo.Context) (*jwtutil.Claims, bool) {
	claims, ok := c.Get(ContextKeyClaims).(*jwtutil.Claims)
	return claims, ok
}
