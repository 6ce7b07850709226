// Package filter authenticates requests at the edge before they are proxied.
package filter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Client-facing rejection reasons. The precise verification failure is only
// logged and counted.
const (
	ReasonMissingHeader = "Missing or invalid Authorization header"
	ReasonInvalidToken  = "Invalid or expired token"
	ReasonMissingClaims = "Token missing required claims"
)

// ContextKeyTenantID holds the verified tenant id for later gateway middleware.
const ContextKeyTenantID = "tenant_id"

var trustedHeaders = []string{
	middleware.HeaderUserID,
	middleware.HeaderTenantID,
	middleware.HeaderUserRole,
}

// Config configures the edge filter.
type Config struct {
	JWT           *jwtutil.JWTUtil
	ExcludedPaths []string
	Security      *metrics.SecurityMetrics
}

// Edge verifies the bearer token of every non-excluded request and forwards
// the verified identity as trusted headers. Identity headers sent by the
// client are always dropped. It is meant for e.Pre.
func Edge(cfg Config) echo.MiddlewareFunc {
	excluded := middleware.NewPathMatcher(cfg.ExcludedPaths)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, h := range trustedHeaders {
				req.Header.Del(h)
			}

			if excluded.Match(req.URL.Path) {
				return next(c)
			}

			start := time.Now()
			log := logger.FromEcho(c)
			reject := func(reason, message string) error {
				cfg.Security.AuthRejected(metrics.LayerGateway, reason)
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error":   "Unauthorized",
					"message": message,
				})
			}

			token, ok := middleware.BearerToken(req.Header.Get(echo.HeaderAuthorization))
			if !ok {
				log.Warn("Rejected request without bearer token",
					zap.String("method", req.Method),
					zap.String("path", req.URL.Path))
				return reject("missing_header", ReasonMissingHeader)
			}

			claims, err := cfg.JWT.Verify(token)
			if err != nil {
				log.Warn("Rejected request with invalid token",
					zap.String("path", req.URL.Path),
					zap.String("reason", jwtutil.Reason(err)),
					zap.Error(err))
				return reject(jwtutil.Reason(err), ReasonInvalidToken)
			}
			if err := claims.RequireIdentity(); err != nil {
				log.Warn("Rejected token without identity claims",
					zap.String("path", req.URL.Path),
					zap.Error(err))
				return reject("missing_claim", ReasonMissingClaims)
			}

			userID, tenantID := claims.UserID.Uint(), claims.TenantID.Uint()
			req.Header.Set(middleware.HeaderUserID, strconv.FormatUint(uint64(userID), 10))
			req.Header.Set(middleware.HeaderTenantID, strconv.FormatUint(uint64(tenantID), 10))
			if claims.Role != "" {
				req.Header.Set(middleware.HeaderUserRole, claims.Role)
			}
			c.Set(ContextKeyTenantID, tenantID)

			log = logger.With(c, zap.Uint("tenant_id", tenantID), zap.Uint("user_id", userID))
			log.Debug("Request authenticated",
				zap.String("path", req.URL.Path),
				zap.Duration("duration", time.Since(start)))

			return next(c)
		}
	}
}

// TenantID returns the tenant verified by Edge.
func TenantID(c echo.Context) (uint, bool) {
	id, ok := c.Get(ContextKeyTenantID).(uint)
	return id, ok && id != 0
}
