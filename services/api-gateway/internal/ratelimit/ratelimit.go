// Package ratelimit throttles gateway traffic per tenant.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/services/api-gateway/internal/filter"
	gwprom "github.com/fleetmanager/backend/services/api-gateway/prometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewMemoryStore returns a token bucket store local to this gateway instance.
func NewMemoryStore(cfg config.GatewayConfig) echomiddleware.RateLimiterStore {
	return echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimitRPS),
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: 3 * time.Minute,
	})
}

// Identifier keys a request by its verified tenant, or by client ip for
// requests the edge filter let through unauthenticated.
func Identifier(c echo.Context) (string, error) {
	if id, ok := filter.TenantID(c); ok {
		return "tenant:" + strconv.FormatUint(uint64(id), 10), nil
	}
	return "ip:" + c.RealIP(), nil
}

// Middleware rejects requests over the limit of store with 429.
func Middleware(store echomiddleware.RateLimiterStore, metrics *gwprom.Metrics) echo.MiddlewareFunc {
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/actuator/health" || p == "/metrics"
		},
		Store:               store,
		IdentifierExtractor: Identifier,
		ErrorHandler: func(c echo.Context, err error) error {
			logger.FromEcho(c).Error("Rate limit identifier unavailable", zap.Error(err))
			return c.JSON(http.StatusForbidden, echo.Map{
				"error":   "Forbidden",
				"message": "unable to identify client",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			keyType, _, _ := strings.Cut(identifier, ":")
			metrics.RecordRateLimited(keyType)
			logger.FromEcho(c).Warn("Rate limit exceeded", zap.String("key", identifier))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded",
			})
		},
	})
}
