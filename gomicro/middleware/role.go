package middleware

import (
	"strings"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequireRole allows the request only when the verified role is one of roles.
// It must run after TenantFilter.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToUpper(r)] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := strings.ToUpper(Role(c))
			if _, ok := allowed[role]; !ok {
				logger.FromEcho(c).Warn("Role not allowed",
					zap.String("role", role),
					zap.Strings("allowed", roles))
				return apperror.Respond(c, apperror.Forbidden("insufficient role"))
			}
			return next(c)
		}
	}
}
