package middleware

import (
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestIDMiddleware adds a unique request ID to each request.
// It runs once per request even when installed both in Pre and Use.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Response().Header().Get(echo.HeaderXRequestID) != "" {
				return next(c)
			}

			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
				c.Request().Header.Set(echo.HeaderXRequestID, requestID)
			}

			// Add request ID to response header
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			// Request logger for the rest of the chain
			logger.Attach(c, logger.GetLogger().With(zap.String("request_id", requestID)))

			return next(c)
		}
	}
}
