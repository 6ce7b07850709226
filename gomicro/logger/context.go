package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from the context
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
			return logger
		}
	}
	return GetLogger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromEcho retrieves the logger from the Echo context
func FromEcho(c echo.Context) *zap.Logger {
	if logger, ok := c.Get("logger").(*zap.Logger); ok {
		return logger
	}
	return FromContext(c.Request().Context())
}

// Attach makes logger the request logger, on the Echo context and on the
// request's context.Context.
func Attach(c echo.Context, logger *zap.Logger) {
	c.Set("logger", logger)
	c.SetRequest(c.Request().WithContext(WithContext(c.Request().Context(), logger)))
}

// With adds fields to the request logger and returns it.
func With(c echo.Context, fields ...zap.Field) *zap.Logger {
	logger := FromEcho(c).With(fields...)
	Attach(c, logger)
	return logger
}
