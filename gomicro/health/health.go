// Package health serves the /actuator/health endpoint of every service.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// DBCheck pings the database behind db.
func DBCheck(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("get database connection: %w", err)
		}
		return sqlDB.PingContext(ctx)
	}
}

// Handler reports UP when every check passes and DOWN with 503 otherwise.
func Handler(service string, checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.FromEcho(c).Error("Health check failed", zap.String("check", name), zap.Error(err))
				results[name] = "DOWN"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "UP"
		}

		overall := "UP"
		if status != http.StatusOK {
			overall = "DOWN"
		}
		return c.JSON(status, map[string]interface{}{
			"status":  overall,
			"service": service,
			"time":    time.Now().Format(time.RFC3339),
			"checks":  results,
		})
	}
}
