// Package server builds the echo instance shared by every service and runs it
// until the process is asked to stop.
package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/validation"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// New returns an echo instance with CORS, request ids, request logging, HTTP
// metrics and recovery installed, and /metrics served from reg.
func New(serviceName string, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler
	e.Validator = validation.New()

	httpMetrics := metrics.NewHTTPMetrics(serviceName, reg)

	// Order matters: the request id must exist before the logger reads it,
	// the logger must run outside the metrics so it sees final statuses, and
	// Recover sits inside both so a panic is still logged and counted.
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())
	e.Use(echomiddleware.Recover())

	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))
	return e
}

// Run serves e on port until SIGINT or SIGTERM, then drains in-flight requests.
func Run(e *echo.Echo, port string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
