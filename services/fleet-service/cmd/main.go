package main

import (
	"context"
	"time"

	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/database"
	"github.com/fleetmanager/backend/gomicro/health"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/server"
	"github.com/fleetmanager/backend/gomicro/tenantdb"
	"github.com/fleetmanager/backend/services/fleet-service/internal/handler"
	"github.com/fleetmanager/backend/services/fleet-service/internal/repository"
	"github.com/fleetmanager/backend/services/fleet-service/internal/service"
	fleetprom "github.com/fleetmanager/backend/services/fleet-service/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	serviceName          = "fleet-service"
	countRefreshInterval = 30 * time.Second
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()
	log.Info("Starting fleet service...", cfg.LogConfig()...)

	jwt, err := jwtutil.NewJWTUtil(cfg.JWT)
	if err != nil {
		log.Fatal("Failed to initialize JWT utility", zap.Error(err))
	}

	// Initialize Prometheus metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	security := metrics.NewSecurityMetrics(serviceName, reg)
	fleetMetrics := fleetprom.InitMetrics(cfg.Metrics.Prefix, reg)

	// Initialize database and run migrations
	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed",
		zap.String("db_host", cfg.DB.Host), zap.String("db_name", cfg.DB.DBName))

	vehicles := service.NewVehicleService(repository.NewVehicleRepository(db, tenantdb.WithSecurityMetrics(security)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fleetMetrics.RefreshVehicleCounts(ctx, countRefreshInterval, log, vehicles.CountByTenant)

	e := server.New(serviceName, reg)
	e.Use(middleware.TenantFilter(middleware.TenantFilterConfig{
		JWT:           jwt,
		ExcludedPaths: cfg.Tenant.ExcludedWith("/metrics"),
		Security:      security,
	}))

	e.GET("/actuator/health", health.Handler(serviceName, map[string]health.Check{
		"db": health.DBCheck(db),
	}))
	handler.NewVehicleHandler(vehicles, fleetMetrics).Register(e.Group("/api/vehicles"))

	if err := server.Run(e, cfg.Server.Port, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}
