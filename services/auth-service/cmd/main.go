package main

import (
	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/database"
	"github.com/fleetmanager/backend/gomicro/health"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/server"
	"github.com/fleetmanager/backend/gomicro/tenantdb"
	"github.com/fleetmanager/backend/services/auth-service/internal/handler"
	"github.com/fleetmanager/backend/services/auth-service/internal/repository"
	"github.com/fleetmanager/backend/services/auth-service/internal/service"
	authprom "github.com/fleetmanager/backend/services/auth-service/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const serviceName = "auth-service"

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
	log.Info("Starting authentication service...", cfg.LogConfig()...)

	// Initialize database and run migrations
	db, err := database.InitDB(&cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	jwt, err := jwtutil.NewJWTUtil(cfg.JWT)
	if err != nil {
		log.Fatal("Failed to initialize JWT utility", zap.Error(err))
	}

	// Initialize Prometheus metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	security := metrics.NewSecurityMetrics(serviceName, reg)
	authMetrics := authprom.InitMetrics(cfg.Metrics.Prefix, reg)

	tenants := repository.NewTenantRepository(db)
	users := repository.NewUserRepository(db, tenantdb.WithSecurityMetrics(security))
	hasher := service.NewBcryptHasher()

	authHandler := handler.NewAuthHandler(
		service.NewTenantService(db, tenants, users, hasher, jwt),
		service.NewAuthService(tenants, users, hasher, jwt),
		authMetrics,
	)

	e := server.New(serviceName, reg)
	e.Use(middleware.TenantFilter(middleware.TenantFilterConfig{
		JWT:           jwt,
		ExcludedPaths: cfg.Tenant.ExcludedWith("/metrics"),
		Security:      security,
	}))

	e.GET("/actuator/health", health.Handler(serviceName, map[string]health.Check{
		"db": health.DBCheck(db),
	}))
	authHandler.Register(e.Group("/api/auth"))

	if err := server.Run(e, cfg.Server.Port, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}
