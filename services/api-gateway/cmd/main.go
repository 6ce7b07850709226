package main

import (
	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/fleetmanager/backend/gomicro/health"
	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/metrics"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/server"
	"github.com/fleetmanager/backend/services/api-gateway/internal/filter"
	"github.com/fleetmanager/backend/services/api-gateway/internal/proxy"
	"github.com/fleetmanager/backend/services/api-gateway/internal/ratelimit"
	gwprom "github.com/fleetmanager/backend/services/api-gateway/prometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const serviceName = "api-gateway"

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
	log.Info("Starting api-gateway",
		append(cfg.LogConfig(), zap.String("routes", cfg.Gateway.Routes))...)

	jwt, err := jwtutil.NewJWTUtil(cfg.JWT)
	if err != nil {
		log.Fatal("Failed to initialize JWT utility", zap.Error(err))
	}

	routes, err := proxy.ParseRoutes(cfg.Gateway.Routes)
	if err != nil {
		log.Fatal("Invalid GATEWAY_ROUTES", zap.Error(err))
	}

	// Initialize Prometheus metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	security := metrics.NewSecurityMetrics(serviceName, reg)
	gwMetrics := gwprom.InitMetrics(cfg.Metrics.Prefix, reg)

	checks := proxy.HealthChecks(routes, proxy.NewHealthClient())

	var store echomiddleware.RateLimiterStore
	if cfg.Redis.Addr != "" {
		client := ratelimit.NewRedisClient(cfg.Redis, log)
		defer client.Close()
		redisStore := ratelimit.NewRedisStore(client, cfg.Gateway, log)
		checks["redis"] = redisStore.Ping
		store = redisStore
		log.Info("Rate limiting with redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = ratelimit.NewMemoryStore(cfg.Gateway)
		log.Info("Rate limiting in memory")
	}

	e := server.New(serviceName, reg)
	e.Pre(
		middleware.RequestIDMiddleware(),
		filter.Edge(filter.Config{
			JWT:           jwt,
			ExcludedPaths: cfg.Tenant.ExcludedWith("/metrics"),
			Security:      security,
		}),
	)
	e.Use(ratelimit.Middleware(store, gwMetrics))
	e.Use(proxy.Middleware(routes, gwMetrics))

	e.GET("/actuator/health", health.Handler(serviceName, checks))
	e.Any("/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})

	if err := server.Run(e, cfg.Server.Port, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}
