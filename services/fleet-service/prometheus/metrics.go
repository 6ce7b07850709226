package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics holds the fleet-service domain collectors. A nil *Metrics records nothing.
type Metrics struct {
	vehicleOperations   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
	vehiclesPerTenant   *prometheus.GaugeVec
	activeTenants       prometheus.Gauge
}

// InitMetrics registers the fleet-service collectors under prefix
func InitMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Vehicle metrics
		vehicleOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_vehicle_operations_total",
				Help: "Total number of vehicle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		// Database operation metrics
		dbOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_db_operation_duration_seconds",
				Help:    "Duration of database operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation_type"},
		),

		// Tenant specific metrics
		vehiclesPerTenant: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "_vehicles_per_tenant",
				Help: "Number of vehicles per tenant",
			},
			[]string{"tenant_id"},
		),

		// Active tenants using the fleet service
		activeTenants: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_active_tenants",
				Help: "Number of tenants with at least one vehicle",
			},
		),
	}
}

// RecordVehicleOperation counts a vehicle operation
func (m *Metrics) RecordVehicleOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.vehicleOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackDBOperation returns a function that records the duration of a database operation
func (m *Metrics) TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if m == nil {
			return
		}
		m.dbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// SetVehicleCounts replaces the per-tenant gauges with counts
func (m *Metrics) SetVehicleCounts(counts map[uint]int64) {
	if m == nil {
		return
	}
	m.vehiclesPerTenant.Reset()
	for tenantID, n := range counts {
		m.vehiclesPerTenant.WithLabelValues(strconv.FormatUint(uint64(tenantID), 10)).Set(float64(n))
	}
	m.activeTenants.Set(float64(len(counts)))
}

// RefreshVehicleCounts polls count every interval until ctx is done.
func (m *Metrics) RefreshVehicleCounts(ctx context.Context, interval time.Duration, log *zap.Logger, count func(context.Context) (map[uint]int64, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		counts, err := count(ctx)
		if err != nil {
			log.Warn("Failed to refresh vehicle counts", zap.Error(err))
		} else {
			m.SetVehicleCounts(counts)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
