package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the auth-service domain collectors. A nil *Metrics records nothing.
type Metrics struct {
	loginCounter        *prometheus.CounterVec
	registrationCounter *prometheus.CounterVec
	authErrorCounter    *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
}

// InitMetrics registers the auth-service collectors under prefix
func InitMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Login counters
		loginCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_login_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),

		// Registration counters
		registrationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_tenant_registrations_total",
				Help: "Total number of tenant registrations by outcome",
			},
			[]string{"outcome"},
		),

		// Error counters
		authErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of authentication errors",
			},
			[]string{"type"}, // type can be "invalid_request", "invalid_credentials", "db_error" etc.
		),

		dbOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_db_operation_duration_seconds",
				Help:    "Duration of database operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordLogin counts a login attempt
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginCounter.WithLabelValues(outcome).Inc()
}

// RecordRegistration counts a tenant registration attempt
func (m *Metrics) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrationCounter.WithLabelValues(outcome).Inc()
}

// RecordAuthError counts an authentication error by type
func (m *Metrics) RecordAuthError(errorType string) {
	if m == nil {
		return
	}
	m.authErrorCounter.WithLabelValues(errorType).Inc()
}

// TrackDBOperation returns a function that records the duration of a database operation
func (m *Metrics) TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		if m == nil {
			return
		}
		m.dbOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
