package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway collectors. A nil *Metrics records nothing.
type Metrics struct {
	proxiedRequests *prometheus.CounterVec
	upstreamErrors  *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

// InitMetrics registers the gateway collectors under prefix
func InitMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Proxy metrics
		proxiedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_proxied_requests_total",
				Help: "Total number of requests answered by an upstream service",
			},
			[]string{"route", "status"},
		),

		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_upstream_errors_total",
				Help: "Total number of requests that could not reach an upstream service",
			},
			[]string{"route"},
		),

		// Rate limit metrics
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"key_type"}, // "tenant" or "ip"
		),
	}
}

// RecordProxied counts an upstream response
func (m *Metrics) RecordProxied(route string, status int) {
	if m == nil {
		return
	}
	m.proxiedRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordUpstreamError counts a failed upstream call
func (m *Metrics) RecordUpstreamError(route string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(route).Inc()
}

// RecordRateLimited counts a rejected request
func (m *Metrics) RecordRateLimited(keyType string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(keyType).Inc()
}
