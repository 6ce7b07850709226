package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection layers.
const (
	LayerGateway = "gateway"
	LayerService = "service"
)

// SecurityMetrics counts authentication rejections and tenant isolation events.
// All methods are safe on a nil receiver.
type SecurityMetrics struct {
	authRejections       *prometheus.CounterVec
	tenantViolations     *prometheus.CounterVec
	missingTenantContext *prometheus.CounterVec
}

// NewSecurityMetrics registers the security collectors for a service.
func NewSecurityMetrics(serviceName string, reg prometheus.Registerer) *SecurityMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &SecurityMetrics{
		authRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_rejections_total",
				Help:        "Requests rejected by a token filter, by layer and reason",
				ConstLabels: labels,
			},
			[]string{"layer", "reason"},
		),
		tenantViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "tenant_security_violations_total",
				Help:        "Blocked attempts to bind a record to a tenant other than the current one",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
		missingTenantContext: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "tenant_context_missing_total",
				Help:        "Operations that required a tenant but ran without one",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
	}
}

// AuthRejected counts a rejected request.
func (m *SecurityMetrics) AuthRejected(layer, reason string) {
	if m == nil {
		return
	}
	m.authRejections.WithLabelValues(layer, reason).Inc()
}

// TenantViolation counts a blocked cross-tenant override.
func (m *SecurityMetrics) TenantViolation(operation string) {
	if m == nil {
		return
	}
	m.tenantViolations.WithLabelValues(operation).Inc()
}

// MissingTenantContext counts an operation that found no tenant bound.
func (m *SecurityMetrics) MissingTenantContext(operation string) {
	if m == nil {
		return
	}
	m.missingTenantContext.WithLabelValues(operation).Inc()
}
