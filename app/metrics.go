package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	CheckoutTotal   *prometheus.CounterVec
	GatewayDuration prometheus.Histogram
	UsageDecisions  *prometheus.CounterVec
	UsageRecorded   *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CheckoutTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_checkout_requests_total",
				Help: "Checkout preference requests by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		GatewayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crm_gateway_request_duration_seconds",
				Help:    "Payment gateway preference call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		UsageDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_usage_decisions_total",
				Help: "Usage evaluator decisions by limit kind and result",
			},
			[]string{"kind", "result"},
		),
		UsageRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_usage_recorded_total",
				Help: "Recorded usage events by limit kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(m.CheckoutTotal, m.GatewayDuration, m.UsageDecisions, m.UsageRecorded)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

func decisionLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "blocked"
}
