package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransportMetrics instruments the Transport Router.
type TransportMetrics struct {
	RoutingDecisions *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	FallbacksTotal   prometheus.Counter
	SuccessRate      *prometheus.GaugeVec
}

// NewTransportMetrics returns nil when metrics are disabled.
func NewTransportMetrics() *TransportMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &TransportMetrics{
		RoutingDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commy_transport_routing_decisions_total",
			Help: "Routing decisions by chosen transport and reason.",
		}, []string{"transport", "reason"}),
		OperationLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commy_transport_operation_latency_microseconds",
			Help:    "Per-transport operation latency.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 16),
		}, []string{"transport"}),
		FallbacksTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "commy_transport_fallbacks_total",
			Help: "Total operations that fell back to the alternate transport.",
		}),
		SuccessRate: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "commy_transport_success_rate",
			Help: "Rolling observed success rate per transport.",
		}, []string{"transport"}),
	}
}
