package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MeshMetrics instruments the Mesh Coordinator.
type MeshMetrics struct {
	ServicesRegistered prometheus.Gauge
	DiscoveryDuration  prometheus.Histogram
	CircuitState       *prometheus.GaugeVec
	SelectionsTotal    *prometheus.CounterVec
	NodesActive        prometheus.Gauge
	AlertsFiredTotal   *prometheus.CounterVec
}

// NewMeshMetrics returns nil when metrics are disabled.
func NewMeshMetrics() *MeshMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &MeshMetrics{
		ServicesRegistered: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "commy_mesh_services_registered",
			Help: "Number of services currently registered.",
		}),
		DiscoveryDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "commy_mesh_discovery_duration_microseconds",
			Help:    "discover() query latency.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 20),
		}),
		CircuitState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "commy_mesh_circuit_state",
			Help: "Circuit breaker state per service (0=closed,1=open,2=half_open).",
		}, []string{"service_id"}),
		SelectionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commy_mesh_selections_total",
			Help: "Load balancer selections by algorithm.",
		}, []string{"algorithm"}),
		NodesActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "commy_mesh_nodes_active",
			Help: "Number of mesh nodes currently classified Active.",
		}),
		AlertsFiredTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commy_mesh_alerts_fired_total",
			Help: "Health alerts fired by condition name.",
		}, []string{"condition"}),
	}
}
