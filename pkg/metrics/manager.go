package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ManagerMetrics instruments the Shared-File Manager.
type ManagerMetrics struct {
	FilesActive     prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ConnectionsTotal prometheus.Counter
	ExpirationsTotal *prometheus.CounterVec
}

// NewManagerMetrics returns nil when metrics are disabled, matching the
// opt-out convention the rest of this package follows.
func NewManagerMetrics() *ManagerMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &ManagerMetrics{
		FilesActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "commy_manager_files_active",
			Help: "Number of shared files currently tracked by the manager.",
		}),
		RequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commy_manager_requests_total",
			Help: "Total request_file calls by outcome.",
		}, []string{"outcome"}),
		RequestDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "commy_manager_request_duration_seconds",
			Help:    "request_file latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ConnectionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "commy_manager_connections_total",
			Help: "Total successful connect operations.",
		}),
		ExpirationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "commy_manager_expirations_total",
			Help: "Total file removals by reason.",
		}, []string{"reason"}),
	}
}
