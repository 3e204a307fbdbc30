// Package metrics exposes Commy's Prometheus metrics registry. Components
// obtain their metric vectors through GetRegistry once InitRegistry has
// run; IsEnabled lets a component skip instrumentation entirely when
// metrics are disabled, matching the zero-overhead opt-out behavior the
// ambient metrics stack follows elsewhere in this repository.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the process-wide Prometheus registry. Subsequent
// calls replace the previous registry, which is only useful in tests.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// Disable tears down the registry, so GetRegistry-backed metrics
// constructors return nil and skip instrumentation.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled = false
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
