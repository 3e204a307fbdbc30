// Package mesh implements the Mesh Coordinator control plane: service
// discovery (ServiceRegistry), health-aware load balancing (LoadBalancer)
// with circuit breaking, health trend aggregation (HealthMonitor), and the
// coordinator that composes them.
package mesh

import (
	"time"

	"github.com/google/uuid"
)

// SecurityLevel orders discovery's minimum-security-level filter.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityBasic
	SecurityStandard
	SecurityHigh
	SecurityMaximum
)

// HealthCheckConfig is the optional health-check configuration a service
// registers with.
type HealthCheckConfig struct {
	Endpoint string
	Interval time.Duration
	Timeout  time.Duration
}

// ServiceRegistration is the caller-supplied description of a service
// instance.
type ServiceRegistration struct {
	ServiceId       uuid.UUID
	Name            string
	Version         string
	NodeId          uuid.UUID
	Capabilities    []string // serialization formats and topology patterns
	Endpoints       []string
	Tags            []string
	HealthCheck     *HealthCheckConfig
	SecurityLevel   SecurityLevel
	ExpectedLatencyMs      float64
	ExpectedThroughputMbps float64
	HighPerformance bool

	RegisteredAt   time.Time
	LastHeartbeat  time.Time
	TTL            time.Duration
}

// IsLive reports whether now-LastHeartbeat <= TTL.
func (s *ServiceRegistration) IsLive(now time.Time) bool {
	return now.Sub(s.LastHeartbeat) <= s.TTL
}

// HealthStatus is the coarse health classification used by the load
// balancer's filtering rule.
type HealthStatus int

const (
	HealthHealthy HealthStatus = iota
	HealthWarning
	HealthUnhealthy
)

// CircuitState is the CircuitBreaker state machine's current state.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// LoadBalancedService is a ServiceRegistration plus rolling metrics.
type LoadBalancedService struct {
	Registration      ServiceRegistration
	Health            HealthStatus
	Circuit           CircuitState
	CurrentConnections int
	AvgResponseTimeMs float64
	ErrorRate         float64 // 0..1
	Weight            float64
}

// DiscoveryQuery is the conjunction of filters Registry.Discover applies.
type DiscoveryQuery struct {
	NamePattern            string
	RequiredCapabilities   []string
	Tags                   []string
	MinSecurityLevel       SecurityLevel
	MaxLatencyMs           float64
	MinThroughputMbps      float64
	RequireHighPerformance bool
}

// DiscoveryResult carries the matching set plus query-time statistics.
type DiscoveryResult struct {
	Services    []ServiceRegistration
	QueryTimeUs float64
}

// LoadBalanceAlgorithm names the algorithms Balancer.Select can use.
type LoadBalanceAlgorithm int

const (
	AlgoRoundRobin LoadBalanceAlgorithm = iota
	AlgoLeastConnections
	AlgoWeightedRoundRobin
	AlgoPerformanceBased
	AlgoRandom
	AlgoConsistentHash
)

var algorithmNames = map[string]LoadBalanceAlgorithm{
	"round_robin":         AlgoRoundRobin,
	"least_connections":   AlgoLeastConnections,
	"weighted_round_robin": AlgoWeightedRoundRobin,
	"performance_based":   AlgoPerformanceBased,
	"random":              AlgoRandom,
	"consistent_hash":     AlgoConsistentHash,
}

// ParseAlgorithm maps a configuration string to a LoadBalanceAlgorithm,
// defaulting to AlgoRoundRobin for an unrecognized value.
func ParseAlgorithm(s string) LoadBalanceAlgorithm {
	if a, ok := algorithmNames[s]; ok {
		return a
	}
	return AlgoRoundRobin
}

// LoadBalanceResult is select()'s return value.
type LoadBalanceResult struct {
	Service         ServiceRegistration
	Reason          string
	SelectionTimeUs float64
	Alternatives    []ServiceRegistration
}
