package mesh

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commyio/commy/pkg/errs"
	"github.com/commyio/commy/pkg/metrics"
)

// BalancerConfig holds per-algorithm thresholds and the circuit breaker's
// error-rate transition thresholds.
type BalancerConfig struct {
	Algorithm             LoadBalanceAlgorithm
	OpenThreshold         float64 // error_rate above which Closed -> Open
	CircuitBreakerTimeout time.Duration
	CloseThreshold        float64 // error_rate below which HalfOpen -> Closed
	ReopenThreshold       float64 // error_rate above which HalfOpen -> Open
}

func DefaultBalancerConfig() BalancerConfig {
	return BalancerConfig{
		Algorithm:             AlgoRoundRobin,
		OpenThreshold:         0.5,
		CircuitBreakerTimeout: 30 * time.Second,
		CloseThreshold:        0.1,
		ReopenThreshold:       0.3,
	}
}

type circuitEntry struct {
	state     CircuitState
	openSince time.Time
}

// Balancer selects a service instance using the configured load-balancing
// algorithm and tracks a per-instance circuit breaker.
type Balancer struct {
	cfg BalancerConfig

	mu       sync.Mutex
	services map[uuid.UUID]*LoadBalancedService
	circuits map[uuid.UUID]*circuitEntry
	rrCounter uint64
	metrics  *metrics.MeshMetrics
}

// NewBalancer creates a balancer with the given configuration.
func NewBalancer(cfg BalancerConfig) *Balancer {
	return &Balancer{
		cfg:      cfg,
		services: make(map[uuid.UUID]*LoadBalancedService),
		circuits: make(map[uuid.UUID]*circuitEntry),
		metrics:  metrics.NewMeshMetrics(),
	}
}

// Track registers reg for load-balancing consideration, initializing its
// circuit breaker to Closed.
func (b *Balancer) Track(reg ServiceRegistration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services[reg.ServiceId] = &LoadBalancedService{Registration: reg, Health: HealthHealthy, Circuit: CircuitClosed, Weight: 1.0}
	b.circuits[reg.ServiceId] = &circuitEntry{state: CircuitClosed}
}

// Untrack removes id from consideration.
func (b *Balancer) Untrack(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, id)
	delete(b.circuits, id)
}

// UpdateHealth applies a health update (response time, error rate) to id's
// LoadBalancedService and drives its circuit breaker through the
// Closed/Open/HalfOpen transition thresholds in BalancerConfig.
func (b *Balancer) UpdateHealth(id uuid.UUID, avgResponseTimeMs, errorRate float64, connections int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	svc, ok := b.services[id]
	if !ok {
		return
	}
	svc.AvgResponseTimeMs = avgResponseTimeMs
	svc.ErrorRate = errorRate
	svc.CurrentConnections = connections

	circuit := b.circuits[id]
	now := time.Now()

	if circuit.state == CircuitOpen && now.Sub(circuit.openSince) >= b.cfg.CircuitBreakerTimeout {
		circuit.state = CircuitHalfOpen
	}

	switch circuit.state {
	case CircuitClosed:
		if errorRate > b.cfg.OpenThreshold {
			circuit.state = CircuitOpen
			circuit.openSince = now
		}
	case CircuitHalfOpen:
		if errorRate < b.cfg.CloseThreshold {
			circuit.state = CircuitClosed
		} else if errorRate > b.cfg.ReopenThreshold {
			circuit.state = CircuitOpen
			circuit.openSince = now
		}
	}
	svc.Circuit = circuit.state
	if b.metrics != nil {
		b.metrics.CircuitState.WithLabelValues(id.String()).Set(float64(circuit.state))
	}

	switch {
	case errorRate > b.cfg.OpenThreshold:
		svc.Health = HealthUnhealthy
	case errorRate > b.cfg.CloseThreshold:
		svc.Health = HealthWarning
	default:
		svc.Health = HealthHealthy
	}
}

// Select filters out instances with an open circuit, then picks among
// the survivors using the configured algorithm.
func (b *Balancer) Select(hashContext string) (LoadBalanceResult, error) {
	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	candidates := b.candidatesLocked()
	if len(candidates) == 0 {
		return LoadBalanceResult{}, errs.New(errs.KindResourceExhausted, "balancer.select", "no healthy services available")
	}

	chosen, reason := b.pick(candidates)
	if b.metrics != nil {
		b.metrics.SelectionsTotal.WithLabelValues(reason).Inc()
	}

	alternatives := make([]ServiceRegistration, 0, len(candidates)-1)
	for _, c := range candidates {
		if c.Registration.ServiceId != chosen.Registration.ServiceId {
			alternatives = append(alternatives, c.Registration)
		}
	}

	return LoadBalanceResult{
		Service:         chosen.Registration,
		Reason:          reason,
		SelectionTimeUs: float64(time.Since(start).Microseconds()),
		Alternatives:    alternatives,
	}, nil
}

func (b *Balancer) candidatesLocked() []*LoadBalancedService {
	var healthy, warning []*LoadBalancedService
	for _, svc := range b.services {
		switch {
		case svc.Health == HealthHealthy && svc.Circuit == CircuitClosed:
			healthy = append(healthy, svc)
		case svc.Health == HealthWarning && svc.Circuit != CircuitOpen:
			warning = append(warning, svc)
		}
	}
	out := warning
	if len(healthy) > 0 {
		out = healthy
	}
	// Map iteration order is random; sort by ServiceId so round-robin and
	// consistent hashing index into a stable ordering.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Registration.ServiceId.String() < out[j].Registration.ServiceId.String()
	})
	return out
}

func (b *Balancer) pick(candidates []*LoadBalancedService) (*LoadBalancedService, string) {
	switch b.cfg.Algorithm {
	case AlgoLeastConnections:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.CurrentConnections < best.CurrentConnections {
				best = c
			}
		}
		return best, "least_connections"

	case AlgoWeightedRoundRobin:
		var total float64
		for _, c := range candidates {
			total += c.Weight
		}
		if total == 0 {
			return b.roundRobin(candidates)
		}
		b.rrCounter++
		target := float64(b.rrCounter%uint64(total*1000)) / 1000.0
		var cumulative float64
		for _, c := range candidates {
			cumulative += c.Weight
			if target < cumulative {
				return c, "weighted_round_robin"
			}
		}
		return candidates[len(candidates)-1], "weighted_round_robin"

	case AlgoPerformanceBased:
		best := candidates[0]
		bestScore := best.AvgResponseTimeMs + 1000*best.ErrorRate
		for _, c := range candidates[1:] {
			score := c.AvgResponseTimeMs + 1000*c.ErrorRate
			if score < bestScore {
				best, bestScore = c, score
			}
		}
		return best, "performance_based"

	case AlgoRandom:
		idx := int(uint64(time.Now().UnixNano()) % uint64(len(candidates)))
		return candidates[idx], "random"

	case AlgoConsistentHash:
		key := hashContext
		if key == "" {
			key = "default"
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(key))
		idx := int(h.Sum64() % uint64(len(candidates)))
		return candidates[idx], "consistent_hash"

	default: // AlgoRoundRobin
		return b.roundRobin(candidates)
	}
}

func (b *Balancer) roundRobin(candidates []*LoadBalancedService) (*LoadBalancedService, string) {
	b.rrCounter++
	idx := int(b.rrCounter % uint64(len(candidates)))
	return candidates[idx], "round_robin"
}

// CircuitStateOf returns the current circuit state for id, mostly for
// metrics/tests.
func (b *Balancer) CircuitStateOf(id uuid.UUID) (CircuitState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[id]
	if !ok {
		return CircuitClosed, false
	}
	return c.state, true
}
