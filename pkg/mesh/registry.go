package mesh

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/internal/telemetry"
	"github.com/commyio/commy/pkg/errs"
	"github.com/commyio/commy/pkg/metrics"
)

// Registry is the service registry: a main map keyed by ServiceId plus
// name and tag secondary indices, maintained transactionally with the
// main map.
type Registry struct {
	mu sync.RWMutex

	services map[uuid.UUID]*ServiceRegistration
	byName   map[string]map[uuid.UUID]struct{}
	byTag    map[string]map[uuid.UUID]struct{}

	reaperInterval time.Duration
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	avgQueryTimeUs float64 // exponential moving average
	metrics        *metrics.MeshMetrics
}

// NewRegistry creates an empty registry with the default 30s reaper tick.
func NewRegistry() *Registry {
	return &Registry{
		services:       make(map[uuid.UUID]*ServiceRegistration),
		byName:         make(map[string]map[uuid.UUID]struct{}),
		byTag:          make(map[string]map[uuid.UUID]struct{}),
		reaperInterval: 30 * time.Second,
		metrics:        metrics.NewMeshMetrics(),
	}
}

// Start launches the background reaper tick.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.reapLoop(ctx)
}

// Stop cancels the reaper loop and waits for it to exit.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Register adds reg to the main map and its secondary indices
// transactionally.
func (r *Registry) Register(reg ServiceRegistration) error {
	if reg.ServiceId == uuid.Nil {
		reg.ServiceId = uuid.New()
	}
	reg.RegisteredAt = time.Now()
	reg.LastHeartbeat = reg.RegisteredAt

	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[reg.ServiceId] = &reg

	if r.byName[reg.Name] == nil {
		r.byName[reg.Name] = make(map[uuid.UUID]struct{})
	}
	r.byName[reg.Name][reg.ServiceId] = struct{}{}

	for _, tag := range reg.Tags {
		if r.byTag[tag] == nil {
			r.byTag[tag] = make(map[uuid.UUID]struct{})
		}
		r.byTag[tag][reg.ServiceId] = struct{}{}
	}

	if r.metrics != nil {
		r.metrics.ServicesRegistered.Set(float64(len(r.services)))
	}

	return nil
}

// Heartbeat refreshes last_heartbeat for id. Logs a warning if the gap
// since the previous heartbeat exceeded ttl/2.
func (r *Registry) Heartbeat(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return errs.New(errs.KindInvalidOperation, "registry.heartbeat", "unknown service")
	}

	gap := time.Since(svc.LastHeartbeat)
	svc.LastHeartbeat = time.Now()

	if svc.TTL > 0 && gap > svc.TTL/2 {
		logger.Warn("heartbeat gap exceeded ttl/2", logger.ServiceID(id.String()))
	}

	return nil
}

// Unregister removes id from the main map and all secondary indices.
func (r *Registry) Unregister(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return errs.New(errs.KindInvalidOperation, "registry.unregister", "unknown service")
	}

	delete(r.services, id)
	delete(r.byName[svc.Name], id)
	for _, tag := range svc.Tags {
		delete(r.byTag[tag], id)
	}
	return nil
}

// Discover applies q's filters as a conjunction and returns the matching
// set plus the updated exponential-moving-average query time.
func (r *Registry) Discover(ctx context.Context, q DiscoveryQuery) DiscoveryResult {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanDiscover)
	defer span.End()

	start := time.Now()
	now := start

	r.mu.RLock()
	var matches []ServiceRegistration
	for _, svc := range r.services {
		if !svc.IsLive(now) {
			continue
		}
		if q.NamePattern != "" && !strings.Contains(svc.Name, q.NamePattern) {
			continue
		}
		if !hasAll(svc.Capabilities, q.RequiredCapabilities) {
			continue
		}
		if !hasAll(svc.Tags, q.Tags) {
			continue
		}
		if svc.SecurityLevel < q.MinSecurityLevel {
			continue
		}
		if q.MaxLatencyMs > 0 && svc.ExpectedLatencyMs > q.MaxLatencyMs {
			continue
		}
		if q.MinThroughputMbps > 0 && svc.ExpectedThroughputMbps < q.MinThroughputMbps {
			continue
		}
		if q.RequireHighPerformance && !svc.HighPerformance {
			continue
		}
		matches = append(matches, *svc)
	}
	r.mu.RUnlock()

	elapsed := float64(time.Since(start).Microseconds())

	r.mu.Lock()
	const alpha = 0.2
	if r.avgQueryTimeUs == 0 {
		r.avgQueryTimeUs = elapsed
	} else {
		r.avgQueryTimeUs = alpha*elapsed + (1-alpha)*r.avgQueryTimeUs
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.DiscoveryDuration.Observe(elapsed)
	}

	return DiscoveryResult{Services: matches, QueryTimeUs: elapsed}
}

func hasAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// AvgQueryTimeUs returns the registry's exponential-moving-average query
// time.
func (r *Registry) AvgQueryTimeUs() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.avgQueryTimeUs
}

func (r *Registry) reapLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapStale()
		}
	}
}

func (r *Registry) reapStale() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, svc := range r.services {
		if svc.IsLive(now) {
			continue
		}
		delete(r.services, id)
		delete(r.byName[svc.Name], id)
		for _, tag := range svc.Tags {
			delete(r.byTag[tag], id)
		}
	}
}

// Get returns a copy of the registration for id, if present; liveness is
// not checked.
func (r *Registry) Get(id uuid.UUID) (ServiceRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	if !ok {
		return ServiceRegistration{}, false
	}
	return *svc, true
}
