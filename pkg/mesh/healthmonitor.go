package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/pkg/metrics"
)

// HealthSample is a single health-check observation appended to a
// service's rolling history.
type HealthSample struct {
	Timestamp time.Time
	Healthy   bool
	LatencyMs float64
}

// HealthTrends summarizes a service's rolling history over two windows.
type HealthTrends struct {
	SuccessRate1h  float64
	SuccessRate24h float64
	SampleCount    int
}

// AlertComparator names the comparison an AlertCondition applies.
type AlertComparator int

const (
	ComparatorGreaterThan AlertComparator = iota
	ComparatorLessThan
	ComparatorEqualTo
	ComparatorNotEqualTo
	ComparatorPercentageChange
)

// AlertSeverity orders alert conditions from informational to
// emergency.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
	SeverityEmergency
)

// AlertCondition is a single threshold rule evaluated against a
// service's current success rate.
type AlertCondition struct {
	Name       string
	Comparator AlertComparator
	Threshold  float64
	Severity   AlertSeverity
	Cooldown   time.Duration
}

// Alert is an AlertCondition firing for a specific service.
type Alert struct {
	ServiceId uuid.UUID
	Condition string
	Severity  AlertSeverity
	Value     float64
	FiredAt   time.Time
}

const historyCapacity = 100

type serviceHistory struct {
	samples []HealthSample // ring buffer, oldest overwritten
	next    int
	count   int
}

func (h *serviceHistory) push(s HealthSample) {
	if h.samples == nil {
		h.samples = make([]HealthSample, historyCapacity)
	}
	h.samples[h.next] = s
	h.next = (h.next + 1) % historyCapacity
	if h.count < historyCapacity {
		h.count++
	}
}

func (h *serviceHistory) window(since time.Time) (successes, total int) {
	for i := 0; i < h.count; i++ {
		s := h.samples[i]
		if s.Timestamp.Before(since) {
			continue
		}
		total++
		if s.Healthy {
			successes++
		}
	}
	return
}

// HealthMonitor aggregates rolling per-service health history, exposes
// trend queries, and evaluates configured alert conditions on a
// background tick.
type HealthMonitor struct {
	mu         sync.Mutex
	histories  map[uuid.UUID]*serviceHistory
	conditions []AlertCondition
	lastFired  map[string]time.Time // condition name + service id -> last fire time
	alerts     []Alert

	checkInterval   time.Duration
	metricsInterval time.Duration
	alertInterval   time.Duration
	cleanupInterval time.Duration

	balancer *Balancer
	registry *Registry
	metrics  *metrics.MeshMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor builds a monitor that drives balancer's circuit
// breakers from registry's live services.
func NewHealthMonitor(registry *Registry, balancer *Balancer, conditions []AlertCondition) *HealthMonitor {
	return &HealthMonitor{
		histories:       make(map[uuid.UUID]*serviceHistory),
		conditions:      conditions,
		lastFired:       make(map[string]time.Time),
		checkInterval:   10 * time.Second,
		metricsInterval: 30 * time.Second,
		alertInterval:   30 * time.Second,
		cleanupInterval: 5 * time.Minute,
		balancer:        balancer,
		registry:        registry,
		metrics:         metrics.NewMeshMetrics(),
	}
}

// Start launches the four background ticks: check, metrics, alert,
// cleanup.
func (m *HealthMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(4)
	go m.tick(ctx, m.checkInterval, m.runCheck)
	go m.tick(ctx, m.metricsInterval, m.runMetrics)
	go m.tick(ctx, m.alertInterval, m.runAlerts)
	go m.tick(ctx, m.cleanupInterval, m.runCleanup)
}

// Stop cancels all background ticks and waits for them to exit.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *HealthMonitor) tick(ctx context.Context, interval time.Duration, fn func()) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// RecordSample appends a health observation for id and forwards the
// resulting rolling error rate to the balancer's circuit breaker.
func (m *HealthMonitor) RecordSample(id uuid.UUID, s HealthSample) {
	m.mu.Lock()
	h, ok := m.histories[id]
	if !ok {
		h = &serviceHistory{}
		m.histories[id] = h
	}
	h.push(s)
	successes, total := h.window(time.Time{})
	m.mu.Unlock()

	if total == 0 {
		return
	}
	errorRate := 1.0 - float64(successes)/float64(total)
	if m.balancer != nil {
		m.balancer.UpdateHealth(id, s.LatencyMs, errorRate, 0)
	}
}

// Trends computes HealthTrends over the 1h/24h windows for id.
func (m *HealthMonitor) Trends(id uuid.UUID, now time.Time) HealthTrends {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.histories[id]
	if !ok {
		return HealthTrends{}
	}

	s1, t1 := h.window(now.Add(-time.Hour))
	s24, t24 := h.window(now.Add(-24 * time.Hour))

	var rate1, rate24 float64
	if t1 > 0 {
		rate1 = float64(s1) / float64(t1)
	}
	if t24 > 0 {
		rate24 = float64(s24) / float64(t24)
	}

	return HealthTrends{SuccessRate1h: rate1, SuccessRate24h: rate24, SampleCount: h.count}
}

func (m *HealthMonitor) runCheck() {
	if m.registry == nil {
		return
	}
	now := time.Now()
	m.registry.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.registry.services))
	for id := range m.registry.services {
		ids = append(ids, id)
	}
	m.registry.mu.RUnlock()

	for _, id := range ids {
		reg, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		m.RecordSample(id, HealthSample{Timestamp: now, Healthy: reg.IsLive(now), LatencyMs: reg.ExpectedLatencyMs})
	}
}

func (m *HealthMonitor) runMetrics() {
	// This tick exports nothing; the rolling windows are computed on
	// demand by Trends.
}

func (m *HealthMonitor) runAlerts() {
	now := time.Now()

	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.histories))
	for id := range m.histories {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		trends := m.Trends(id, now)
		for _, cond := range m.conditions {
			if !evaluateCondition(cond, trends.SuccessRate1h) {
				continue
			}

			key := cond.Name + ":" + id.String()
			m.mu.Lock()
			last, fired := m.lastFired[key]
			if fired && now.Sub(last) < cond.Cooldown {
				m.mu.Unlock()
				continue
			}
			m.lastFired[key] = now
			alert := Alert{ServiceId: id, Condition: cond.Name, Severity: cond.Severity, Value: trends.SuccessRate1h, FiredAt: now}
			m.alerts = append(m.alerts, alert)
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.AlertsFiredTotal.WithLabelValues(cond.Name).Inc()
			}
			logger.Warn("health alert fired", logger.ServiceID(id.String()))
		}
	}
}

func evaluateCondition(cond AlertCondition, value float64) bool {
	switch cond.Comparator {
	case ComparatorGreaterThan:
		return value > cond.Threshold
	case ComparatorLessThan:
		return value < cond.Threshold
	case ComparatorEqualTo:
		return value == cond.Threshold
	case ComparatorNotEqualTo:
		return value != cond.Threshold
	case ComparatorPercentageChange:
		return value >= cond.Threshold || value <= -cond.Threshold
	default:
		return false
	}
}

func (m *HealthMonitor) runCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.alerts) > 1000 {
		m.alerts = m.alerts[len(m.alerts)-1000:]
	}
}

// Alerts returns a copy of the alerts fired so far.
func (m *HealthMonitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
