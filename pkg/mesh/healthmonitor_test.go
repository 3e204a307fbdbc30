package mesh

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTrendsComputesSuccessRateOverWindow(t *testing.T) {
	m := NewHealthMonitor(nil, nil, nil)
	id := uuid.New()
	now := time.Now()

	m.RecordSample(id, HealthSample{Timestamp: now.Add(-30 * time.Minute), Healthy: true})
	m.RecordSample(id, HealthSample{Timestamp: now.Add(-20 * time.Minute), Healthy: false})
	m.RecordSample(id, HealthSample{Timestamp: now.Add(-2 * time.Hour), Healthy: true})

	trends := m.Trends(id, now)
	assert.Equal(t, 0.5, trends.SuccessRate1h)
	assert.InDelta(t, 2.0/3.0, trends.SuccessRate24h, 0.01)
}

func TestRecordSampleUpdatesBalancerCircuit(t *testing.T) {
	b := NewBalancer(DefaultBalancerConfig())
	id := uuid.New()
	b.Track(ServiceRegistration{ServiceId: id, Name: "svc", TTL: time.Minute})

	m := NewHealthMonitor(nil, b, nil)
	now := time.Now()
	for i := 0; i < 10; i++ {
		m.RecordSample(id, HealthSample{Timestamp: now, Healthy: false})
	}

	state, ok := b.CircuitStateOf(id)
	assert.True(t, ok)
	assert.Equal(t, CircuitOpen, state)
}

func TestAlertFiresOnceWithinCooldown(t *testing.T) {
	conditions := []AlertCondition{
		{Name: "low_success", Comparator: ComparatorLessThan, Threshold: 0.5, Severity: SeverityWarning, Cooldown: time.Hour},
	}
	m := NewHealthMonitor(nil, nil, conditions)
	id := uuid.New()
	now := time.Now()
	m.RecordSample(id, HealthSample{Timestamp: now, Healthy: false})

	m.runAlerts()
	m.runAlerts()

	assert.Len(t, m.Alerts(), 1)
}

func TestEvaluateConditionComparators(t *testing.T) {
	assert.True(t, evaluateCondition(AlertCondition{Comparator: ComparatorGreaterThan, Threshold: 0.5}, 0.6))
	assert.True(t, evaluateCondition(AlertCondition{Comparator: ComparatorLessThan, Threshold: 0.5}, 0.4))
	assert.True(t, evaluateCondition(AlertCondition{Comparator: ComparatorEqualTo, Threshold: 0.5}, 0.5))
	assert.True(t, evaluateCondition(AlertCondition{Comparator: ComparatorNotEqualTo, Threshold: 0.5}, 0.6))
}
