package mesh

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackedService(b *Balancer, name string) uuid.UUID {
	reg := ServiceRegistration{ServiceId: uuid.New(), Name: name, TTL: time.Minute}
	b.Track(reg)
	return reg.ServiceId
}

func TestSelectRoundRobinCyclesCandidates(t *testing.T) {
	cfg := DefaultBalancerConfig()
	cfg.Algorithm = AlgoRoundRobin
	b := NewBalancer(cfg)

	trackedService(b, "a")
	trackedService(b, "b")

	first, err := b.Select("")
	require.NoError(t, err)
	second, err := b.Select("")
	require.NoError(t, err)

	assert.NotEqual(t, first.Service.ServiceId, second.Service.ServiceId)
}

func TestSelectLeastConnectionsPrefersIdlest(t *testing.T) {
	cfg := DefaultBalancerConfig()
	cfg.Algorithm = AlgoLeastConnections
	b := NewBalancer(cfg)

	busy := trackedService(b, "busy")
	idle := trackedService(b, "idle")
	b.UpdateHealth(busy, 10, 0, 50)
	b.UpdateHealth(idle, 10, 0, 0)

	result, err := b.Select("")
	require.NoError(t, err)
	assert.Equal(t, idle, result.Service.ServiceId)
}

func TestCircuitOpensOnHighErrorRateAndExcludesService(t *testing.T) {
	cfg := DefaultBalancerConfig()
	b := NewBalancer(cfg)

	id := trackedService(b, "flaky")
	b.UpdateHealth(id, 10, 0.9, 0)

	state, ok := b.CircuitStateOf(id)
	require.True(t, ok)
	assert.Equal(t, CircuitOpen, state)

	_, err := b.Select("")
	require.Error(t, err)
}

func TestCircuitHalfOpensAfterTimeoutThenCloses(t *testing.T) {
	cfg := DefaultBalancerConfig()
	cfg.CircuitBreakerTimeout = time.Millisecond
	b := NewBalancer(cfg)

	id := trackedService(b, "recovering")
	b.UpdateHealth(id, 10, 0.9, 0)
	state, _ := b.CircuitStateOf(id)
	require.Equal(t, CircuitOpen, state)

	time.Sleep(5 * time.Millisecond)
	b.UpdateHealth(id, 10, 0.01, 0)

	state, _ = b.CircuitStateOf(id)
	assert.Equal(t, CircuitClosed, state)
}

func TestSelectReturnsErrorWhenNoCandidates(t *testing.T) {
	b := NewBalancer(DefaultBalancerConfig())
	_, err := b.Select("")
	require.Error(t, err)
}

func TestConsistentHashStableForSameKey(t *testing.T) {
	cfg := DefaultBalancerConfig()
	cfg.Algorithm = AlgoConsistentHash
	b := NewBalancer(cfg)
	trackedService(b, "a")
	trackedService(b, "b")
	trackedService(b, "c")

	first, err := b.Select("tenant-42")
	require.NoError(t, err)
	second, err := b.Select("tenant-42")
	require.NoError(t, err)

	assert.Equal(t, first.Service.ServiceId, second.Service.ServiceId)
}
