package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenDiscoverFindsService(t *testing.T) {
	r := NewRegistry()
	reg := ServiceRegistration{
		Name:         "billing",
		Capabilities: []string{"json"},
		Tags:         []string{"prod"},
		TTL:          time.Minute,
	}
	require.NoError(t, r.Register(reg))

	result := r.Discover(context.Background(), DiscoveryQuery{NamePattern: "billing"})
	require.Len(t, result.Services, 1)
	assert.Equal(t, "billing", result.Services[0].Name)
}

func TestDiscoverFiltersOnCapabilitiesAndTags(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ServiceRegistration{Name: "a", Capabilities: []string{"json"}, TTL: time.Minute}))
	require.NoError(t, r.Register(ServiceRegistration{Name: "b", Capabilities: []string{"protobuf"}, TTL: time.Minute}))

	result := r.Discover(context.Background(), DiscoveryQuery{RequiredCapabilities: []string{"protobuf"}})
	require.Len(t, result.Services, 1)
	assert.Equal(t, "b", result.Services[0].Name)
}

func TestDiscoverExcludesStaleService(t *testing.T) {
	r := NewRegistry()
	reg := ServiceRegistration{Name: "stale", TTL: time.Millisecond}
	require.NoError(t, r.Register(reg))

	time.Sleep(5 * time.Millisecond)

	result := r.Discover(context.Background(), DiscoveryQuery{})
	assert.Empty(t, result.Services)
}

func TestHeartbeatKeepsServiceLive(t *testing.T) {
	r := NewRegistry()
	reg := ServiceRegistration{Name: "svc", TTL: 20 * time.Millisecond}
	require.NoError(t, r.Register(reg))

	id := findID(t, r, "svc")

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Heartbeat(id))
	time.Sleep(12 * time.Millisecond)

	result := r.Discover(context.Background(), DiscoveryQuery{NamePattern: "svc"})
	require.Len(t, result.Services, 1)
}

func TestUnregisterRemovesFromAllIndices(t *testing.T) {
	r := NewRegistry()
	reg := ServiceRegistration{Name: "gone", Tags: []string{"x"}, TTL: time.Minute}
	require.NoError(t, r.Register(reg))
	id := findID(t, r, "gone")

	require.NoError(t, r.Unregister(id))

	_, ok := r.Get(id)
	assert.False(t, ok)
	assert.Empty(t, r.byName["gone"])
	assert.Empty(t, r.byTag["x"])
}

func TestReapStaleRemovesExpiredServices(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ServiceRegistration{Name: "expiring", TTL: time.Millisecond}))
	time.Sleep(5 * time.Millisecond)

	r.reapStale()

	result := r.Discover(context.Background(), DiscoveryQuery{})
	assert.Empty(t, result.Services)
}

func findID(t *testing.T, r *Registry, name string) uuid.UUID {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.byName[name] {
		return id
	}
	t.Fatalf("no service named %s", name)
	return uuid.Nil
}
