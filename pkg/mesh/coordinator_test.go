package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterServiceThenRouteRequestSelectsIt(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	ctx := context.Background()

	id, err := c.RegisterService(ctx, ServiceRegistration{Name: "payments", TTL: time.Minute})
	require.NoError(t, err)

	result, err := c.RouteRequest(ctx, DiscoveryQuery{NamePattern: "payments"}, "")
	require.NoError(t, err)
	assert.Equal(t, id, result.Service.ServiceId)
}

func TestRegisterServiceRejectsMissingName(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	_, err := c.RegisterService(context.Background(), ServiceRegistration{TTL: time.Minute})
	require.Error(t, err)
}

func TestRouteRequestErrorsWhenNoMatch(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	_, err := c.RouteRequest(context.Background(), DiscoveryQuery{NamePattern: "nope"}, "")
	require.Error(t, err)
}

func TestRouteRequestIncrementsCounterEvenOnMiss(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	ctx := context.Background()

	_, _ = c.RouteRequest(ctx, DiscoveryQuery{NamePattern: "nope"}, "")
	_, _ = c.RegisterService(ctx, ServiceRegistration{Name: "payments", TTL: time.Minute})
	_, _ = c.RouteRequest(ctx, DiscoveryQuery{NamePattern: "payments"}, "")

	assert.EqualValues(t, 2, c.RouteRequestCount())
}

func TestDeployServiceJoinsNodeAndRegisters(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	nodeID := uuid.New()

	id, err := c.DeployService(context.Background(), DeploymentSpec{
		NodeId:      nodeID,
		NodeAddress: "10.0.0.1:9000",
		Service:     ServiceRegistration{Name: "svc", TTL: time.Minute},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	node, ok := c.Nodes.Get(nodeID)
	require.True(t, ok)
	assert.Equal(t, NodeStatusActive, node.Status)
	assert.Equal(t, []uuid.UUID{id}, node.ServiceIds)
}

func TestDeployServiceSelectsLeastLoadedEligibleNode(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())

	roomy, busy := uuid.New(), uuid.New()
	c.Nodes.Join(roomy, "10.0.0.1:9000", ResourceRequirement{CPUCores: 4, MemoryBytes: 8 << 30}, map[string]string{"zone": "us-east"})
	c.Nodes.Join(busy, "10.0.0.2:9000", ResourceRequirement{CPUCores: 4, MemoryBytes: 8 << 30}, map[string]string{"zone": "us-east"})
	c.Nodes.AttachService(busy, uuid.New())
	c.Nodes.AttachService(busy, uuid.New())

	id, err := c.DeployService(context.Background(), DeploymentSpec{
		Service:     ServiceRegistration{Name: "svc", TTL: time.Minute},
		Resources:   ResourceRequirement{CPUCores: 1},
		Constraints: []PlacementConstraint{{Key: "zone", Value: "us-east"}},
	})
	require.NoError(t, err)

	node, ok := c.Nodes.Get(roomy)
	require.True(t, ok)
	assert.Contains(t, node.ServiceIds, id)
}

func TestDeployServiceErrorsWhenNoNodeMeetsRequirements(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	c.Nodes.Join(uuid.New(), "10.0.0.1:9000", ResourceRequirement{CPUCores: 1}, nil)

	_, err := c.DeployService(context.Background(), DeploymentSpec{
		Service:   ServiceRegistration{Name: "svc", TTL: time.Minute},
		Resources: ResourceRequirement{CPUCores: 8},
	})
	require.Error(t, err)
}

func TestDeregisterServiceRemovesFromBothIndices(t *testing.T) {
	c := NewMeshCoordinator(DefaultCoordinatorConfig())
	id, err := c.RegisterService(context.Background(), ServiceRegistration{Name: "tmp", TTL: time.Minute})
	require.NoError(t, err)

	require.NoError(t, c.DeregisterService(id))

	_, ok := c.Registry.Get(id)
	assert.False(t, ok)
}
