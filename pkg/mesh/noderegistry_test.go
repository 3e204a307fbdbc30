package mesh

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPublishesActiveTransition(t *testing.T) {
	n := NewNodeRegistry()
	ch := n.Subscribe()

	id := uuid.New()
	n.Join(id, "10.0.0.1:9000", ResourceRequirement{}, nil)

	select {
	case ev := <-ch:
		assert.Equal(t, id, ev.NodeId)
		assert.Equal(t, NodeStatusActive, ev.Current)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for join event")
	}
}

func TestSweepMarksFailedAfterTimeout(t *testing.T) {
	n := NewNodeRegistry()
	n.nodeTimeout = time.Millisecond

	id := uuid.New()
	n.Join(id, "addr", ResourceRequirement{}, nil)

	time.Sleep(3 * time.Millisecond)
	n.sweep()
	node, ok := n.Get(id)
	require.True(t, ok)
	assert.Equal(t, NodeStatusFailed, node.Status)
}

func TestHeartbeatRestoresActiveFromFailed(t *testing.T) {
	n := NewNodeRegistry()
	n.nodeTimeout = time.Millisecond

	id := uuid.New()
	n.Join(id, "addr", ResourceRequirement{}, nil)
	time.Sleep(3 * time.Millisecond)
	n.sweep()

	node, _ := n.Get(id)
	require.Equal(t, NodeStatusFailed, node.Status)

	n.Heartbeat(id)
	node, _ = n.Get(id)
	assert.Equal(t, NodeStatusActive, node.Status)
}

func TestLeaveMarksNodeFailed(t *testing.T) {
	n := NewNodeRegistry()
	id := uuid.New()
	n.Join(id, "addr", ResourceRequirement{}, nil)
	n.Leave(id)

	node, ok := n.Get(id)
	require.True(t, ok)
	assert.Equal(t, NodeStatusFailed, node.Status)
}

func TestAttachServiceAddsToNodeServiceList(t *testing.T) {
	n := NewNodeRegistry()
	id := uuid.New()
	n.Join(id, "addr", ResourceRequirement{}, nil)

	svc := uuid.New()
	n.AttachService(id, svc)
	n.AttachService(id, svc) // idempotent

	node, _ := n.Get(id)
	assert.Equal(t, []uuid.UUID{svc}, node.ServiceIds)
}

func TestNodeInfoMatchesResourceAndPlacement(t *testing.T) {
	info := NodeInfo{
		Capacity: ResourceRequirement{CPUCores: 4, MemoryBytes: 8 << 30},
		Labels:   map[string]string{"zone": "us-east"},
	}

	assert.True(t, info.matches(ResourceRequirement{CPUCores: 2}, []PlacementConstraint{{Key: "zone", Value: "us-east"}}))
	assert.False(t, info.matches(ResourceRequirement{CPUCores: 8}, nil))
	assert.False(t, info.matches(ResourceRequirement{}, []PlacementConstraint{{Key: "zone", Value: "eu-west"}}))
}
