package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commyio/commy/pkg/metrics"
)

// NodeStatus is a mesh node's liveness classification: Active while
// heartbeats arrive within node_timeout, Failed once they stop.
type NodeStatus int

const (
	NodeStatusActive NodeStatus = iota
	NodeStatusFailed
)

// ResourceRequirement describes the compute capacity a node offers, or
// that a deployment demands. A node satisfies a requirement when its
// capacity is greater than or equal to the requirement on every field.
type ResourceRequirement struct {
	CPUCores    float64
	MemoryBytes int64
}

// satisfies reports whether capacity meets requirement req.
func (capacity ResourceRequirement) satisfies(req ResourceRequirement) bool {
	return capacity.CPUCores >= req.CPUCores && capacity.MemoryBytes >= req.MemoryBytes
}

// PlacementConstraint requires a node to carry a matching label.
type PlacementConstraint struct {
	Key   string
	Value string
}

// NodeInfo is a mesh node's registration record.
type NodeInfo struct {
	NodeId     uuid.UUID
	Address    string
	Status     NodeStatus
	JoinedAt   time.Time
	LastSeen   time.Time
	Capacity   ResourceRequirement
	Labels     map[string]string
	ServiceIds []uuid.UUID
}

// matches reports whether the node satisfies req and every constraint in
// constraints.
func (info NodeInfo) matches(req ResourceRequirement, constraints []PlacementConstraint) bool {
	if !info.Capacity.satisfies(req) {
		return false
	}
	for _, c := range constraints {
		if info.Labels[c.Key] != c.Value {
			return false
		}
	}
	return true
}

// NodeStatusChanged is broadcast whenever a tracked node's status
// transitions.
type NodeStatusChanged struct {
	NodeId    uuid.UUID
	Previous  NodeStatus
	Current   NodeStatus
	Timestamp time.Time
}

const nodeEventBufferCapacity = 1000

// nodeEventBus is the NodeRegistry's lossy broadcast of NodeStatusChanged,
// mirroring the Manager's EventBus: late subscribers miss history, and a
// full subscriber has its oldest pending event dropped rather than
// blocking the emitter.
type nodeEventBus struct {
	mu          sync.Mutex
	subscribers []chan NodeStatusChanged
}

func newNodeEventBus() *nodeEventBus {
	return &nodeEventBus{}
}

func (b *nodeEventBus) Subscribe() <-chan NodeStatusChanged {
	ch := make(chan NodeStatusChanged, nodeEventBufferCapacity)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

func (b *nodeEventBus) Publish(ev NodeStatusChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// NodeRegistry tracks mesh node liveness and fans out NodeStatusChanged
// on transition.
type NodeRegistry struct {
	mu    sync.RWMutex
	nodes map[uuid.UUID]*NodeInfo
	bus   *nodeEventBus

	nodeTimeout  time.Duration
	tickInterval time.Duration
	metrics      *metrics.MeshMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNodeRegistry creates an empty registry with the default liveness
// threshold: a node is marked Failed once 30s pass without a heartbeat.
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{
		nodes:        make(map[uuid.UUID]*NodeInfo),
		bus:          newNodeEventBus(),
		nodeTimeout:  30 * time.Second,
		tickInterval: 5 * time.Second,
		metrics:      metrics.NewMeshMetrics(),
	}
}

// Subscribe returns a channel receiving future NodeStatusChanged events.
func (n *NodeRegistry) Subscribe() <-chan NodeStatusChanged {
	return n.bus.Subscribe()
}

// Join registers a node as Active with the given capacity and labels,
// used for resource-requirement and placement-constraint matching during
// deployment selection.
func (n *NodeRegistry) Join(id uuid.UUID, address string, capacity ResourceRequirement, labels map[string]string) {
	now := time.Now()
	n.mu.Lock()
	n.nodes[id] = &NodeInfo{
		NodeId:   id,
		Address:  address,
		Status:   NodeStatusActive,
		JoinedAt: now,
		LastSeen: now,
		Capacity: capacity,
		Labels:   labels,
	}
	n.mu.Unlock()
	n.bus.Publish(NodeStatusChanged{NodeId: id, Previous: NodeStatusFailed, Current: NodeStatusActive, Timestamp: now})
	n.reportActiveGauge()
}

// Heartbeat refreshes last_seen for id and promotes it back to Active if
// it had been marked Failed.
func (n *NodeRegistry) Heartbeat(id uuid.UUID) {
	now := time.Now()
	n.mu.Lock()
	node, ok := n.nodes[id]
	if !ok {
		n.mu.Unlock()
		return
	}
	prev := node.Status
	node.LastSeen = now
	node.Status = NodeStatusActive
	n.mu.Unlock()

	if prev != NodeStatusActive {
		n.bus.Publish(NodeStatusChanged{NodeId: id, Previous: prev, Current: NodeStatusActive, Timestamp: now})
		n.reportActiveGauge()
	}
}

// Leave marks id Failed immediately, without waiting for the liveness
// timeout, for a node departing the mesh cleanly.
func (n *NodeRegistry) Leave(id uuid.UUID) {
	now := time.Now()
	n.mu.Lock()
	node, ok := n.nodes[id]
	if !ok {
		n.mu.Unlock()
		return
	}
	prev := node.Status
	node.Status = NodeStatusFailed
	n.mu.Unlock()

	n.bus.Publish(NodeStatusChanged{NodeId: id, Previous: prev, Current: NodeStatusFailed, Timestamp: now})
	n.reportActiveGauge()
}

// AttachService records serviceId against nodeId's service list, called
// when a service is registered or deployed onto that node.
func (n *NodeRegistry) AttachService(nodeId, serviceId uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, ok := n.nodes[nodeId]
	if !ok {
		return
	}
	for _, existing := range node.ServiceIds {
		if existing == serviceId {
			return
		}
	}
	node.ServiceIds = append(node.ServiceIds, serviceId)
}

// DetachService removes serviceId from nodeId's service list.
func (n *NodeRegistry) DetachService(nodeId, serviceId uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, ok := n.nodes[nodeId]
	if !ok {
		return
	}
	for i, existing := range node.ServiceIds {
		if existing == serviceId {
			node.ServiceIds = append(node.ServiceIds[:i], node.ServiceIds[i+1:]...)
			return
		}
	}
}

// Start launches the background liveness tick.
func (n *NodeRegistry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.wg.Add(1)
	go n.livenessLoop(ctx)
}

// Stop cancels the liveness tick and waits for it to exit.
func (n *NodeRegistry) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

func (n *NodeRegistry) livenessLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sweep()
		}
	}
}

func (n *NodeRegistry) sweep() {
	now := time.Now()

	type transition struct {
		id   uuid.UUID
		prev NodeStatus
		curr NodeStatus
	}
	var transitions []transition

	n.mu.Lock()
	for id, node := range n.nodes {
		if node.Status == NodeStatusFailed {
			continue
		}
		if now.Sub(node.LastSeen) > n.nodeTimeout {
			transitions = append(transitions, transition{id, node.Status, NodeStatusFailed})
			node.Status = NodeStatusFailed
		}
	}
	n.mu.Unlock()

	for _, t := range transitions {
		n.bus.Publish(NodeStatusChanged{NodeId: t.id, Previous: t.prev, Current: t.curr, Timestamp: now})
	}
	if len(transitions) > 0 {
		n.reportActiveGauge()
	}
}

// Get returns a copy of the node info for id.
func (n *NodeRegistry) Get(id uuid.UUID) (NodeInfo, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return *node, true
}

// Active returns every node currently classified Active.
func (n *NodeRegistry) Active() []NodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]NodeInfo, 0, len(n.nodes))
	for _, node := range n.nodes {
		if node.Status == NodeStatusActive {
			out = append(out, *node)
		}
	}
	return out
}

func (n *NodeRegistry) reportActiveGauge() {
	if n.metrics == nil {
		return
	}
	n.metrics.NodesActive.Set(float64(len(n.Active())))
}
