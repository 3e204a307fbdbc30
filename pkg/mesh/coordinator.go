package mesh

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/internal/telemetry"
	"github.com/commyio/commy/pkg/errs"
)

// CoordinatorConfig bundles the sub-component configuration the
// MeshCoordinator wires together.
type CoordinatorConfig struct {
	Balancer        BalancerConfig
	AlertConditions []AlertCondition
}

// DefaultCoordinatorConfig returns sane defaults: round-robin balancing
// and a single warning-level alert at a 50% 1h success rate floor.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Balancer: DefaultBalancerConfig(),
		AlertConditions: []AlertCondition{
			{Name: "low_success_rate", Comparator: ComparatorLessThan, Threshold: 0.5, Severity: SeverityWarning, Cooldown: 60_000_000_000},
		},
	}
}

// MeshCoordinator composes the ServiceRegistry, Balancer, HealthMonitor,
// and NodeRegistry into a single control-plane surface: register_service,
// route_request, deploy_service.
type MeshCoordinator struct {
	Registry *Registry
	Balancer *Balancer
	Health   *HealthMonitor
	Nodes    *NodeRegistry

	routeRequestCount atomic.Uint64
}

// NewMeshCoordinator wires the four sub-components together.
func NewMeshCoordinator(cfg CoordinatorConfig) *MeshCoordinator {
	registry := NewRegistry()
	balancer := NewBalancer(cfg.Balancer)
	health := NewHealthMonitor(registry, balancer, cfg.AlertConditions)
	nodes := NewNodeRegistry()

	return &MeshCoordinator{Registry: registry, Balancer: balancer, Health: health, Nodes: nodes}
}

// Start launches every sub-component's background loop.
func (c *MeshCoordinator) Start(ctx context.Context) {
	c.Registry.Start(ctx)
	c.Health.Start(ctx)
	c.Nodes.Start(ctx)
}

// Stop cancels every sub-component's background loop.
func (c *MeshCoordinator) Stop() {
	c.Registry.Stop()
	c.Health.Stop()
	c.Nodes.Stop()
}

// RegisterService registers reg with the ServiceRegistry, begins tracking
// it for load balancing, and attaches it to reg.NodeId's service list
// when that node is known to the mesh.
func (c *MeshCoordinator) RegisterService(ctx context.Context, reg ServiceRegistration) (uuid.UUID, error) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanRegisterService)
	defer span.End()

	if reg.Name == "" {
		return uuid.Nil, errs.NewValidationError("coordinator.register_service", "name", "must not be empty")
	}
	if reg.TTL <= 0 {
		return uuid.Nil, errs.NewValidationError("coordinator.register_service", "ttl", "must be positive")
	}
	if reg.ServiceId == uuid.Nil {
		reg.ServiceId = uuid.New()
	}

	if err := c.Registry.Register(reg); err != nil {
		return uuid.Nil, err
	}
	c.Balancer.Track(reg)

	if reg.NodeId != uuid.Nil {
		c.Nodes.AttachService(reg.NodeId, reg.ServiceId)
	}

	logger.Info("service registered", logger.ServiceID(reg.ServiceId.String()))
	return reg.ServiceId, nil
}

// DeregisterService removes a service from the registry, the balancer,
// and its node's service list.
func (c *MeshCoordinator) DeregisterService(id uuid.UUID) error {
	if reg, ok := c.Registry.Get(id); ok && reg.NodeId != uuid.Nil {
		c.Nodes.DetachService(reg.NodeId, id)
	}
	c.Balancer.Untrack(id)
	return c.Registry.Unregister(id)
}

// RouteRequest discovers candidates matching q, then selects one via the
// load balancer's configured algorithm. hashContext seeds consistent
// hashing when that algorithm is configured. Every call increments the
// coordinator's request counter, win or lose.
func (c *MeshCoordinator) RouteRequest(ctx context.Context, q DiscoveryQuery, hashContext string) (LoadBalanceResult, error) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanRouteRequest)
	defer span.End()

	c.routeRequestCount.Add(1)

	discovered := c.Registry.Discover(ctx, q)
	if len(discovered.Services) == 0 {
		return LoadBalanceResult{}, errs.New(errs.KindResourceExhausted, "coordinator.route_request", "no services matched discovery query")
	}

	return c.Balancer.Select(hashContext)
}

// RouteRequestCount reports how many RouteRequest calls this coordinator
// has served.
func (c *MeshCoordinator) RouteRequestCount() uint64 {
	return c.routeRequestCount.Load()
}

// DeploymentSpec describes a service placement request. When NodeId is
// set, the service is deployed onto that node directly (manual
// placement, joining it into the mesh first if unknown). When NodeId is
// zero, DeployService selects a node automatically from Resources,
// Constraints, and PreferredNodes.
type DeploymentSpec struct {
	NodeId      uuid.UUID
	NodeAddress string
	Service     ServiceRegistration

	Resources      ResourceRequirement
	Constraints    []PlacementConstraint
	PreferredNodes []uuid.UUID
}

// DeployService places spec.Service onto a node. With an explicit NodeId
// it joins that node if unseen and registers directly against it.
// Otherwise it runs the selection algorithm: among ACTIVE nodes meeting
// Resources and Constraints, prefer a node from PreferredNodes, then
// minimize current service count.
func (c *MeshCoordinator) DeployService(ctx context.Context, spec DeploymentSpec) (uuid.UUID, error) {
	if spec.NodeId != uuid.Nil {
		if _, ok := c.Nodes.Get(spec.NodeId); !ok {
			c.Nodes.Join(spec.NodeId, spec.NodeAddress, spec.Resources, nil)
		}
		spec.Service.NodeId = spec.NodeId
		return c.RegisterService(ctx, spec.Service)
	}

	selected, err := c.selectNode(spec)
	if err != nil {
		return uuid.Nil, err
	}

	spec.Service.NodeId = selected
	return c.RegisterService(ctx, spec.Service)
}

// selectNode implements deploy_service's placement algorithm: filter
// ACTIVE nodes by resource requirement and placement constraints, prefer
// one named in PreferredNodes, then break ties by minimizing current
// service count.
func (c *MeshCoordinator) selectNode(spec DeploymentSpec) (uuid.UUID, error) {
	candidates := c.Nodes.Active()

	var eligible []NodeInfo
	for _, node := range candidates {
		if node.matches(spec.Resources, spec.Constraints) {
			eligible = append(eligible, node)
		}
	}
	if len(eligible) == 0 {
		return uuid.Nil, errs.New(errs.KindResourceExhausted, "coordinator.deploy_service", "no active node meets resource requirements and placement constraints")
	}

	preferred := make(map[uuid.UUID]bool, len(spec.PreferredNodes))
	for _, id := range spec.PreferredNodes {
		preferred[id] = true
	}

	pool := eligible
	if len(preferred) > 0 {
		var fromPreferred []NodeInfo
		for _, node := range eligible {
			if preferred[node.NodeId] {
				fromPreferred = append(fromPreferred, node)
			}
		}
		if len(fromPreferred) > 0 {
			pool = fromPreferred
		}
	}

	best := pool[0]
	for _, node := range pool[1:] {
		if len(node.ServiceIds) < len(best.ServiceIds) {
			best = node
		}
	}
	return best.NodeId, nil
}
