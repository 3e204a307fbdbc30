package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys, following OpenTelemetry semantic convention style
// (dotted namespaces) for the Manager, Transport Router, and Mesh Coordinator.
const (
	// ========================================================================
	// Shared-File Manager
	// ========================================================================
	AttrIdentifier  = "commy.identifier"
	AttrFileID      = "commy.file_id"
	AttrPath        = "commy.path"
	AttrSize        = "commy.size"
	AttrConnections = "commy.connections"
	AttrPolicy      = "commy.policy"
	AttrReason      = "commy.reason"

	// ========================================================================
	// Transport
	// ========================================================================
	AttrTransport    = "commy.transport"
	AttrConfidence   = "commy.confidence"
	AttrLatencyUs    = "commy.latency_us"
	AttrThroughput   = "commy.throughput_mbps"
	AttrClientAddr   = "commy.client_addr"
	AttrMessageID    = "commy.message_id"
	AttrMessageType  = "commy.message_type"

	// ========================================================================
	// Mesh Coordinator
	// ========================================================================
	AttrServiceID  = "commy.service_id"
	AttrServiceTag = "commy.service_tag"
	AttrNodeID     = "commy.node_id"
	AttrAlgorithm  = "commy.algorithm"
	AttrCBState    = "commy.circuit_breaker_state"
	AttrErrorRate  = "commy.error_rate"
)

// Span names for operations.
const (
	// Shared-File Manager
	SpanRequestFile    = "manager.request_file"
	SpanDisconnectFile = "manager.disconnect_file"
	SpanCleanupTick    = "manager.cleanup_tick"

	// Transport
	SpanRouteRequest    = "transport.route_request"
	SpanExecuteLocal    = "transport.execute_local"
	SpanExecuteNetwork  = "transport.execute_network"

	// Mesh Coordinator
	SpanRegisterService = "mesh.register_service"
	SpanDiscover         = "mesh.discover"
	SpanSelect           = "mesh.select"
	SpanHealthCheck      = "mesh.health_check"
	SpanDeployService    = "mesh.deploy_service"
)

// Identifier returns an attribute for a shared-file identifier.
func Identifier(id string) attribute.KeyValue {
	return attribute.String(AttrIdentifier, id)
}

// FileID returns an attribute for an internal FileId handle.
func FileID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrFileID, int64(id))
}

// Path returns an attribute for a filesystem path.
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// Transport returns an attribute naming the chosen transport.
func Transport(name string) attribute.KeyValue {
	return attribute.String(AttrTransport, name)
}

// ClientAddr returns an attribute for a remote peer address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// MessageID returns an attribute for a ProtocolMessage correlation id.
func MessageID(id string) attribute.KeyValue {
	return attribute.String(AttrMessageID, id)
}

// ServiceID returns an attribute for a mesh service id.
func ServiceID(id string) attribute.KeyValue {
	return attribute.String(AttrServiceID, id)
}

// NodeID returns an attribute for a mesh node id.
func NodeID(id string) attribute.KeyValue {
	return attribute.String(AttrNodeID, id)
}

// Algorithm returns an attribute naming the selected load-balancing algorithm.
func Algorithm(name string) attribute.KeyValue {
	return attribute.String(AttrAlgorithm, name)
}

// Int64Attr is a small helper for ad-hoc numeric attributes on spans.
func Int64Attr(key string, v int64) attribute.KeyValue {
	return attribute.Int64(key, v)
}
