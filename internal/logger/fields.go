package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the Manager, Transport
// Router, and Mesh Coordinator. Use these keys consistently so log
// aggregation/querying stays uniform across components.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Component & Operation
	// ========================================================================
	KeyComponent = "component" // manager, transport, mesh, lifecycle, ...
	KeyOperation = "operation" // request_file, disconnect_file, select, ...
	KeyStatus    = "status"    // outcome of the operation
	KeyDuration  = "duration_ms"

	// ========================================================================
	// Shared-File Manager
	// ========================================================================
	KeyIdentifier  = "identifier"   // shared-file identifier
	KeyFileID      = "file_id"      // internal FileId handle
	KeyPath        = "path"         // absolute path of the mapped file
	KeySize        = "size"         // size in bytes
	KeyConnections = "connections"  // current connection count
	KeyPolicy      = "policy"       // ExistencePolicy/CreationPolicy
	KeyReason      = "reason"       // reason for a lifecycle/event transition

	// ========================================================================
	// Transport
	// ========================================================================
	KeyTransport  = "transport"   // local, network
	KeyConfidence = "confidence"  // routing decision confidence
	KeyLatencyUs  = "latency_us"  // measured/estimated latency
	KeyThroughput = "throughput_mbps"
	KeyClientIP   = "client_ip"
	KeyMessageID  = "message_id" // ProtocolMessage correlation id

	// ========================================================================
	// Mesh Coordinator
	// ========================================================================
	KeyServiceID  = "service_id"
	KeyNodeID     = "node_id"
	KeyServiceTag = "service_tag"
	KeyAlgorithm  = "algorithm" // load-balancing algorithm
	KeyCBState    = "circuit_breaker_state"
	KeyErrorRate  = "error_rate"

	// ========================================================================
	// Error/Diagnostics
	// ========================================================================
	KeyError     = "error"
	KeyErrorCode = "error_code"
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// Component returns a slog.Attr identifying the emitting subsystem.
func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

// Identifier returns a slog.Attr for a shared-file identifier.
func Identifier(id string) slog.Attr { return slog.String(KeyIdentifier, id) }

// FileID returns a slog.Attr for an internal FileId handle.
func FileID(id uint64) slog.Attr { return slog.Uint64(KeyFileID, id) }

// Transport returns a slog.Attr naming the selected transport.
func Transport(name string) slog.Attr { return slog.String(KeyTransport, name) }

// ServiceID returns a slog.Attr for a mesh service id.
func ServiceID(id string) slog.Attr { return slog.String(KeyServiceID, id) }

// NodeID returns a slog.Attr for a mesh node id.
func NodeID(id string) slog.Attr { return slog.String(KeyNodeID, id) }

// Err returns a slog.Attr wrapping an error's message, or an empty Attr
// (which slog omits) for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
