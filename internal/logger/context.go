package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context carried through the
// Manager, TransportRouter, and Mesh Coordinator call chains.
type LogContext struct {
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	Component  string    // manager, transport, mesh, lifecycle, ...
	Identifier string    // shared-file identifier
	FileID     uint64    // internal FileId handle
	ServiceID  string    // mesh ServiceRegistration id
	NodeID     string    // mesh NodeRegistry id
	ClientIP   string    // remote peer address (network transport)
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a component, e.g. "manager".
func NewLogContext(component string) *LogContext {
	return &LogContext{
		Component: component,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithIdentifier returns a copy with the shared-file identifier set.
func (lc *LogContext) WithIdentifier(identifier string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Identifier = identifier
	}
	return clone
}

// WithFileID returns a copy with the FileId set.
func (lc *LogContext) WithFileID(fileID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.FileID = fileID
	}
	return clone
}

// WithService returns a copy with the mesh service id set.
func (lc *LogContext) WithService(serviceID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ServiceID = serviceID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
