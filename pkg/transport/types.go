// Package transport implements the Transport Router: selection between a
// local shared-memory path and a framed network path, with performance
// scoring, fallback, and metric feedback.
package transport

import "time"

// Kind names a concrete transport implementation.
type Kind string

const (
	KindLocal   Kind = "local"
	KindNetwork Kind = "network"
)

// Preference is the caller's routing preference for a request.
type Preference int

const (
	RequireLocal Preference = iota
	LocalOnly               // alias of RequireLocal, accepted at the config boundary
	RequireNetwork
	NetworkOnly // alias of RequireNetwork
	PreferLocal
	PreferNetwork
	AutoOptimize
	Adaptive
)

// FallbackBehavior governs whether TransportRouter retries the alternate
// transport after a failed execution.
type FallbackBehavior int

const (
	FallbackFail FallbackBehavior = iota
	FallbackOnce
	FallbackKeepTrying
	FallbackBestAvailable
)

// DecisionReason explains why a RoutingDecision picked its transport.
type DecisionReason int

const (
	ReasonMandated DecisionReason = iota
	ReasonPreferenceSatisfied
	ReasonFallback
	ReasonAutoOptimizeScore
	ReasonLargePayload
	ReasonLoadBalancing
)

var decisionReasonNames = map[DecisionReason]string{
	ReasonMandated:            "mandated",
	ReasonPreferenceSatisfied: "preference_satisfied",
	ReasonFallback:            "fallback",
	ReasonAutoOptimizeScore:   "auto_optimize_score",
	ReasonLargePayload:        "large_payload",
	ReasonLoadBalancing:       "load_balancing",
}

// String returns the metric/log-friendly label for the reason.
func (r DecisionReason) String() string {
	if n, ok := decisionReasonNames[r]; ok {
		return n
	}
	return "unknown"
}

var preferenceNames = map[string]Preference{
	"require_local":   RequireLocal,
	"local_only":      LocalOnly,
	"require_network": RequireNetwork,
	"network_only":    NetworkOnly,
	"prefer_local":    PreferLocal,
	"prefer_network":  PreferNetwork,
	"auto_optimize":   AutoOptimize,
	"adaptive":        Adaptive,
}

// ParsePreference maps a configuration string to a Preference, defaulting
// to AutoOptimize for an unrecognized value.
func ParsePreference(s string) Preference {
	if p, ok := preferenceNames[s]; ok {
		return p
	}
	return AutoOptimize
}

var fallbackNames = map[string]FallbackBehavior{
	"fail":  FallbackFail,
	"once":  FallbackOnce,
	"retry": FallbackKeepTrying,
}

// ParseFallback maps a configuration string to a FallbackBehavior,
// defaulting to FallbackOnce for an unrecognized value.
func ParseFallback(s string) FallbackBehavior {
	if f, ok := fallbackNames[s]; ok {
		return f
	}
	return FallbackOnce
}

// PerformanceRequirements constrains acceptable estimated performance for
// PreferLocal/PreferNetwork routing.
type PerformanceRequirements struct {
	MaxLatencyMs      float64
	MinThroughputMbps float64
}

// PerformanceThresholds and AutoOptimizationConfig are supplemented from
// original_source/: explicit configuration structs rather than folding
// their fields into the router's top-level Config.
type PerformanceThresholds struct {
	LargeMessageThresholdBytes int64
	HighConnectionThreshold    int
}

type AutoOptimizationConfig struct {
	Enabled bool
}

// Config holds TransportRouter tunables.
type Config struct {
	DefaultPreference      Preference
	Thresholds             PerformanceThresholds
	AutoOptimization       AutoOptimizationConfig
	Fallback               FallbackBehavior
}

// RoutingDecision is the output of TransportRouter.Route.
type RoutingDecision struct {
	Transport           Kind
	Reason              DecisionReason
	Confidence          float64
	ExpectedLatencyUs   float64
	ExpectedThroughput  float64
}

// Operation is the sum type of SharedFileOperation variants LocalTransport
// and NetworkTransport dispatch.
type OperationKind int

const (
	OpWrite OperationKind = iota
	OpRead
	OpCreate
	OpDelete
	OpGetInfo
	// Variants LocalTransport returns NotSupported for; NetworkTransport
	// forwards every kind to its peer.
	OpAppend
	OpCopy
	OpMove
	OpList
	OpSetPermissions
	OpResize
)

var operationKindNames = map[string]OperationKind{
	"write":            OpWrite,
	"read":             OpRead,
	"create":           OpCreate,
	"delete":           OpDelete,
	"get_info":         OpGetInfo,
	"append":           OpAppend,
	"copy":             OpCopy,
	"move":             OpMove,
	"list":             OpList,
	"set_permissions":  OpSetPermissions,
	"resize":           OpResize,
}

// ParseOperationKind maps a wire-level operation name to an OperationKind,
// defaulting to OpRead for an unrecognized value.
func ParseOperationKind(s string) OperationKind {
	if k, ok := operationKindNames[s]; ok {
		return k
	}
	return OpRead
}

// CreationPolicy gates LocalTransport's Create dispatch.
type CreationPolicy int

const (
	PolicyCreate CreationPolicy = iota
	PolicyNeverCreate
	PolicyCreateIfNotExists
	PolicyCreateIfAuthorized
)

// Operation is a single SharedFileOperation request routed through a
// transport.
type Operation struct {
	Kind        OperationKind
	Path        string
	Offset      int64
	Data        []byte
	Length      int64
	Size        int64
	InitialData []byte
	Permissions uint32
	Policy      CreationPolicy
	RequestName string // used by LocalTransport's relative-path collision rule
}

// OperationResult is the outcome of executing an Operation against a
// transport.
type OperationResult struct {
	Data        []byte
	BytesMoved  int64
	InfoSize    int64
	InfoModTime time.Time
}

// PerformanceSample is recorded to the per-transport ring buffer after
// every execution.
type PerformanceSample struct {
	Timestamp       time.Time
	LatencyUs       float64
	ThroughputMbps  float64
	Success         bool
	ConnectionCount int
	MessageSize     int64
}
