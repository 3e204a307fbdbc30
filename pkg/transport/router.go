package transport

import (
	"context"
	"time"

	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/commyio/commy/internal/telemetry"
	"github.com/commyio/commy/pkg/errs"
	"github.com/commyio/commy/pkg/metrics"
)

// NetworkEstimator supplies the router with the estimated performance and
// current load of the network transport, so the router can score without
// depending on NetworkTransport's connection internals directly.
type NetworkEstimator interface {
	EstimatedLatencyUs() float64
	EstimatedThroughputMbps() float64
	ActiveConnections() int
}

// Executor is implemented by LocalTransport and a NetworkTransport adapter
// bound to a specific endpoint, so the router can execute without knowing
// which concrete transport it picked.
type Executor interface {
	Kind() Kind
	Execute(op Operation) (OperationResult, error)
}

// Router picks between local and network execution and applies the
// configured fallback policy when the chosen path fails.
type Router struct {
	cfg     Config
	monitor *PerformanceMonitor

	local      Executor
	network    Executor
	netEstimator NetworkEstimator
	metrics    *metrics.TransportMetrics
}

// NewRouter builds a router over the given local/network executors.
func NewRouter(cfg Config, local, network Executor, netEstimator NetworkEstimator) *Router {
	return &Router{
		cfg:          cfg,
		monitor:      NewPerformanceMonitor(),
		local:        local,
		network:      network,
		netEstimator: netEstimator,
		metrics:      metrics.NewTransportMetrics(),
	}
}

// Monitor exposes the router's PerformanceMonitor for metrics wiring.
func (r *Router) Monitor() *PerformanceMonitor { return r.monitor }

// Route applies the preference/threshold selection rules below and
// returns the chosen transport without executing anything.
func (r *Router) Route(pref Preference, perfReq *PerformanceRequirements, messageSize int64) RoutingDecision {
	switch pref {
	case RequireLocal, LocalOnly:
		return RoutingDecision{Transport: KindLocal, Reason: ReasonMandated, Confidence: 1.0,
			ExpectedLatencyUs: LocalEstimatedLatencyUs, ExpectedThroughput: LocalEstimatedThroughputMbps}
	case RequireNetwork, NetworkOnly:
		return RoutingDecision{Transport: KindNetwork, Reason: ReasonMandated, Confidence: 1.0,
			ExpectedLatencyUs: r.netEstimator.EstimatedLatencyUs(), ExpectedThroughput: r.netEstimator.EstimatedThroughputMbps()}
	case PreferLocal:
		if perfReq == nil || r.satisfies(KindLocal, *perfReq) {
			return RoutingDecision{Transport: KindLocal, Reason: ReasonPreferenceSatisfied, Confidence: 0.9,
				ExpectedLatencyUs: LocalEstimatedLatencyUs, ExpectedThroughput: LocalEstimatedThroughputMbps}
		}
		return RoutingDecision{Transport: KindNetwork, Reason: ReasonFallback, Confidence: 0.5,
			ExpectedLatencyUs: r.netEstimator.EstimatedLatencyUs(), ExpectedThroughput: r.netEstimator.EstimatedThroughputMbps()}
	case PreferNetwork:
		if perfReq == nil || r.satisfies(KindNetwork, *perfReq) {
			return RoutingDecision{Transport: KindNetwork, Reason: ReasonPreferenceSatisfied, Confidence: 0.9,
				ExpectedLatencyUs: r.netEstimator.EstimatedLatencyUs(), ExpectedThroughput: r.netEstimator.EstimatedThroughputMbps()}
		}
		return RoutingDecision{Transport: KindLocal, Reason: ReasonFallback, Confidence: 0.5,
			ExpectedLatencyUs: LocalEstimatedLatencyUs, ExpectedThroughput: LocalEstimatedThroughputMbps}
	case Adaptive:
		if messageSize > r.cfg.Thresholds.LargeMessageThresholdBytes && r.cfg.Thresholds.LargeMessageThresholdBytes > 0 {
			return RoutingDecision{Transport: KindNetwork, Reason: ReasonLargePayload, Confidence: 0.8,
				ExpectedLatencyUs: r.netEstimator.EstimatedLatencyUs(), ExpectedThroughput: r.netEstimator.EstimatedThroughputMbps()}
		}
		if r.netEstimator.ActiveConnections() > r.cfg.Thresholds.HighConnectionThreshold && r.cfg.Thresholds.HighConnectionThreshold > 0 {
			return RoutingDecision{Transport: KindNetwork, Reason: ReasonLoadBalancing, Confidence: 0.7,
				ExpectedLatencyUs: r.netEstimator.EstimatedLatencyUs(), ExpectedThroughput: r.netEstimator.EstimatedThroughputMbps()}
		}
		return r.autoOptimize()
	default: // AutoOptimize
		return r.autoOptimize()
	}
}

func (r *Router) satisfies(k Kind, req PerformanceRequirements) bool {
	var latency, throughput float64
	if k == KindLocal {
		latency, throughput = LocalEstimatedLatencyUs, LocalEstimatedThroughputMbps
	} else {
		latency, throughput = r.netEstimator.EstimatedLatencyUs(), r.netEstimator.EstimatedThroughputMbps()
	}

	if req.MaxLatencyMs > 0 && latency/1000.0 > req.MaxLatencyMs {
		return false
	}
	if req.MinThroughputMbps > 0 && throughput < req.MinThroughputMbps {
		return false
	}
	return true
}

// score weighs latency, throughput, and recent success rate, with a
// penalty for heavier connection load: 1000/latency_us + 10*throughput_mbps
// + 100*success_rate, minus a connection-load penalty.
func (r *Router) score(k Kind, latencyUs, throughputMbps float64, connections int) float64 {
	successRate := r.monitor.SuccessRate(k)
	s := 1000.0/latencyUs + 10*throughputMbps + 100*successRate
	s -= float64(connections) * 0.1
	return s
}

func (r *Router) autoOptimize() RoutingDecision {
	localScore := r.score(KindLocal, LocalEstimatedLatencyUs, LocalEstimatedThroughputMbps, 0)
	netLatency := r.netEstimator.EstimatedLatencyUs()
	netThroughput := r.netEstimator.EstimatedThroughputMbps()
	netConns := r.netEstimator.ActiveConnections()
	netScore := r.score(KindNetwork, netLatency, netThroughput, netConns)

	total := localScore + netScore
	if total <= 0 {
		total = 1
	}

	if localScore >= netScore {
		return RoutingDecision{Transport: KindLocal, Reason: ReasonAutoOptimizeScore, Confidence: localScore / total,
			ExpectedLatencyUs: LocalEstimatedLatencyUs, ExpectedThroughput: LocalEstimatedThroughputMbps}
	}
	return RoutingDecision{Transport: KindNetwork, Reason: ReasonAutoOptimizeScore, Confidence: netScore / total,
		ExpectedLatencyUs: netLatency, ExpectedThroughput: netThroughput}
}

// ExecuteRequest routes op per pref, executes it, falls back once if the
// chosen transport fails and cfg.Fallback != FallbackFail, and records a
// PerformanceSample for the executed transport.
func (r *Router) ExecuteRequest(ctx context.Context, op Operation, pref Preference, perfReq *PerformanceRequirements) (OperationResult, error) {
	decision := r.Route(pref, perfReq, int64(len(op.Data)))
	if r.metrics != nil {
		r.metrics.RoutingDecisions.WithLabelValues(string(decision.Transport), decision.Reason.String()).Inc()
	}

	start := time.Now()
	result, err := r.executeOn(ctx, decision.Transport, op)
	latencyUs := float64(time.Since(start).Microseconds())

	r.record(decision.Transport, latencyUs, int64(len(op.Data)), err == nil)

	if err != nil && mandatesNoFallback(pref) {
		return result, err
	}

	if err != nil && r.cfg.Fallback != FallbackFail {
		if r.metrics != nil {
			r.metrics.FallbacksTotal.Inc()
		}
		alt := alternate(decision.Transport)
		altStart := time.Now()
		altResult, altErr := r.executeOn(ctx, alt, op)
		r.record(alt, float64(time.Since(altStart).Microseconds()), int64(len(op.Data)), altErr == nil)
		return altResult, altErr
	}

	return result, err
}

func mandatesNoFallback(pref Preference) bool {
	return pref == RequireLocal || pref == LocalOnly || pref == RequireNetwork || pref == NetworkOnly
}

func alternate(k Kind) Kind {
	if k == KindLocal {
		return KindNetwork
	}
	return KindLocal
}

func (r *Router) executeOn(ctx context.Context, k Kind, op Operation) (OperationResult, error) {
	var spanName string
	if k == KindLocal {
		spanName = telemetry.SpanExecuteLocal
	} else {
		spanName = telemetry.SpanExecuteNetwork
	}

	_, span := telemetry.StartSpan(ctx, spanName, otelTrace.WithAttributes(telemetry.Transport(string(k))))
	defer span.End()

	executor := r.local
	if k == KindNetwork {
		executor = r.network
	}
	if executor == nil {
		return OperationResult{}, errs.New(errs.KindTransportUnavailable, "router.execute", string(k)+" transport not configured")
	}

	return executor.Execute(op)
}

func (r *Router) record(k Kind, latencyUs float64, size int64, success bool) {
	r.monitor.Record(k, PerformanceSample{
		Timestamp:      time.Now(),
		LatencyUs:      latencyUs,
		ThroughputMbps: estimateThroughput(size, latencyUs),
		Success:        success,
		MessageSize:    size,
	})

	if r.metrics != nil {
		r.metrics.OperationLatency.WithLabelValues(string(k)).Observe(latencyUs)
		r.metrics.SuccessRate.WithLabelValues(string(k)).Set(r.monitor.SuccessRate(k))
	}
}

func estimateThroughput(sizeBytes int64, latencyUs float64) float64 {
	if latencyUs <= 0 {
		return 0
	}
	seconds := latencyUs / 1_000_000.0
	return (float64(sizeBytes) / (1024 * 1024)) / seconds
}
