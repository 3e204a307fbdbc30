package transport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEstimator struct {
	latencyUs  float64
	throughput float64
	conns      int
}

func (f fixedEstimator) EstimatedLatencyUs() float64     { return f.latencyUs }
func (f fixedEstimator) EstimatedThroughputMbps() float64 { return f.throughput }
func (f fixedEstimator) ActiveConnections() int           { return f.conns }

func newTestRouter(t *testing.T) (*Router, *LocalTransport) {
	t.Helper()
	local := NewLocalTransport(t.TempDir())
	cfg := Config{
		DefaultPreference: AutoOptimize,
		Thresholds:        PerformanceThresholds{LargeMessageThresholdBytes: 1 << 20, HighConnectionThreshold: 50},
		Fallback:          FallbackOnce,
	}
	r := NewRouter(cfg, local, nil, fixedEstimator{latencyUs: 1000, throughput: 100, conns: 0})
	return r, local
}

// RequireLocal always routes local; RequireNetwork always routes network
// even if local would be faster.
func TestRouteRequirePreferenceHonored(t *testing.T) {
	r, _ := newTestRouter(t)

	decision := r.Route(RequireLocal, nil, 0)
	assert.Equal(t, KindLocal, decision.Transport)
	assert.Equal(t, ReasonMandated, decision.Reason)

	decision = r.Route(RequireNetwork, nil, 0)
	assert.Equal(t, KindNetwork, decision.Transport)
	assert.Equal(t, ReasonMandated, decision.Reason)
}

func TestRouteAdaptiveLargePayloadGoesNetwork(t *testing.T) {
	r, _ := newTestRouter(t)

	decision := r.Route(Adaptive, nil, 2<<20)
	assert.Equal(t, KindNetwork, decision.Transport)
	assert.Equal(t, ReasonLargePayload, decision.Reason)
}

func TestRouteAutoOptimizePrefersLocalWhenFaster(t *testing.T) {
	r, _ := newTestRouter(t)
	decision := r.Route(AutoOptimize, nil, 0)
	// Local's fixed estimate (50us/1000Mbps) outscores the network's
	// fixed test estimate (1000us/100Mbps, 0 connections).
	assert.Equal(t, KindLocal, decision.Transport)
}

func TestExecuteRequestLocalWriteThenRead(t *testing.T) {
	r, local := newTestRouter(t)
	ctx := context.Background()

	path := filepath.Join("writes", "a.bin")
	_, err := r.ExecuteRequest(ctx, Operation{Kind: OpCreate, Path: path, Size: 64, RequestName: "req1"}, RequireLocal, nil)
	require.NoError(t, err)

	resolved := local.ResolvePath(Operation{Path: path, RequestName: "req1"})
	_ = resolved

	_, err = r.ExecuteRequest(ctx, Operation{Kind: OpWrite, Path: path, RequestName: "req1", Offset: 0, Data: []byte("hi")}, RequireLocal, nil)
	require.NoError(t, err)

	result, err := r.ExecuteRequest(ctx, Operation{Kind: OpRead, Path: path, RequestName: "req1", Offset: 0, Length: 2}, RequireLocal, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), result.Data)
}

func TestLocalTransportUnsupportedOperation(t *testing.T) {
	local := NewLocalTransport(t.TempDir())
	_, err := local.Execute(Operation{Kind: OpAppend})
	require.Error(t, err)
}
