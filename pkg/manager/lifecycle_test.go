package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleManagerProgressesToDeletion(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	req := SharedFileRequest{Identifier: "ttl-file", MaxSizeBytes: 1024, Policy: CreateOrConnect, TTLSeconds: 1}
	resp, err := mgr.RequestFile(ctx, req, "token")
	require.NoError(t, err)

	// Backdate the tracked expiry so the very first tick sees it as
	// already past the warning window, without sleeping real seconds.
	mgr.lifecycle.mu.Lock()
	rec := mgr.lifecycle.records[resp.FileId]
	require.NotNil(t, rec)
	rec.expiresAt = time.Now().Add(-time.Hour)
	mgr.lifecycle.mu.Unlock()

	state, tracked := mgr.lifecycle.state(resp.FileId)
	assert.True(t, tracked)
	assert.Equal(t, LifecycleActive, state)

	// Active -> ExpirationWarning
	mgr.lifecycle.tick(ctx)
	state, _ = mgr.lifecycle.state(resp.FileId)
	assert.Equal(t, LifecycleExpirationWarning, state)

	// ExpirationWarning -> Expired
	mgr.lifecycle.tick(ctx)
	state, _ = mgr.lifecycle.state(resp.FileId)
	assert.Equal(t, LifecycleExpired, state)

	mgr.lifecycle.mu.Lock()
	mgr.lifecycle.records[resp.FileId].gracePeriodEnds = time.Now().Add(-time.Hour)
	mgr.lifecycle.mu.Unlock()

	// Expired -> MarkedForDeletion
	mgr.lifecycle.tick(ctx)
	state, _ = mgr.lifecycle.state(resp.FileId)
	assert.Equal(t, LifecycleMarkedForDeletion, state)

	// MarkedForDeletion -> CleaningUp
	mgr.lifecycle.tick(ctx)
	state, _ = mgr.lifecycle.state(resp.FileId)
	assert.Equal(t, LifecycleCleaningUp, state)

	// CleaningUp -> Deleted, returned as a batch, record dropped.
	deleted := mgr.lifecycle.tick(ctx)
	assert.Equal(t, []FileId{resp.FileId}, deleted)
	_, tracked = mgr.lifecycle.state(resp.FileId)
	assert.False(t, tracked)
}

func TestLifecycleManagerTouchResetsWarning(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	req := SharedFileRequest{Identifier: "ttl-file", MaxSizeBytes: 1024, Policy: CreateOrConnect, TTLSeconds: 1}
	resp, err := mgr.RequestFile(ctx, req, "token")
	require.NoError(t, err)

	mgr.lifecycle.mu.Lock()
	mgr.lifecycle.records[resp.FileId].expiresAt = time.Now().Add(-time.Hour)
	mgr.lifecycle.mu.Unlock()

	mgr.lifecycle.tick(ctx)
	state, _ := mgr.lifecycle.state(resp.FileId)
	require.Equal(t, LifecycleExpirationWarning, state)

	// A second RequestFile (connect) touches the record back to Active.
	_, err = mgr.RequestFile(ctx, req, "token")
	require.NoError(t, err)

	state, _ = mgr.lifecycle.state(resp.FileId)
	assert.Equal(t, LifecycleActive, state)
}

func TestLifecycleManagerNoTTLNeverTracked(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	req := SharedFileRequest{Identifier: "no-ttl-file", MaxSizeBytes: 1024, Policy: CreateOrConnect}
	resp, err := mgr.RequestFile(ctx, req, "token")
	require.NoError(t, err)

	_, tracked := mgr.lifecycle.state(resp.FileId)
	assert.False(t, tracked)
}
