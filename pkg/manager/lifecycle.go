package manager

import (
	"context"
	"sync"
	"time"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/pkg/errs"
)

// LifecycleState is the TTL/grace-period state machine a tracked file
// moves through, independent of FileMetadata.Status (which reflects
// operational health, not expiration). Transitions are one-way except
// Active <-> ExpirationWarning, which fresh activity reverses. Only the
// LifecycleManager mutates this state.
type LifecycleState int

const (
	LifecycleActive LifecycleState = iota
	LifecycleExpirationWarning
	LifecycleExpired
	LifecycleMarkedForDeletion
	LifecycleCleaningUp
	LifecycleDeleted
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleActive:
		return "active"
	case LifecycleExpirationWarning:
		return "expiration_warning"
	case LifecycleExpired:
		return "expired"
	case LifecycleMarkedForDeletion:
		return "marked_for_deletion"
	case LifecycleCleaningUp:
		return "cleaning_up"
	case LifecycleDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// WarningWindow is how far ahead of expiry a tracked file enters
// ExpirationWarning.
const WarningWindow = 30 * time.Second

// GracePeriod is how long an Expired file may still be touched back to
// life before it is MarkedForDeletion.
const GracePeriod = 60 * time.Second

type lifecycleRecord struct {
	state           LifecycleState
	expiresAt       time.Time
	gracePeriodEnds time.Time
}

// LifecycleManager enforces per-file TTLs through the Active ->
// ExpirationWarning -> Expired -> MarkedForDeletion -> CleaningUp ->
// Deleted state machine described alongside SharedFileManager's own
// status field, and batches the files that reach Deleted in a single
// tick instead of removing them one at a time.
type LifecycleManager struct {
	mgr *SharedFileManager

	mu      sync.Mutex
	records map[FileId]*lifecycleRecord
}

// NewLifecycleManager constructs a LifecycleManager bound to mgr.
// SharedFileManager's active_files map and per-file locks remain the
// single source of truth for file data; LifecycleManager only tracks
// the expiration state machine alongside it.
func NewLifecycleManager(mgr *SharedFileManager) *LifecycleManager {
	return &LifecycleManager{mgr: mgr, records: make(map[FileId]*lifecycleRecord)}
}

// track registers id for TTL enforcement. A zero ttlSeconds means no
// expiration and the file is never tracked.
func (l *LifecycleManager) track(id FileId, ttlSeconds int64, createdAt time.Time) {
	if ttlSeconds <= 0 {
		return
	}
	l.mu.Lock()
	l.records[id] = &lifecycleRecord{
		state:     LifecycleActive,
		expiresAt: createdAt.Add(time.Duration(ttlSeconds) * time.Second),
	}
	l.mu.Unlock()
}

// touch reverses a file sitting in ExpirationWarning back to Active,
// modeling "activity resets warning." Connect and write paths call this.
func (l *LifecycleManager) touch(id FileId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok || rec.state != LifecycleExpirationWarning {
		return
	}
	rec.state = LifecycleActive
}

// forget drops id's lifecycle record. Called whenever a file is removed
// through a path other than TTL expiration, so a stale record never
// outlives the file it describes.
func (l *LifecycleManager) forget(id FileId) {
	l.mu.Lock()
	delete(l.records, id)
	l.mu.Unlock()
}

// state returns id's current lifecycle state, for observability.
func (l *LifecycleManager) state(id FileId) (LifecycleState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return LifecycleActive, false
	}
	return rec.state, true
}

// tick advances every tracked record by one step and returns, as a
// batch, the FileIds that reached Deleted this tick. The caller is
// responsible for actually removing those files from active_files.
func (l *LifecycleManager) tick(ctx context.Context) []FileId {
	now := time.Now()

	l.mu.Lock()
	var warned, expired, deleted []FileId
	for id, rec := range l.records {
		switch rec.state {
		case LifecycleActive:
			if now.After(rec.expiresAt.Add(-WarningWindow)) {
				rec.state = LifecycleExpirationWarning
				warned = append(warned, id)
			}
		case LifecycleExpirationWarning:
			if now.After(rec.expiresAt) {
				rec.state = LifecycleExpired
				rec.gracePeriodEnds = now.Add(GracePeriod)
				expired = append(expired, id)
			}
		case LifecycleExpired:
			if now.After(rec.gracePeriodEnds) {
				rec.state = LifecycleMarkedForDeletion
			}
		case LifecycleMarkedForDeletion:
			rec.state = LifecycleCleaningUp
		case LifecycleCleaningUp:
			rec.state = LifecycleDeleted
			deleted = append(deleted, id)
		}
	}
	for _, id := range deleted {
		delete(l.records, id)
	}
	l.mu.Unlock()

	for _, id := range warned {
		l.mgr.events.Publish(ManagerEvent{Type: EventLatencyThresholdExceeded, FileId: id, MetricName: "ttl_expiration_warning"})
	}
	for _, id := range expired {
		l.mgr.emitTtlExpired(ctx, id)
	}

	return deleted
}

// emitTtlExpired publishes FileExpired and logs the Lifecycle TtlExpired
// condition for id, looking up its identifier/TTL from active_files
// while the record is still present.
func (m *SharedFileManager) emitTtlExpired(ctx context.Context, id FileId) {
	m.mu.RLock()
	info, ok := m.activeFiles[id]
	m.mu.RUnlock()
	if !ok {
		return
	}

	info.RLock()
	identifier := info.Metadata.Request.Identifier
	ttlSeconds := info.Metadata.Request.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = m.cfg.DefaultTTLSeconds
	}
	info.RUnlock()

	m.events.Publish(ManagerEvent{Type: EventFileExpired, FileId: id, Identifier: identifier})
	logger.WarnCtx(ctx, "file ttl expired", logger.Err(errs.NewTtlExpired("lifecycle_tick", identifier, ttlSeconds)), logger.FileID(uint64(id)))
}

func (m *SharedFileManager) lifecycleLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range m.lifecycle.tick(ctx) {
				m.removeFile(ctx, id, ReleaseTtlExpiration)
			}
		}
	}
}
