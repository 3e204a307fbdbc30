package manager

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/internal/telemetry"
	"github.com/commyio/commy/pkg/errs"
	"github.com/commyio/commy/pkg/metrics"
)

// Config holds SharedFileManager tunables.
type Config struct {
	FilesDirectory          string
	MaxFiles                int
	MaxFileSize             int64
	DefaultTTLSeconds       int64
	CleanupInterval         time.Duration
	PerformanceMetricsTick  time.Duration
	EnablePerformanceTicks  bool
}

// DefaultConfig returns the documented default intervals.
func DefaultConfig() Config {
	return Config{
		FilesDirectory:         "./commy-files",
		MaxFiles:               0, // unbounded
		MaxFileSize:            0, // unbounded
		DefaultTTLSeconds:      0, // no expiration
		CleanupInterval:        60 * time.Second,
		PerformanceMetricsTick: 10 * time.Second,
		EnablePerformanceTicks: false,
	}
}

// SharedFileManager is the identifier-keyed registry, policy engine, and
// lifecycle owner for shared files.
type SharedFileManager struct {
	cfg Config

	mu          sync.RWMutex
	activeFiles map[FileId]*SharedFileInfo
	byIdentifier map[string]FileId

	allocator *IdAllocator
	mmaps     *MemoryMapManager
	events    *EventBus
	auth      AuthProvider
	metrics   *metrics.ManagerMetrics
	lifecycle *LifecycleManager

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New constructs a SharedFileManager rooted at cfg.FilesDirectory.
func New(cfg Config, auth AuthProvider) (*SharedFileManager, error) {
	mmaps, err := NewMemoryMapManager(cfg.FilesDirectory)
	if err != nil {
		return nil, err
	}

	m := &SharedFileManager{
		cfg:          cfg,
		activeFiles:  make(map[FileId]*SharedFileInfo),
		byIdentifier: make(map[string]FileId),
		allocator:    NewIdAllocator(),
		mmaps:        mmaps,
		events:       NewEventBus(),
		auth:         auth,
		metrics:      metrics.NewManagerMetrics(),
	}
	m.lifecycle = NewLifecycleManager(m)
	return m, nil
}

// Subscribe exposes the Manager's lossy event bus to observers.
func (m *SharedFileManager) Subscribe() <-chan ManagerEvent { return m.events.Subscribe() }

// Start launches the background cleanup/performance-metrics scheduler.
func (m *SharedFileManager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.cleanupLoop(ctx)

	m.wg.Add(1)
	go m.lifecycleLoop(ctx)

	if m.cfg.EnablePerformanceTicks {
		m.wg.Add(1)
		go m.performanceMetricsLoop(ctx)
	}

	m.events.Publish(ManagerEvent{Type: EventManagerStarted})
}

// RequestFile resolves a create/connect request against the active-files
// registry according to req.Policy.
func (m *SharedFileManager) RequestFile(ctx context.Context, req SharedFileRequest, token string) (*SharedFileResponse, error) {
	spanCtx, span := telemetry.StartSpan(ctx, telemetry.SpanRequestFile, trace.WithAttributes(telemetry.Identifier(req.Identifier)))
	defer span.End()

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, errs.NewInvalidOperation("request_file", "manager is shut down")
	}

	if err := ValidateToken(spanCtx, m.auth, token); err != nil {
		m.events.Publish(ManagerEvent{Type: EventAuthenticationAttempt, Succeeded: false, Identifier: req.Identifier})
		telemetry.RecordError(spanCtx, err)
		return nil, err
	}
	m.events.Publish(ManagerEvent{Type: EventAuthenticationAttempt, Succeeded: true, Identifier: req.Identifier})

	if req.Identifier == "" {
		return nil, errs.NewInvalidIdentifier("request_file", req.Identifier)
	}
	if req.MaxSizeBytes < 0 {
		return nil, errs.NewInvalidOperation("request_file", "max_size_bytes must be non-negative")
	}

	m.mu.Lock()
	existingID, exists := m.byIdentifier[req.Identifier]
	m.mu.Unlock()

	switch req.Policy {
	case MustExist, ConnectOnly:
		if !exists {
			return nil, errs.NewFileNotFound("request_file", req.Identifier)
		}
		return m.connect(spanCtx, existingID)
	case CreateOnly:
		if exists {
			return nil, errs.NewFileAlreadyExists("request_file", req.Identifier)
		}
		return m.create(spanCtx, req)
	default: // CreateOrConnect
		if exists {
			return m.connect(spanCtx, existingID)
		}
		return m.create(spanCtx, req)
	}
}

func (m *SharedFileManager) connect(ctx context.Context, id FileId) (*SharedFileResponse, error) {
	m.mu.RLock()
	info, ok := m.activeFiles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NewInternalError("request_file.connect", "dangling identifier index")
	}

	m.lifecycle.touch(id)

	info.Lock()
	info.Metadata.ConnectionCount++
	info.Metadata.LastAccessed = time.Now()
	resp := &SharedFileResponse{
		FileId:      info.FileId,
		Path:        info.Path,
		Metadata:    info.Metadata,
		Permissions: info.Metadata.Request.Permissions,
	}
	info.Unlock()

	m.events.Publish(ManagerEvent{Type: EventFileConnected, FileId: id, Identifier: info.Metadata.Request.Identifier, Path: info.Path})
	logger.InfoCtx(ctx, "file connected", logger.FileID(uint64(id)), logger.Identifier(resp.Metadata.Request.Identifier))

	if m.metrics != nil {
		m.metrics.RequestsTotal.WithLabelValues("connected").Inc()
		m.metrics.ConnectionsTotal.Inc()
	}

	return resp, nil
}

func (m *SharedFileManager) create(ctx context.Context, req SharedFileRequest) (*SharedFileResponse, error) {
	if m.cfg.MaxFiles > 0 {
		m.mu.RLock()
		count := len(m.activeFiles)
		m.mu.RUnlock()
		if count >= m.cfg.MaxFiles {
			return nil, errs.New(errs.KindResourceExhausted, "request_file.create", "max_files limit reached")
		}
	}
	if m.cfg.MaxFileSize > 0 && req.MaxSizeBytes > m.cfg.MaxFileSize {
		return nil, errs.New(errs.KindFileSizeExceeded, "request_file.create", "max_size_bytes exceeds max_file_size")
	}

	id := m.allocator.Allocate(req.Identifier)

	size := req.MaxSizeBytes
	if size == 0 {
		size = 4096
	}

	var mf *MappedFile
	var path string
	var err error
	if req.FilePath != "" {
		mf, path, err = m.mmaps.CreateWithName(id, req.FilePath, size)
	} else {
		mf, path, err = m.mmaps.Create(id, size)
	}
	if err != nil {
		// The id was never announced in active_files, so it is not
		// returned to the free list; it is simply never allocated
		// elsewhere since it wasn't released.
		return nil, err
	}

	if len(req.InitialData) > 0 {
		if werr := mf.WriteAt(0, req.InitialData); werr != nil {
			mf.Close()
			return nil, werr
		}
	}

	now := time.Now()
	info := &SharedFileInfo{
		FileId: id,
		Path:   path,
		File:   mf,
		Metadata: FileMetadata{
			Request:         req,
			CreatedAt:       now,
			LastModified:    now,
			LastAccessed:    now,
			ConnectionCount: 1,
			SizeBytes:       size,
			Status:          StatusActive,
			Version:         1,
		},
	}

	m.mu.Lock()
	m.activeFiles[id] = info
	m.byIdentifier[req.Identifier] = id
	m.mu.Unlock()

	ttlSeconds := req.TTLSeconds
	if ttlSeconds == 0 {
		ttlSeconds = m.cfg.DefaultTTLSeconds
	}
	m.lifecycle.track(id, ttlSeconds, now)

	m.events.Publish(ManagerEvent{Type: EventFileCreated, FileId: id, Identifier: req.Identifier, Path: path, Size: size})
	logger.InfoCtx(ctx, "file created", logger.FileID(uint64(id)), logger.Identifier(req.Identifier))

	if m.metrics != nil {
		m.mu.RLock()
		m.metrics.FilesActive.Set(float64(len(m.activeFiles)))
		m.mu.RUnlock()
		m.metrics.RequestsTotal.WithLabelValues("created").Inc()
	}

	return &SharedFileResponse{
		FileId:      id,
		Path:        path,
		Metadata:    info.Metadata,
		Permissions: req.Permissions,
	}, nil
}

// DisconnectFile decrements id's connection count, tearing the file down
// once the last client disconnects.
func (m *SharedFileManager) DisconnectFile(ctx context.Context, id FileId) error {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanDisconnectFile, trace.WithAttributes(telemetry.FileID(uint64(id))))
	defer span.End()

	m.mu.RLock()
	info, ok := m.activeFiles[id]
	m.mu.RUnlock()
	if !ok {
		return errs.NewFileNotFound("disconnect_file", "")
	}

	info.Lock()
	if info.Metadata.ConnectionCount <= 0 {
		info.Unlock()
		return errs.NewInternalError("disconnect_file", "double disconnect")
	}
	info.Metadata.ConnectionCount--
	becameInactive := info.Metadata.ConnectionCount == 0
	if becameInactive {
		info.Metadata.Status = StatusInactive
	}
	identifier := info.Metadata.Request.Identifier
	path := info.Path
	info.Unlock()

	m.events.Publish(ManagerEvent{Type: EventFileDisconnected, FileId: id, Identifier: identifier, Path: path})

	if becameInactive {
		if err := info.File.Close(); err != nil {
			logger.WarnCtx(ctx, "failed closing mapped file on disconnect", logger.Err(err), logger.FileID(uint64(id)))
		}
		if err := m.mmaps.DeletePath(path); err != nil {
			logger.WarnCtx(ctx, "failed deleting on-disk file on disconnect", logger.Err(err), logger.FileID(uint64(id)))
		}
		m.mu.Lock()
		delete(m.activeFiles, id)
		delete(m.byIdentifier, identifier)
		m.mu.Unlock()
		m.lifecycle.forget(id)
		m.allocator.Release(id, ReleaseManualDeletion, info.Metadata.SizeBytes)
	}

	return nil
}

// Lookup returns the current SharedFileInfo snapshot for id, or false if
// not active. The returned pointer is the live record; callers must use
// its Lock/RLock methods rather than copying fields concurrently.
func (m *SharedFileManager) Lookup(id FileId) (*SharedFileInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.activeFiles[id]
	return info, ok
}

func (m *SharedFileManager) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCleanupTick(ctx)
		}
	}
}

func (m *SharedFileManager) runCleanupTick(ctx context.Context) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanCleanupTick)
	defer span.End()

	now := time.Now()

	m.mu.RLock()
	var toRemove []FileId
	for id, info := range m.activeFiles {
		info.RLock()
		status := info.Metadata.Status
		age := now.Sub(info.Metadata.LastModified)
		connCount := info.Metadata.ConnectionCount
		info.RUnlock()

		switch {
		case status == StatusError:
			toRemove = append(toRemove, id)
		case status == StatusInactive && age > 5*time.Minute:
			toRemove = append(toRemove, id)
		case status == StatusActive && connCount == 0 && age > 10*time.Minute:
			toRemove = append(toRemove, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range toRemove {
		m.removeFile(ctx, id, ReleaseInactivityCleanup)
	}
}

func (m *SharedFileManager) removeFile(ctx context.Context, id FileId, reason ReleaseReason) {
	m.mu.Lock()
	info, ok := m.activeFiles[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.activeFiles, id)
	delete(m.byIdentifier, info.Metadata.Request.Identifier)
	m.mu.Unlock()

	if info.File != nil {
		_ = info.File.Close()
	}
	_ = m.mmaps.DeletePath(info.Path)
	m.lifecycle.forget(id)
	m.allocator.Release(id, reason, info.Metadata.SizeBytes)

	m.events.Publish(ManagerEvent{Type: EventFileRemoved, FileId: id, Identifier: info.Metadata.Request.Identifier, Reason: RemovalAutomatic})
	logger.InfoCtx(ctx, "file removed", logger.FileID(uint64(id)), logger.Identifier(info.Metadata.Request.Identifier))

	if m.metrics != nil {
		m.metrics.ExpirationsTotal.WithLabelValues(reason.String()).Inc()
		m.mu.RLock()
		m.metrics.FilesActive.Set(float64(len(m.activeFiles)))
		m.mu.RUnlock()
	}
}

func (m *SharedFileManager) performanceMetricsLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PerformanceMetricsTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			count := len(m.activeFiles)
			m.mu.RUnlock()
			m.events.Publish(ManagerEvent{Type: EventPerformanceAlert, MetricName: "active_files", MetricValue: float64(count)})
		}
	}
}

// Shutdown broadcasts shutdown-requested, stops accepting requests,
// flushes active maps, clears active_files, and emits ManagerShutdown.
func (m *SharedFileManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	files := make([]*SharedFileInfo, 0, len(m.activeFiles))
	for _, info := range m.activeFiles {
		files = append(files, info)
	}
	m.mu.Unlock()

	m.wg.Wait()

	for _, info := range files {
		if info.File != nil {
			if err := info.File.Flush(); err != nil {
				logger.WarnCtx(ctx, "flush failed during shutdown", logger.Err(err), logger.FileID(uint64(info.FileId)))
			}
			_ = info.File.Close()
		}
	}

	m.mu.Lock()
	m.activeFiles = make(map[FileId]*SharedFileInfo)
	m.byIdentifier = make(map[string]FileId)
	m.mu.Unlock()

	m.events.Publish(ManagerEvent{Type: EventManagerShutdown, Graceful: true})
	return nil
}
