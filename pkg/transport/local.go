package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/commyio/commy/pkg/errs"
	"github.com/commyio/commy/pkg/manager"
)

// fileHolder pairs a MappedFile with its bookkeeping, keyed by resolved
// path.
type fileHolder struct {
	mf   *manager.MappedFile
	size int64
}

// LocalTransport dispatches SharedFileOperation variants against its own
// layer of MappedFile holders, with per-request path resolution
// to prevent cross-request filename collisions.
type LocalTransport struct {
	mu      sync.Mutex
	holders map[string]*fileHolder
	baseDir string

	bytesWritten int64
	bytesRead    int64
}

// NewLocalTransport roots path resolution at baseDir.
func NewLocalTransport(baseDir string) *LocalTransport {
	return &LocalTransport{
		holders: make(map[string]*fileHolder),
		baseDir: baseDir,
	}
}

// ResolvePath resolves op's target path: an absolute path is used
// verbatim; a relative path is joined as
// "{base_dir}/{request_name}_{relative_path}".
func (t *LocalTransport) ResolvePath(op Operation) string {
	if filepath.IsAbs(op.Path) {
		return op.Path
	}
	name := fmt.Sprintf("%s_%s", op.RequestName, op.Path)
	return filepath.Join(t.baseDir, name)
}

func (t *LocalTransport) Kind() Kind { return KindLocal }

// Execute dispatches op. Append/Copy/Move/List/SetPermissions/Resize
// return an explicit NotSupported rather than silently succeeding.
func (t *LocalTransport) Execute(op Operation) (OperationResult, error) {
	path := t.ResolvePath(op)

	switch op.Kind {
	case OpWrite:
		return t.write(path, op)
	case OpRead:
		return t.read(path, op)
	case OpCreate:
		return t.create(path, op)
	case OpDelete:
		return t.delete(path)
	case OpGetInfo:
		return t.getInfo(path)
	default:
		return OperationResult{}, errs.NewNotSupported("local_transport.execute")
	}
}

func (t *LocalTransport) write(path string, op Operation) (OperationResult, error) {
	h, err := t.ensureHolder(path, int64(len(op.Data))+op.Offset)
	if err != nil {
		return OperationResult{}, err
	}

	if err := h.mf.WriteAt(op.Offset, op.Data); err != nil {
		return OperationResult{}, err
	}

	t.mu.Lock()
	t.bytesWritten += int64(len(op.Data))
	t.mu.Unlock()

	return OperationResult{BytesMoved: int64(len(op.Data))}, nil
}

func (t *LocalTransport) read(path string, op Operation) (OperationResult, error) {
	t.mu.Lock()
	h, ok := t.holders[path]
	t.mu.Unlock()
	if !ok {
		return OperationResult{}, errs.New(errs.KindInvalidOperation, "local_transport.read", "File not found: "+path)
	}

	data, err := h.mf.ReadAt(op.Offset, op.Length)
	if err != nil {
		return OperationResult{}, err
	}

	t.mu.Lock()
	t.bytesRead += int64(len(data))
	t.mu.Unlock()

	return OperationResult{Data: data, BytesMoved: int64(len(data))}, nil
}

func (t *LocalTransport) create(path string, op Operation) (OperationResult, error) {
	t.mu.Lock()
	_, exists := t.holders[path]
	t.mu.Unlock()

	switch op.Policy {
	case PolicyNeverCreate:
		if !exists {
			return OperationResult{}, errs.NewInvalidOperation("local_transport.create", "file absent and policy is NeverCreate")
		}
	case PolicyCreateIfNotExists:
		if exists {
			return OperationResult{}, errs.NewFileAlreadyExists("local_transport.create", path)
		}
	case PolicyCreate:
		if exists {
			t.mu.Lock()
			delete(t.holders, path)
			t.mu.Unlock()
			_ = os.Remove(path)
		}
	case PolicyCreateIfAuthorized:
		// Authorization was already checked upstream.
	}

	mf, err := manager.CreateMappedFile(path, maxInt64(op.Size, 4096))
	if err != nil {
		return OperationResult{}, err
	}

	if len(op.InitialData) > 0 {
		if err := mf.WriteAt(0, op.InitialData); err != nil {
			mf.Close()
			return OperationResult{}, err
		}
	}

	t.mu.Lock()
	t.holders[path] = &fileHolder{mf: mf, size: op.Size}
	t.mu.Unlock()

	return OperationResult{}, nil
}

func (t *LocalTransport) delete(path string) (OperationResult, error) {
	t.mu.Lock()
	h, ok := t.holders[path]
	delete(t.holders, path)
	t.mu.Unlock()

	if ok {
		_ = h.mf.Close()
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return OperationResult{}, errs.NewIoError("local_transport.delete", path, err)
	}
	return OperationResult{}, nil
}

func (t *LocalTransport) getInfo(path string) (OperationResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return OperationResult{}, errs.NewIoError("local_transport.get_info", path, err)
	}
	return OperationResult{InfoSize: info.Size(), InfoModTime: info.ModTime()}, nil
}

func (t *LocalTransport) ensureHolder(path string, minSize int64) (*fileHolder, error) {
	t.mu.Lock()
	h, ok := t.holders[path]
	t.mu.Unlock()
	if ok {
		if h.size < minSize {
			if err := h.mf.Resize(minSize); err != nil && h.mf.CreatedByUs() {
				return nil, err
			}
			h.size = minSize
		}
		return h, nil
	}

	mf, err := manager.CreateMappedFile(path, minSize)
	if err != nil {
		return nil, err
	}

	h = &fileHolder{mf: mf, size: minSize}
	t.mu.Lock()
	t.holders[path] = h
	t.mu.Unlock()
	return h, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// LocalEstimatedLatencyUs and LocalEstimatedThroughputMbps are the
// Router's fixed scoring estimates for local execution; they may be
// refined with live measurements over time.
const (
	LocalEstimatedLatencyUs      = 50
	LocalEstimatedThroughputMbps = 1000
)
