package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/commyio/commy/pkg/errs"
)

const defaultFileNamePattern = "commy_file_%d.mmap"

// MemoryMapManager maintains a base directory of memory-mapped files keyed
// by FileId, under a deterministic default naming policy, plus a registry
// of caller-chosen custom filenames that list() does not enumerate.
type MemoryMapManager struct {
	mu         sync.Mutex
	baseDir    string
	customNames map[FileId]string // id -> relative filename, for delete/exists bookkeeping
}

// NewMemoryMapManager creates a manager rooted at baseDir, creating the
// directory if necessary.
func NewMemoryMapManager(baseDir string) (*MemoryMapManager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errs.NewIoError("memory_map_manager.new", baseDir, err)
	}
	return &MemoryMapManager{
		baseDir:     baseDir,
		customNames: make(map[FileId]string),
	}, nil
}

func defaultFileName(id FileId) string {
	return fmt.Sprintf(defaultFileNamePattern, uint64(id))
}

// Create creates a memory-mapped file under the default name for id.
func (m *MemoryMapManager) Create(id FileId, size int64) (*MappedFile, string, error) {
	return m.createAt(id, defaultFileName(id), size, false)
}

// CreateWithName creates a memory-mapped file at a caller-provided relative
// filename, joined with the base directory.
func (m *MemoryMapManager) CreateWithName(id FileId, relativeName string, size int64) (*MappedFile, string, error) {
	return m.createAt(id, relativeName, size, true)
}

func (m *MemoryMapManager) createAt(id FileId, relativeName string, size int64, custom bool) (*MappedFile, string, error) {
	path := filepath.Join(m.baseDir, relativeName)

	mf, err := CreateMappedFile(path, size)
	if err != nil {
		return nil, "", err
	}

	if custom {
		m.mu.Lock()
		m.customNames[id] = relativeName
		m.mu.Unlock()
	}

	return mf, path, nil
}

// Open opens the memory-mapped file registered for id, preferring a custom
// name if one was recorded, else the default name.
func (m *MemoryMapManager) Open(id FileId) (*MappedFile, string, error) {
	path := m.pathFor(id)
	mf, err := OpenMappedFile(path)
	if err != nil {
		return nil, "", err
	}
	return mf, path, nil
}

// Exists reports whether the backing file for id is present on disk.
func (m *MemoryMapManager) Exists(id FileId) bool {
	_, err := os.Stat(m.pathFor(id))
	return err == nil
}

// Delete removes the backing file for id from disk and from the custom
// name registry.
func (m *MemoryMapManager) Delete(id FileId) error {
	path := m.pathFor(id)

	m.mu.Lock()
	delete(m.customNames, id)
	m.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.NewIoError("memory_map_manager.delete", path, err)
	}
	return nil
}

// DeletePath removes an explicit path from disk, used when the Manager
// falls back to a recorded SharedFileInfo.Path rather than default naming.
func (m *MemoryMapManager) DeletePath(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.NewIoError("memory_map_manager.delete", path, err)
	}
	return nil
}

func (m *MemoryMapManager) pathFor(id FileId) string {
	m.mu.Lock()
	name, ok := m.customNames[id]
	m.mu.Unlock()

	if ok {
		return filepath.Join(m.baseDir, name)
	}
	return filepath.Join(m.baseDir, defaultFileName(id))
}

// List enumerates files matching the default naming pattern and returns
// parsed FileIds sorted ascending. Custom-named files are invisible to
// List by design; the Manager tracks them via active_files instead.
func (m *MemoryMapManager) List() ([]FileId, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, errs.NewIoError("memory_map_manager.list", m.baseDir, err)
	}

	var ids []FileId
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseDefaultFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseDefaultFileName(name string) (FileId, bool) {
	const prefix, suffix = "commy_file_", ".mmap"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	numStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return FileId(n), true
}

// CleanupOrphaned removes default-named files whose FileId is not present
// in activeIDs, returning the set of removed ids.
func (m *MemoryMapManager) CleanupOrphaned(activeIDs map[FileId]struct{}) ([]FileId, error) {
	ids, err := m.List()
	if err != nil {
		return nil, err
	}

	var removed []FileId
	for _, id := range ids {
		if _, active := activeIDs[id]; active {
			continue
		}
		if err := m.Delete(id); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}
