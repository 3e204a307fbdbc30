package manager

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/commyio/commy/pkg/errs"
)

// MappedFile is one memory-mapped file: create/open/read/write/resize/flush
// with file-size and offset bounds checks.
//
// Invariant: the map's length equals Size and both equal the OS-reported
// file length at the last successful flush. Resize is permitted only when
// CreatedByUs.
type MappedFile struct {
	mu sync.RWMutex

	path        string
	file        *os.File
	data        []byte // mmap'd region, PROT_READ|PROT_WRITE, MAP_SHARED
	size        int64
	createdByUs bool
}

// CreateMappedFile creates (or truncates) the file at path to size bytes,
// creating missing parent directories, zeros the region, maps it, and
// flushes before returning.
func CreateMappedFile(path string, size int64) (*MappedFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errs.NewIoError("mapped_file.create", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errs.NewIoError("mapped_file.create", path, err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errs.NewIoError("mapped_file.create", path, err)
	}

	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, errs.NewMemoryMappingError("mapped_file.create", err)
	}

	for i := range data {
		data[i] = 0
	}

	mf := &MappedFile{
		path:        path,
		file:        f,
		data:        data,
		size:        size,
		createdByUs: true,
	}

	if err := mf.flushLocked(); err != nil {
		mf.closeLocked()
		return nil, err
	}

	return mf, nil
}

// OpenMappedFile opens an existing file and maps its entire length read-write.
func OpenMappedFile(path string) (*MappedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.NewFileNotFound("mapped_file.open", path)
	}

	if info.Size() == 0 {
		return nil, errs.NewIoError("mapped_file.open", path, errEmptyFile)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errs.NewIoError("mapped_file.open", path, err)
	}

	data, err := mmapFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, errs.NewMemoryMappingError("mapped_file.open", err)
	}

	return &MappedFile{
		path:        path,
		file:        f,
		data:        data,
		size:        info.Size(),
		createdByUs: false,
	}, nil
}

var errEmptyFile = fileEmptyError{}

type fileEmptyError struct{}

func (fileEmptyError) Error() string { return "File is empty" }

func mmapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Path returns the backing file's absolute path.
func (m *MappedFile) Path() string { return m.path }

// Size returns the current mapped size in bytes.
func (m *MappedFile) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// CreatedByUs reports whether this process created the backing file.
func (m *MappedFile) CreatedByUs() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.createdByUs
}

// WriteAt writes data at offset. Fails with InvalidOperation if
// offset+len(data) exceeds the mapped size. Does not auto-flush.
func (m *MappedFile) WriteAt(offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset < 0 || offset+int64(len(data)) > m.size {
		return errs.NewInvalidOperation("mapped_file.write_at", "offset+len exceeds mapped size")
	}

	copy(m.data[offset:offset+int64(len(data))], data)
	return nil
}

// ReadAt returns a fresh copy of length bytes starting at offset. Fails
// with InvalidOperation under the same bounds rule as WriteAt.
func (m *MappedFile) ReadAt(offset int64, length int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if offset < 0 || offset+length > m.size {
		return nil, errs.NewInvalidOperation("mapped_file.read_at", "offset+len exceeds mapped size")
	}

	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

// Flush msyncs the map then fsyncs the backing file.
func (m *MappedFile) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *MappedFile) flushLocked() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return errs.NewIoError("mapped_file.flush", m.path, err)
	}
	if err := m.file.Sync(); err != nil {
		return errs.NewIoError("mapped_file.flush", m.path, err)
	}
	return nil
}

// Resize flushes, truncates the backing file, and re-establishes the map
// at the new size, zero-filling any extension. Fails with PermissionDenied
// when the file was not created by this process.
func (m *MappedFile) Resize(newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.createdByUs {
		return errs.NewPermissionDenied("mapped_file.resize", m.path)
	}

	if err := m.flushLocked(); err != nil {
		return err
	}

	oldSize := m.size

	if err := unix.Munmap(m.data); err != nil {
		return errs.NewMemoryMappingError("mapped_file.resize", err)
	}

	if err := m.file.Truncate(newSize); err != nil {
		return errs.NewIoError("mapped_file.resize", m.path, err)
	}

	data, err := mmapFile(m.file, newSize)
	if err != nil {
		return errs.NewMemoryMappingError("mapped_file.resize", err)
	}

	if newSize > oldSize {
		for i := oldSize; i < newSize; i++ {
			data[i] = 0
		}
	}

	m.data = data
	m.size = newSize
	return nil
}

// Stats is the OS-reported size and timestamps for the backing file.
type Stats struct {
	Size         int64
	ModifiedTime time.Time
	AccessTime   time.Time
}

// Stats returns the OS-reported size and modification time; AccessTime is
// left zero.
func (m *MappedFile) Stats() (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, err := m.file.Stat()
	if err != nil {
		return Stats{}, errs.NewIoError("mapped_file.stats", m.path, err)
	}

	return Stats{
		Size:         info.Size(),
		ModifiedTime: info.ModTime(),
	}, nil
}

// Close unmaps the region and closes the backing file handle.
func (m *MappedFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *MappedFile) closeLocked() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if m.file != nil {
		if cerr := m.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		m.file = nil
	}
	return err
}
