package manager

import (
	"sync"
)

const defaultFreeListCapacity = 1000

// ReleaseRecord is retained for diagnostics when a FileId is released.
type ReleaseRecord struct {
	ID           FileId
	Reason       ReleaseReason
	ErrorMessage string // populated when Reason == ReleaseError
	OriginalSize int64
}

// IdRange is a disjoint [Start, End] range assigned to this allocator by a
// coordinator in distributed mode.
type IdRange struct {
	Start FileId
	End   FileId
}

// IdAllocator hands out unique FileIds with reuse from a bounded free
// list, falling back to a monotonic counter. A FileId becomes reusable
// only after Release.
type IdAllocator struct {
	mu sync.Mutex

	freeList    []FileId // FIFO: oldest released popped first
	freeListCap int
	counter     FileId // next value to dispense once the free list is empty

	// Distributed mode (optional): ranges assigned by a coordinator,
	// dispensed from before requesting more. The wire protocol for
	// requesting additional ranges is not implemented here.
	ranges []IdRange

	lastReleases []ReleaseRecord // bounded diagnostic trail, same cap as freeList
}

// NewIdAllocator creates an allocator with the default free-list capacity
// and a monotonic counter starting at 1.
func NewIdAllocator() *IdAllocator {
	return &IdAllocator{
		freeListCap: defaultFreeListCapacity,
		counter:     1,
	}
}

// Allocate returns a unique FileId: the oldest entry in the free list if
// non-empty, else the next unused id of an added IdRange, else the next
// value of the monotonic counter.
func (a *IdAllocator) Allocate(identifier string) FileId {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.freeList) > 0 {
		id := a.freeList[0]
		a.freeList = a.freeList[1:]
		return id
	}

	if len(a.ranges) > 0 {
		r := &a.ranges[0]
		id := r.Start
		if r.Start == r.End {
			a.ranges = a.ranges[1:]
		} else {
			r.Start++
		}
		return id
	}

	id := a.counter
	a.counter++
	return id
}

// Release returns id to the free list, evicting the oldest entry if the
// list is already at capacity.
func (a *IdAllocator) Release(id FileId, reason ReleaseReason, originalSize int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.freeList) >= a.freeListCap {
		a.freeList = a.freeList[1:]
	}
	a.freeList = append(a.freeList, id)

	record := ReleaseRecord{ID: id, Reason: reason, OriginalSize: originalSize}
	if len(a.lastReleases) >= a.freeListCap {
		a.lastReleases = a.lastReleases[1:]
	}
	a.lastReleases = append(a.lastReleases, record)
}

// ReleaseWithError is Release for the ReleaseError reason, retaining the
// error message for diagnostics.
func (a *IdAllocator) ReleaseWithError(id FileId, originalSize int64, errMsg string) {
	a.mu.Lock()
	if len(a.freeList) >= a.freeListCap {
		a.freeList = a.freeList[1:]
	}
	a.freeList = append(a.freeList, id)

	record := ReleaseRecord{ID: id, Reason: ReleaseError, ErrorMessage: errMsg, OriginalSize: originalSize}
	if len(a.lastReleases) >= a.freeListCap {
		a.lastReleases = a.lastReleases[1:]
	}
	a.lastReleases = append(a.lastReleases, record)
	a.mu.Unlock()
}

// AddRange registers a disjoint id range assigned by a coordinator for
// distributed-mode allocation.
func (a *IdAllocator) AddRange(r IdRange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ranges = append(a.ranges, r)
}

// FreeListLen reports the current free-list occupancy, mostly for tests
// and metrics.
func (a *IdAllocator) FreeListLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.freeList)
}
