package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdAllocatorMonotonicCounter(t *testing.T) {
	a := NewIdAllocator()

	id1 := a.Allocate("x")
	id2 := a.Allocate("y")
	id3 := a.Allocate("z")

	assert.EqualValues(t, 1, id1)
	assert.EqualValues(t, 2, id2)
	assert.EqualValues(t, 3, id3)
}

// Allocate 1,2,3; release 2; next allocate returns 2, then 4.
func TestIdAllocatorReuseFromFreeList(t *testing.T) {
	a := NewIdAllocator()

	a.Allocate("1")
	id2 := a.Allocate("2")
	a.Allocate("3")

	a.Release(id2, ReleaseManualDeletion, 1024)

	reused := a.Allocate("2-again")
	assert.Equal(t, id2, reused)

	next := a.Allocate("4")
	assert.EqualValues(t, 4, next)
}

func TestIdAllocatorFreeListBoundedCapacity(t *testing.T) {
	a := NewIdAllocator()
	a.freeListCap = 2

	id1 := a.Allocate("1")
	id2 := a.Allocate("2")
	id3 := a.Allocate("3")

	a.Release(id1, ReleaseManualDeletion, 0)
	a.Release(id2, ReleaseManualDeletion, 0)
	a.Release(id3, ReleaseManualDeletion, 0)

	assert.Equal(t, 2, a.FreeListLen())

	// id1 was evicted as the oldest; id2 should be dispensed first.
	next := a.Allocate("next")
	assert.Equal(t, id2, next)
}

func TestIdAllocatorDistributedRange(t *testing.T) {
	a := NewIdAllocator()
	a.AddRange(IdRange{Start: 100, End: 102})

	assert.EqualValues(t, 100, a.Allocate("a"))
	assert.EqualValues(t, 101, a.Allocate("b"))
	assert.EqualValues(t, 102, a.Allocate("c"))

	// Range exhausted, falls back to the monotonic counter.
	assert.EqualValues(t, 1, a.Allocate("d"))
}
