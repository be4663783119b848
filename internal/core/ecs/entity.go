package ecs

import (
	"fmt"
	"sync"
)

// GUID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on release to invalidate stale refs.
// Index 0 is reserved so the zero GUID never names a live entity.
type GUID uint64

func NewGUID(index uint32, generation uint32) GUID {
	return GUID(uint64(generation)<<32 | uint64(index))
}

func (id GUID) Index() uint32      { return uint32(id) }
func (id GUID) Generation() uint32 { return uint32(id >> 32) }
func (id GUID) IsZero() bool       { return id == 0 }

func (id GUID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// Allocator hands out generational GUIDs with a free list.
// Shared by every partition of a process, so access is serialized.
type Allocator struct {
	mu          sync.Mutex
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
	live        int
}

func NewAllocator() *Allocator {
	return &Allocator{
		generations: make([]uint32, 1, 1024),
		freeList:    make([]uint32, 0, 256),
		nextIndex:   1,
	}
}

func (a *Allocator) Create() GUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live++
	if len(a.freeList) > 0 {
		idx := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		return NewGUID(idx, a.generations[idx])
	}
	idx := a.nextIndex
	a.nextIndex++
	if int(idx) >= len(a.generations) {
		a.generations = append(a.generations, 1)
	}
	return NewGUID(idx, a.generations[idx])
}

func (a *Allocator) Alive(id GUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := id.Index()
	if idx == 0 || idx >= a.nextIndex {
		return false
	}
	return a.generations[idx] == id.Generation()
}

// Release invalidates id. Releasing a stale id reports false and changes nothing.
func (a *Allocator) Release(id GUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := id.Index()
	if idx == 0 || idx >= a.nextIndex {
		return false
	}
	if a.generations[idx] != id.Generation() {
		return false // already released (stale reference)
	}
	a.generations[idx]++
	if a.generations[idx] == 0 {
		a.generations[idx] = 1
	}
	a.freeList = append(a.freeList, idx)
	a.live--
	return true
}

// Live returns the number of GUIDs handed out and not yet released.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
