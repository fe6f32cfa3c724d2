// Package idalloc implements the PID/TID RAII allocators (spec.md §3, §8):
// a monotonically increasing cursor backed by a free list of released ids,
// so that releasing and reallocating an id is O(1) and ids are reused
// before the cursor ever advances again.
package idalloc

import "rvkernel/sspinlock"

// Allocator hands out small non-negative integer ids, reusing released ones
// before minting new ones from the cursor. Zero-value Allocator is usable
// (cursor starts at 0).
type Allocator struct {
	mu     sspinlock.Lock_t
	cursor int
	free   []int
}

// Handle is an RAII-style id: Release returns the id to its allocator's
// free list. Callers must not use the numeric id after releasing it.
type Handle struct {
	id  int
	a   *Allocator
	rel bool
}

// ID returns the underlying integer id.
func (h *Handle) ID() int { return h.id }

// Release returns the id to the allocator's free list. Calling Release
// more than once on the same handle is a programming error (spec.md's
// panic-on-invariant-violation convention, mirroring FrameTracker drop).
func (h *Handle) Release() {
	if h.rel {
		panic("idalloc: double release")
	}
	h.rel = true
	h.a.mu.Lock()
	h.a.free = append(h.a.free, h.id)
	h.a.mu.Unlock()
}

// Alloc returns a fresh Handle: a reused id from the free list if one is
// available, otherwise the next id off the cursor.
func (a *Allocator) Alloc() *Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return &Handle{id: id, a: a}
	}
	id := a.cursor
	a.cursor++
	return &Handle{id: id, a: a}
}

// Len reports how many ids are currently allocated (outstanding, not
// released) — the cursor minus everything sitting in the free list.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor - len(a.free)
}
