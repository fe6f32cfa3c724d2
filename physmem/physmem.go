// Package physmem implements the physical frame allocator (spec.md §4.1)
// and the refcounted frame ownership used by copy-on-write fork (spec.md
// §3, §4.3, §5).
//
// The teacher's `mem.Physmem_t` treats physical memory as directly
// reachable Go memory because biscuit's runtime *is* the kernel's own
// memory map (`Dmap` is a pointer cast). A hosted Go program standing in
// for freestanding supervisor-mode code has no equivalent bare-metal
// memory map to cast into, so Arena plays the same role over an explicit
// `[]byte` arena: Frame is an index into it, and Bytes gives the
// teacher-style direct-mapped view used by both the page table walker and
// the COW fault handler.
package physmem

import (
	"bytes"
	"compress/gzip"
	"fmt"

	"github.com/google/pprof/profile"

	"rvkernel/addr"
	"rvkernel/sspinlock"
)

// Arena owns a contiguous run of simulated physical memory and the free
// list/cursor allocator over it (spec.md §4.1: "a free list (stack) of
// returned frames plus a cursor over an initial contiguous range").
type Arena struct {
	lock sspinlock.Lock_t

	mem []byte

	base  addr.Frame // first allocatable frame (kernel_end rounded up)
	limit addr.Frame // one past the last allocatable frame (mem_limit)

	free      []addr.Frame // stack of returned frames
	cursor    addr.Frame   // next never-yet-allocated frame
	allocated map[addr.Frame]bool
	refcount  map[addr.Frame]*int32
}

// NewArena reserves size bytes of simulated physical memory starting at
// frame base. size must be a whole number of pages.
func NewArena(base addr.Frame, size uint64) *Arena {
	if size%addr.PageSize != 0 {
		panic("physmem: arena size must be page-aligned")
	}
	npages := size / addr.PageSize
	return &Arena{
		mem:       make([]byte, size),
		base:      base,
		limit:     base.Add64(npages),
		cursor:    base,
		allocated: make(map[addr.Frame]bool),
		refcount:  make(map[addr.Frame]*int32),
	}
}

// Bytes returns the direct-mapped byte slice backing frame f. The slice
// aliases the arena's memory; callers that need a stable copy must copy it
// themselves.
func (a *Arena) Bytes(f addr.Frame) []byte {
	idx := a.frameIndex(f)
	return a.mem[idx*addr.PageSize : (idx+1)*addr.PageSize]
}

func (a *Arena) frameIndex(f addr.Frame) uint64 {
	if f < a.base || f >= a.limit {
		panic(fmt.Sprintf("physmem: frame %d out of arena range [%d,%d)", f, a.base, a.limit))
	}
	return uint64(f - a.base)
}

// Allocate pops a frame from the free list, falling back to advancing the
// cursor over the untouched range. It returns false if physical memory is
// exhausted.
func (a *Arena) Allocate() (addr.Frame, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.allocateLocked()
}

func (a *Arena) allocateLocked() (addr.Frame, bool) {
	if n := len(a.free); n > 0 {
		f := a.free[n-1]
		a.free = a.free[:n-1]
		a.allocated[f] = true
		return f, true
	}
	if a.cursor >= a.limit {
		return 0, false
	}
	f := a.cursor
	a.cursor = a.cursor.Add64(1)
	a.allocated[f] = true
	return f, true
}

// Deallocate returns f to the free list. Double-freeing a frame, or
// freeing one that was never allocated, is a programming error and panics
// (spec.md §4.1).
func (a *Arena) Deallocate(f addr.Frame) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if f < a.base || f >= a.cursor {
		panic(fmt.Sprintf("physmem: deallocate of frame %d outside the allocated range [base, cursor)", f))
	}
	if !a.allocated[f] {
		panic(fmt.Sprintf("physmem: double free or free of unallocated frame %d", f))
	}
	delete(a.allocated, f)
	delete(a.refcount, f)
	a.free = append(a.free, f)
}

// Len reports the number of frames currently allocated (live FrameTrackers
// plus any raw allocations not yet wrapped in one).
func (a *Arena) Len() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return len(a.allocated)
}

// FrameTracker owns exactly one physical frame. NewFrameTracker zeroes the
// frame; Release returns it to the allocator. FrameTrackers may be shared
// (Clone) to implement COW: the underlying frame is freed only when the
// last clone is released (spec.md §3, §4.3).
type FrameTracker struct {
	arena *Arena
	frame addr.Frame
	ref   *int32
}

// NewFrameTracker allocates and zero-fills a fresh frame.
func NewFrameTracker(a *Arena) (*FrameTracker, bool) {
	f, ok := a.Allocate()
	if !ok {
		return nil, false
	}
	clear(a.Bytes(f))
	a.lock.Lock()
	refcount := new(int32)
	*refcount = 1
	a.refcount[f] = refcount
	a.lock.Unlock()
	return &FrameTracker{arena: a, frame: f, ref: refcount}, true
}

// Frame returns the physical frame this tracker owns.
func (t *FrameTracker) Frame() addr.Frame { return t.frame }

// Bytes returns the direct-mapped view of the owned frame.
func (t *FrameTracker) Bytes() []byte { return t.arena.Bytes(t.frame) }

// Refcount returns the number of live owners of the underlying frame.
func (t *FrameTracker) Refcount() int32 {
	return *t.ref
}

// Clone returns a new FrameTracker sharing the same physical frame,
// incrementing the shared reference count. Used by AddressSpace.CloneCOW
// to give parent and child address spaces joint ownership of a frame
// until a write fault splits it (spec.md §4.3).
func (t *FrameTracker) Clone() *FrameTracker {
	*t.ref++
	return &FrameTracker{arena: t.arena, frame: t.frame, ref: t.ref}
}

// Release decrements the reference count and, if it reaches zero, frees
// the frame. FrameTracker drop must not run while the allocator lock is
// held by the same goroutine (spec.md §5); Release takes the allocator
// lock only for the bookkeeping removal, after decrementing the refcount
// outside of it.
func (t *FrameTracker) Release() {
	remaining := decrementRef(t.ref)
	if remaining == 0 {
		t.arena.Deallocate(t.frame)
	}
}

func decrementRef(ref *int32) int32 {
	*ref--
	if *ref < 0 {
		panic("physmem: frame refcount went negative")
	}
	return *ref
}

// SnapshotProfile builds a pprof-compatible heap profile of the arena's
// live frames, one sample per allocated frame, and returns it gzip
// serialized so it can be written straight to the console or a log sink.
// This is the kernel's only postmortem frame-accounting tool: there is no
// filesystem to write a .pprof file to, so the bytes are meant to be
// copied off the console transcript and fed to `go tool pprof` directly.
func (a *Arena) SnapshotProfile() ([]byte, error) {
	a.lock.Lock()
	frames := make([]addr.Frame, 0, len(a.allocated))
	for f := range a.allocated {
		frames = append(frames, f)
	}
	a.lock.Unlock()

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "frames", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     addr.PageSize,
	}
	fn := &profile.Function{ID: 1, Name: "physmem.allocated_frame"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}
	prof.Function = []*profile.Function{fn}
	prof.Location = []*profile.Location{loc}
	for _, f := range frames {
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1},
			Label:    map[string][]string{"frame": {fmt.Sprintf("%#x", uint64(f))}},
		})
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := prof.WriteUncompressed(gz); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
