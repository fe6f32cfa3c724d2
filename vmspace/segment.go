// Package vmspace implements Segment and AddressSpace (spec.md §4.3),
// grounded on the teacher's `vm.Vm_t`/`Vmregion_t` pairing, but adapted
// from biscuit's lazily-faulted-in mmap-style regions to the Sv39 kernel's
// eager, ELF-segment-shaped mappings plus explicit copy-on-write fork.
package vmspace

import (
	"rvkernel/addr"
	"rvkernel/pagetable"
	"rvkernel/physmem"
)

// Kind is a segment's mapping strategy.
type Kind int

const (
	// Identical maps page p to the frame with the same bit pattern
	// (used for the kernel's own identity-mapped image).
	Identical Kind = iota
	// Framed maps each page to a freshly allocated, independently
	// owned frame (used for user segments and kernel dynamic regions).
	Framed
)

// Segment is a contiguous run of pages sharing one mapping kind and
// permission set (spec.md §3).
type Segment struct {
	Range addr.PageRange
	Kind  Kind
	Perm  pagetable.Flag // subset of R|W|X|U

	// frames holds the Framed segment's per-page frame ownership. For
	// Identical segments this is always nil (spec.md §3 invariant: "no
	// entry is stored in the map").
	frames map[addr.Page]*physmem.FrameTracker
}

// NewIdenticalSegment builds a segment that identity-maps r.
func NewIdenticalSegment(r addr.PageRange, perm pagetable.Flag) *Segment {
	return &Segment{Range: r, Kind: Identical, Perm: perm}
}

// NewFramedSegment builds a segment backed by freshly allocated frames,
// not yet mapped into any page table (call MapInto to install it).
func NewFramedSegment(r addr.PageRange, perm pagetable.Flag) *Segment {
	return &Segment{Range: r, Kind: Framed, Perm: perm, frames: make(map[addr.Page]*physmem.FrameTracker)}
}

// MapInto installs every page of the segment into pt. For Framed segments
// this allocates a fresh zeroed frame per page (spec.md §4.3); for
// Identical segments it maps page p to the bit-identical frame.
func (s *Segment) MapInto(pt *pagetable.PageTable, arena *physmem.Arena) bool {
	for _, p := range s.Range.Pages() {
		switch s.Kind {
		case Identical:
			pt.Map(p, addr.Frame(uint64(p)), s.Perm)
		case Framed:
			tr, ok := physmem.NewFrameTracker(arena)
			if !ok {
				return false
			}
			s.frames[p] = tr
			pt.Map(p, tr.Frame(), s.Perm)
		}
	}
	return true
}

// UnmapFrom removes every page of the segment from pt and releases any
// owned frames (Framed only).
func (s *Segment) UnmapFrom(pt *pagetable.PageTable) {
	for _, p := range s.Range.Pages() {
		pt.Unmap(p)
		if tr, ok := s.frames[p]; ok {
			tr.Release()
			delete(s.frames, p)
		}
	}
}

// CloneBytes copies data into the segment's pages, starting at the first
// page of the range, stopping when data is exhausted or the range ends —
// whichever comes first. Used to load ELF segment contents (spec.md
// §4.3).
func (s *Segment) CloneBytes(arena *physmem.Arena, pt *pagetable.PageTable, data []byte) {
	for _, p := range s.Range.Pages() {
		if len(data) == 0 {
			return
		}
		pte, ok := pt.Translate(p)
		if !ok {
			panic("vmspace: CloneBytes on unmapped page")
		}
		dst := arena.Bytes(pte.Frame())
		n := copy(dst, data)
		data = data[n:]
	}
}

// FrameFor returns the frame backing page p in a Framed segment.
func (s *Segment) FrameFor(p addr.Page) (*physmem.FrameTracker, bool) {
	tr, ok := s.frames[p]
	return tr, ok
}

// SetFrameFor replaces the frame backing page p (used by the COW fault
// handler when it must split a shared frame).
func (s *Segment) SetFrameFor(p addr.Page, tr *physmem.FrameTracker) {
	s.frames[p] = tr
}

// CloneShared returns a new segment over the same page range and
// permissions whose Framed pages share ownership (via FrameTracker.Clone)
// with the receiver — the building block for CloneCOW (spec.md §4.3).
func (s *Segment) CloneShared() *Segment {
	clone := &Segment{Range: s.Range, Kind: s.Kind, Perm: s.Perm}
	if s.Kind == Framed {
		clone.frames = make(map[addr.Page]*physmem.FrameTracker, len(s.frames))
		for p, tr := range s.frames {
			clone.frames[p] = tr.Clone()
		}
	}
	return clone
}

// CloneEager returns a new segment over the same range and permissions
// with freshly allocated frames whose contents are copied from the
// receiver (used for the trap-context pages, which are never
// shared across address spaces, spec.md §4.3).
func (s *Segment) CloneEager(arena *physmem.Arena, srcPT, dstPT *pagetable.PageTable) *Segment {
	clone := NewFramedSegment(s.Range, s.Perm)
	if !clone.MapInto(dstPT, arena) {
		panic("vmspace: out of memory eagerly cloning a private segment")
	}
	for _, p := range s.Range.Pages() {
		srcPTE, ok := srcPT.Translate(p)
		if !ok {
			continue
		}
		copy(arena.Bytes(clone.frames[p].Frame()), arena.Bytes(srcPTE.Frame()))
	}
	return clone
}
