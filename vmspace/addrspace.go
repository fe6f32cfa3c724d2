package vmspace

import (
	"errors"
	"sync"

	"rvkernel/addr"
	"rvkernel/memlayout"
	"rvkernel/pagetable"
	"rvkernel/physmem"
)

var (
	// ErrUnmapped is returned when a user virtual address has no mapping.
	ErrUnmapped = errors.New("vmspace: address not mapped")
	// ErrFault is returned when an access violates a mapping's permissions.
	ErrFault = errors.New("vmspace: permission fault")
	// ErrNameTooLong is returned by CopyCString when the NUL terminator
	// isn't found within the caller's maximum length.
	ErrNameTooLong = errors.New("vmspace: string exceeds maximum length")
)

// satpWriter installs a page table's satp value into hardware. It is nil
// until the platform boot path calls SetSatpWriter, mirroring the
// teacher's `vm.Cpumap`/`_numtoapicid` pattern of hanging a
// platform-supplied function pointer off of a package var rather than
// threading a platform object through every call site.
var satpWriter func(uint64)

// SetSatpWriter installs the hook AddressSpace.Activate uses to write the
// satp register and issue the TLB fence. cmd/kernel's boot calls this
// once.
func SetSatpWriter(f func(uint64)) { satpWriter = f }

// KernelSection describes one identity-mapped region of the kernel image
// (text/rodata/data/bss) for AddressSpace.FromKernel.
type KernelSection struct {
	Range addr.PageRange
	Perm  pagetable.Flag
}

// AddressSpace is a page table plus its ordered segment list plus the
// fixed trampoline mapping (spec.md §3, §4.3).
type AddressSpace struct {
	mu sync.Mutex

	arena *physmem.Arena
	pt    *pagetable.PageTable

	segments []*Segment

	trampolineFrame addr.Frame
	isUser          bool
}

// PageTable returns the address space's page table (for satp/tests).
func (as *AddressSpace) PageTable() *pagetable.PageTable { return as.pt }

// Arena returns the physical memory arena backing this address space, so
// callers that already hold a resolved Frame (Thread's trap-frame access)
// can reach its bytes without repeating a page-table walk.
func (as *AddressSpace) Arena() *physmem.Arena { return as.arena }

// Segments returns the address space's segment list, in insertion order
// (spec.md §4.3: "Segment ordering is insertion order; lookup is linear").
func (as *AddressSpace) Segments() []*Segment { return as.segments }

func (as *AddressSpace) insertSegment(s *Segment) { as.segments = append(as.segments, s) }

func (as *AddressSpace) segmentContaining(p addr.Page) (*Segment, bool) {
	for _, s := range as.segments {
		if s.Range.Contains(p) {
			return s, true
		}
	}
	return nil, false
}

// mapTrampoline maps the single shared trampoline frame into this address
// space at the fixed trampoline VA with R|X, no U (spec.md §3, §4.3).
func (as *AddressSpace) mapTrampoline() {
	r := addr.NewPageRange(memlayout.Trampoline, addr.PageSize)
	as.pt.Map(r.Start, as.trampolineFrame, pagetable.R|pagetable.X)
}

// FromKernel builds the kernel address space: the supplied sections are
// identity-mapped with their given permissions, the remainder of physical
// memory from the top of the highest section up to memLimit is
// identity-mapped R|W, and the
// trampoline is mapped at the high VA with R|X (spec.md §4.3).
func FromKernel(a *physmem.Arena, trampolineFrame addr.Frame, sections []KernelSection, memLimit addr.PhysAddr) (*AddressSpace, bool) {
	pt, ok := pagetable.New(a)
	if !ok {
		return nil, false
	}
	as := &AddressSpace{arena: a, pt: pt, trampolineFrame: trampolineFrame}

	highestCovered := addr.VirtAddr(0)
	for _, sec := range sections {
		seg := NewIdenticalSegment(sec.Range, sec.Perm)
		if !seg.MapInto(pt, a) {
			return nil, false
		}
		as.insertSegment(seg)
		if top := sec.Range.End.VirtAddr(); uint64(top) > uint64(highestCovered) {
			highestCovered = top
		}
	}

	remainderLen := uint64(memLimit) - uint64(highestCovered)
	if int64(remainderLen) > 0 {
		r := addr.NewPageRange(highestCovered, remainderLen)
		seg := NewIdenticalSegment(r, pagetable.R|pagetable.W)
		if !seg.MapInto(pt, a) {
			return nil, false
		}
		as.insertSegment(seg)
	}

	as.mapTrampoline()
	return as, true
}

// CloneCOW deep-clones the receiver for fork (spec.md §4.3). Every Framed
// segment below the trap-context region is shared (COW) between parent
// and child; segments in the trap-context region (the per-thread
// trap-frame pages) are copied eagerly, and the shared trampoline frame is
// mapped into the child's table as in every address space.
// The receiver's own page table is mutated in place to clear W and set
// COW on every writable shared page — both copies must agree.
func (as *AddressSpace) CloneCOW() *AddressSpace {
	as.mu.Lock()
	defer as.mu.Unlock()

	childPT, ok := pagetable.New(as.arena)
	if !ok {
		panic("vmspace: out of memory cloning address space")
	}
	child := &AddressSpace{arena: as.arena, pt: childPT, trampolineFrame: as.trampolineFrame, isUser: as.isUser}

	for _, seg := range as.segments {
		if seg.Range.Start >= memlayout.TrapContextBase.Page() {
			// private region (a trap-frame page): copy eagerly
			clone := seg.CloneEager(as.arena, as.pt, childPT)
			child.insertSegment(clone)
			continue
		}
		if seg.Kind != Framed {
			clone := NewIdenticalSegment(seg.Range, seg.Perm)
			if !clone.MapInto(childPT, as.arena) {
				panic("vmspace: out of memory cloning identical segment")
			}
			child.insertSegment(clone)
			continue
		}

		clone := seg.CloneShared()
		child.insertSegment(clone)
		writable := seg.Perm&pagetable.W != 0
		for _, p := range seg.Range.Pages() {
			tr, ok := clone.FrameFor(p)
			if !ok {
				continue
			}
			flags := seg.Perm
			if writable {
				flags = (flags &^ pagetable.W) | pagetable.COW
				as.pt.Remap(p, tr.Frame(), flags)
			}
			childPT.Map(p, tr.Frame(), flags)
		}
	}
	child.mapTrampoline()
	return child
}

// HandleCOWFault resolves a store page fault at va if the faulting PTE has
// the COW bit set (spec.md §4.3). It returns true if the fault was a COW
// fault and has been resolved; false means the caller should treat this as
// a genuine fault (spec.md §4.8's StorePageFault policy).
func (as *AddressSpace) HandleCOWFault(va addr.VirtAddr) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.handleCOWFaultLocked(va)
}

func (as *AddressSpace) handleCOWFaultLocked(va addr.VirtAddr) bool {
	p := va.Page()
	pte, ok := as.pt.Translate(p)
	if !ok || !pte.Has(pagetable.COW) {
		return false
	}
	seg, ok := as.segmentContaining(p)
	if !ok || seg.Kind != Framed {
		return false
	}
	tr, ok := seg.FrameFor(p)
	if !ok {
		return false
	}

	newPerm := (pte.Flags() &^ pagetable.COW) | pagetable.W
	if tr.Refcount() == 1 {
		as.pt.Remap(p, tr.Frame(), newPerm)
		return true
	}

	fresh, ok := physmem.NewFrameTracker(as.arena)
	if !ok {
		panic("vmspace: out of memory handling COW fault")
	}
	copy(fresh.Bytes(), tr.Bytes())
	seg.SetFrameFor(p, fresh)
	as.pt.Remap(p, fresh.Frame(), newPerm)
	tr.Release()
	return true
}

// RemoveSegment locates the segment containing va, unmaps its whole range
// and drops it from the address space (spec.md §4.3).
func (as *AddressSpace) RemoveSegment(va addr.VirtAddr) {
	as.mu.Lock()
	defer as.mu.Unlock()
	p := va.Page()
	for i, seg := range as.segments {
		if seg.Range.Contains(p) {
			seg.UnmapFrom(as.pt)
			as.segments = append(as.segments[:i], as.segments[i+1:]...)
			return
		}
	}
}

// InsertSegment maps and records a new segment (used by Thread to add its
// user-stack and trap-frame segments, and by process for per-process
// kernel stacks; FromELF maps its PT_LOAD segments directly).
func (as *AddressSpace) InsertSegment(seg *Segment) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	if !seg.MapInto(as.pt, as.arena) {
		return false
	}
	as.insertSegment(seg)
	return true
}

// Activate writes this address space's satp value and fences the TLB
// (spec.md §4.3). Idempotent at the hardware level modulo TLB state.
func (as *AddressSpace) Activate() {
	if satpWriter == nil {
		panic("vmspace: satp writer not installed")
	}
	satpWriter(as.pt.Satp())
}

// Translate returns a direct-mapped slice over the page containing va,
// starting at va's offset within that page. If forWrite is set and the
// page is COW, the fault is resolved first (mirroring the teacher's
// Userdmap8_inner k2u handling of a kernel-initiated write through a
// COW user page).
func (as *AddressSpace) Translate(va addr.VirtAddr, forWrite bool) ([]byte, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.translateLocked(va, forWrite)
}

func (as *AddressSpace) translateLocked(va addr.VirtAddr, forWrite bool) ([]byte, error) {
	p := va.Page()
	pte, ok := as.pt.Translate(p)
	if !ok {
		return nil, ErrUnmapped
	}
	if forWrite {
		if pte.Has(pagetable.COW) {
			if !as.handleCOWFaultLocked(va) {
				return nil, ErrFault
			}
			pte, _ = as.pt.Translate(p)
		} else if !pte.Has(pagetable.W) {
			return nil, ErrFault
		}
	}
	off := va.PageOffset()
	return as.arena.Bytes(pte.Frame())[off:], nil
}

// CopyIn reads len(dst) bytes starting at va into dst.
func (as *AddressSpace) CopyIn(va addr.VirtAddr, dst []byte) error {
	for len(dst) > 0 {
		src, err := as.Translate(va, false)
		if err != nil {
			return err
		}
		n := copy(dst, src)
		dst = dst[n:]
		va = addr.VirtAddr(uint64(va) + uint64(n))
	}
	return nil
}

// CopyOut writes src into user memory starting at va.
func (as *AddressSpace) CopyOut(va addr.VirtAddr, src []byte) error {
	for len(src) > 0 {
		dst, err := as.Translate(va, true)
		if err != nil {
			return err
		}
		n := copy(dst, src)
		src = src[n:]
		va = addr.VirtAddr(uint64(va) + uint64(n))
	}
	return nil
}

// CopyInWord reads the 4-byte little-endian instruction word at va,
// used by trap.DecodeFault to disassemble the instruction that raised an
// IllegalInstruction trap.
func (as *AddressSpace) CopyInWord(va uint64) (uint32, error) {
	var buf [4]byte
	if err := as.CopyIn(addr.VirtAddr(va), buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// CopyCString reads a NUL-terminated string from user memory, up to
// maxLen bytes (spec.md §4.8's exec argument translation).
func (as *AddressSpace) CopyCString(va addr.VirtAddr, maxLen int) (string, error) {
	var out []byte
	for len(out) < maxLen {
		chunk, err := as.Translate(va, false)
		if err != nil {
			return "", err
		}
		for i, c := range chunk {
			if c == 0 {
				return string(append(out, chunk[:i]...)), nil
			}
		}
		out = append(out, chunk...)
		va = addr.VirtAddr(uint64(va) + uint64(len(chunk)))
	}
	return "", ErrNameTooLong
}

// Free releases every segment's frames and the page table itself
// (called by Process when exec replaces the space and when a zombie is
// reaped, spec.md §4.6).
func (as *AddressSpace) Free() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, seg := range as.segments {
		seg.UnmapFrom(as.pt)
	}
	as.segments = nil
	as.pt.Free()
}
