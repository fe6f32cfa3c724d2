// Package pagetable implements the Sv39 three-level page table walker
// (spec.md §4.2), grounded on the teacher's mem.Pmap_t/vm pmap_walk
// machinery but generalized from biscuit's 4-level x86 format to Sv39's
// 3-level format and its software COW bit.
package pagetable

import (
	"fmt"

	"rvkernel/addr"
	"rvkernel/physmem"
)

// Flag is a PTE flag bit. Bits 0..7 are hardware-interpreted; bit 8 (COW)
// is software-only (spec.md §6).
type Flag uint64

const (
	V   Flag = 1 << 0 // valid
	R   Flag = 1 << 1 // readable
	W   Flag = 1 << 2 // writable
	X   Flag = 1 << 3 // executable
	U   Flag = 1 << 4 // user-accessible
	G   Flag = 1 << 5 // global
	A   Flag = 1 << 6 // accessed
	D   Flag = 1 << 7 // dirty
	COW Flag = 1 << 8 // software: copy-on-write pending
)

const frameShift = 10

// PTE is a single 64-bit Sv39 page table entry.
type PTE uint64

// NewPTE packs frame and flags into a page table entry. Setting both COW
// and W is a programming error (spec.md §3 invariant: "if COW is set then
// W is clear").
func NewPTE(f addr.Frame, flags Flag) PTE {
	if flags&COW != 0 && flags&W != 0 {
		panic("pagetable: COW and W must not both be set")
	}
	return PTE(uint64(f)<<frameShift | uint64(flags))
}

// Flags returns the flag bits of the entry.
func (e PTE) Flags() Flag { return Flag(uint64(e) & (1<<frameShift - 1)) }

// Frame returns the frame number encoded in the entry.
func (e PTE) Frame() addr.Frame { return addr.Frame(uint64(e) >> frameShift) }

// Has reports whether all bits of f are set.
func (e PTE) Has(f Flag) bool { return Flag(e.Flags())&f == f }

// Valid reports whether the V bit is set.
func (e PTE) Valid() bool { return e.Has(V) }

// WithFlags returns a copy of e with flags replaced (frame unchanged).
func (e PTE) WithFlags(flags Flag) PTE {
	return NewPTE(e.Frame(), flags)
}

const entriesPerTable = 512

// PageTable is an Sv39 3-level page table. It owns a root frame and an
// append-only list of interior-node frames; dropping the table frees them
// all (spec.md §4.2, §3).
type PageTable struct {
	arena   *physmem.Arena
	root    addr.Frame
	owned   []addr.Frame // interior node frames allocated by this table
	owning  bool         // false for FromSatp (non-owning walker)
}

// New allocates a fresh, zeroed root table.
func New(a *physmem.Arena) (*PageTable, bool) {
	root, ok := a.Allocate()
	if !ok {
		return nil, false
	}
	clear(a.Bytes(root))
	return &PageTable{arena: a, root: root, owning: true}, true
}

// FromSatp constructs a non-owning walker over the address space whose
// satp value is satp: reads and writes reach the same tables, but Free
// does nothing (spec.md §4.2: "does not free anything on drop").
func FromSatp(a *physmem.Arena, satp uint64) *PageTable {
	return &PageTable{arena: a, root: addr.Frame(satp & (1<<44 - 1)), owning: false}
}

// Satp returns the Sv39 satp register value for this table (mode 8 in
// bits 63..60, root PPN in bits 43..0).
func (pt *PageTable) Satp() uint64 {
	const modeSv39 = uint64(8) << 60
	return modeSv39 | uint64(pt.root)
}

// Root returns the table's root frame.
func (pt *PageTable) Root() addr.Frame { return pt.root }

func (pt *PageTable) tableAt(f addr.Frame) []PTE {
	raw := pt.arena.Bytes(f)
	out := make([]PTE, entriesPerTable)
	for i := range out {
		out[i] = PTE(leUint64(raw[i*8 : i*8+8]))
	}
	return out
}

func (pt *PageTable) setEntry(f addr.Frame, idx int, e PTE) {
	raw := pt.arena.Bytes(f)
	putLeUint64(raw[idx*8:idx*8+8], uint64(e))
}

func (pt *PageTable) entry(f addr.Frame, idx int) PTE {
	raw := pt.arena.Bytes(f)
	return PTE(leUint64(raw[idx*8 : idx*8+8]))
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// walk descends the three levels toward page p. When create is true,
// missing interior tables are allocated (and tracked in pt.owned) along
// the way; otherwise a missing interior table ends the walk with ok=false.
// It returns the frame of the leaf table and the leaf index, ready for the
// caller to read or write the level-0 entry.
func (pt *PageTable) walk(p addr.Page, create bool) (leafFrame addr.Frame, leafIdx int, ok bool) {
	cur := pt.root
	for level := 2; level >= 1; level-- {
		idx := int(p.VpnIndex(level))
		e := pt.entry(cur, idx)
		if !e.Valid() {
			if !create {
				return 0, 0, false
			}
			nf, allocated := pt.arena.Allocate()
			if !allocated {
				return 0, 0, false
			}
			clear(pt.arena.Bytes(nf))
			pt.setEntry(cur, idx, NewPTE(nf, V))
			if pt.owning {
				pt.owned = append(pt.owned, nf)
			}
			cur = nf
			continue
		}
		if e.Has(R) || e.Has(X) {
			panic("pagetable: encountered a leaf (superpage) entry at an interior level, unsupported")
		}
		cur = e.Frame()
	}
	return cur, int(p.VpnIndex(0)), true
}

// Map installs a leaf mapping for page p to frame f with the given flags
// (V is OR-ed in automatically). Mapping an already-valid page is a
// programming error (spec.md §4.2).
func (pt *PageTable) Map(p addr.Page, f addr.Frame, flags Flag) {
	leaf, idx, ok := pt.walk(p, true)
	if !ok {
		panic("pagetable: out of physical memory while walking for map")
	}
	if pt.entry(leaf, idx).Valid() {
		panic(fmt.Sprintf("pagetable: page %#x is already mapped", uint64(p)))
	}
	pt.setEntry(leaf, idx, NewPTE(f, flags|V))
}

// Remap overwrites an existing valid leaf entry (used by the COW fault
// handler, which legitimately replaces a mapping in place).
func (pt *PageTable) Remap(p addr.Page, f addr.Frame, flags Flag) {
	leaf, idx, ok := pt.walk(p, false)
	if !ok || !pt.entry(leaf, idx).Valid() {
		panic(fmt.Sprintf("pagetable: remap of unmapped page %#x", uint64(p)))
	}
	pt.setEntry(leaf, idx, NewPTE(f, flags|V))
}

// Unmap clears the leaf PTE for p. It does not free interior tables
// (spec.md §4.2). Unmapping an already-unmapped page is a no-op.
func (pt *PageTable) Unmap(p addr.Page) {
	leaf, idx, ok := pt.walk(p, false)
	if !ok {
		return
	}
	pt.setEntry(leaf, idx, PTE(0))
}

// Translate walks without creating interior tables and returns the leaf
// PTE for p, if mapped.
func (pt *PageTable) Translate(p addr.Page) (PTE, bool) {
	leaf, idx, ok := pt.walk(p, false)
	if !ok {
		return 0, false
	}
	e := pt.entry(leaf, idx)
	if !e.Valid() {
		return 0, false
	}
	return e, true
}

// PTEPointer exposes a live handle to the leaf entry for p (creating
// interior tables as needed), letting callers read-modify-write a single
// entry atomically with respect to the table's own storage (used by the
// COW fault handler, which needs to both read and then conditionally
// rewrite one entry). It returns ok=false only on interior-table
// allocation failure.
func (pt *PageTable) PTEPointer(p addr.Page) (get func() PTE, set func(PTE), ok bool) {
	leaf, idx, ok := pt.walk(p, true)
	if !ok {
		return nil, nil, false
	}
	return func() PTE { return pt.entry(leaf, idx) },
		func(e PTE) { pt.setEntry(leaf, idx, e) },
		true
}

// Free releases every interior table frame this table allocated and the
// root itself. A non-owning table built via FromSatp frees nothing.
func (pt *PageTable) Free() {
	if !pt.owning {
		return
	}
	for _, f := range pt.owned {
		pt.arena.Deallocate(f)
	}
	pt.owned = nil
	pt.arena.Deallocate(pt.root)
}
