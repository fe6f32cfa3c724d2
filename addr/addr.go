// Package addr provides the Sv39 address value types: PhysAddr, VirtAddr,
// Frame, Page and PageRange. These are pure value types — arithmetic only,
// no allocation, no I/O — matching the teacher's `mem.Pa_t`/`Pg_t` style of
// keeping addressing concerns in their own tiny package.
package addr

import "fmt"

const (
	// PageShift is the base-2 exponent of the page size (4 KiB pages).
	PageShift = 12
	// PageSize is the size of a single page/frame in bytes.
	PageSize = 1 << PageShift

	// PaWidth is the width, in bits, of a physical address (spec.md §3).
	PaWidth = 56
	// VaWidth is the width, in bits, of a virtual address before sign
	// extension (spec.md §3, §9 Open Questions).
	VaWidth = 39
	// FrameWidth is the width, in bits, of a physical frame number.
	FrameWidth = PaWidth - PageShift
	// PageWidth is the width, in bits, of a virtual page number.
	PageWidth = VaWidth - PageShift
)

var (
	paMask    = uint64(1)<<PaWidth - 1
	frameMask = uint64(1)<<FrameWidth - 1
	pageMask  = uint64(1)<<PageWidth - 1
)

// PhysAddr is a physical address. Only the low PaWidth bits are significant.
type PhysAddr uint64

// VirtAddr is a virtual address. It is sign-extended: bit 38 set implies
// bits 63..39 are all ones (spec.md §9 pins this; some revisions of the
// original source disagreed).
type VirtAddr uint64

// Frame is a physical frame number (FrameWidth bits, wraps modulo 2^FrameWidth).
type Frame uint64

// Page is a virtual page number (PageWidth bits, wraps modulo 2^PageWidth).
type Page uint64

// NewPhysAddr masks pa to PaWidth bits.
func NewPhysAddr(pa uint64) PhysAddr {
	return PhysAddr(pa & paMask)
}

// NewVirtAddr canonicalizes va: bit 38 propagates through bits 63..39.
func NewVirtAddr(va uint64) VirtAddr {
	const signBit = uint64(1) << (VaWidth - 1)
	if va&signBit != 0 {
		va |= ^(signBit - 1)
	} else {
		va &= signBit - 1
	}
	return VirtAddr(va)
}

// Canonical reports whether va is already sign-extended per the Sv39 rule.
func (va VirtAddr) Canonical() bool {
	return va == NewVirtAddr(uint64(va))
}

// Page floors va to its containing page number.
func (va VirtAddr) Page() Page {
	return Page((uint64(va) >> PageShift) & pageMask)
}

// PageOffset returns the low PageShift bits of va.
func (va VirtAddr) PageOffset() uint64 {
	return uint64(va) & (PageSize - 1)
}

// Uint64 returns the raw bit pattern.
func (va VirtAddr) Uint64() uint64 { return uint64(va) }

// Frame requires pa to be page-aligned and returns its frame number.
// A misaligned address is a programming error: panic.
func (pa PhysAddr) Frame() Frame {
	if uint64(pa)&(PageSize-1) != 0 {
		panic(fmt.Sprintf("addr: PhysAddr %#x is not page-aligned", uint64(pa)))
	}
	return Frame((uint64(pa) >> PageShift) & frameMask)
}

// FrameFloor floors pa to its containing frame number without requiring
// alignment (used when reading a PTE's embedded address field, which is
// always frame-aligned by construction but may be handed a raw offset).
func (pa PhysAddr) FrameFloor() Frame {
	return Frame((uint64(pa) >> PageShift) & frameMask)
}

// Uint64 returns the raw bit pattern.
func (pa PhysAddr) Uint64() uint64 { return uint64(pa) }

// PhysAddr returns the page-aligned physical address of this frame.
func (f Frame) PhysAddr() PhysAddr {
	return PhysAddr((uint64(f) & frameMask) << PageShift)
}

// Add64 returns f+n, wrapping modulo 2^FrameWidth.
func (f Frame) Add64(n uint64) Frame {
	return Frame((uint64(f) + n) & frameMask)
}

// VirtAddr returns the page-aligned, sign-extended virtual address of p.
func (p Page) VirtAddr() VirtAddr {
	return NewVirtAddr((uint64(p) & pageMask) << PageShift)
}

// Add returns p+n (wrapping modulo 2^PageWidth, matching hardware index
// arithmetic rather than overflowing into the sign-extension bits).
func (p Page) Add(n int) Page {
	return Page((uint64(p) + uint64(int64(n))) & pageMask)
}

// VpnIndex returns the Sv39 level-`level` index (0 = lowest, covering bits
// [20:12]; 1 = bits [29:21]; 2 = bits [38:30]) used to walk the 3-level page
// table (spec.md §4.2).
func (p Page) VpnIndex(level int) uint64 {
	return (uint64(p) >> uint(9*level)) & 0x1ff
}

// PageRange is a half-open range of virtual pages [Start, End).
type PageRange struct {
	Start Page
	End   Page
}

// NewPageRange builds the page range spanning [start, start+va-aligned len).
// start and len must be page-aligned; misalignment is a programming error.
func NewPageRange(start VirtAddr, length uint64) PageRange {
	if uint64(start)&(PageSize-1) != 0 {
		panic("addr: PageRange start is not page-aligned")
	}
	if length%PageSize != 0 {
		panic("addr: PageRange length is not page-aligned")
	}
	n := length / PageSize
	return PageRange{Start: start.Page(), End: start.Page().Add(int(n))}
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	return int(uint64(r.End) - uint64(r.Start))
}

// Contains reports whether p lies in [r.Start, r.End).
func (r PageRange) Contains(p Page) bool {
	return uint64(p) >= uint64(r.Start) && uint64(p) < uint64(r.End)
}

// Pages returns the pages in the range in ascending order.
func (r PageRange) Pages() []Page {
	out := make([]Page, 0, r.Len())
	for p := r.Start; p != r.End; p = p.Add(1) {
		out = append(out, p)
	}
	return out
}
