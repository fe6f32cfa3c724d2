// Package heap implements the kernel's fixed, statically-reserved
// linked-list heap (spec.md §4, budget item "Heap (2%)"), grounded on
// original_source/kernel-lib/src/heap_allocator.rs and
// original_source/kernel/src/mem/heap_allocator.rs: a single arena of
// bytes, carved with a first-fit free-block list, used for the kernel's
// own small bookkeeping allocations that must not come from the hosted Go
// heap (the teacher's packages instead lean on the hosted allocator
// throughout, since biscuit's runtime *is* the host; this package exists
// because spec.md explicitly names the fixed heap as a core component).
package heap

import "fmt"

type block struct {
	size int // usable bytes, excluding this header
	next int // index into blocks, -1 if none
	free bool
}

// Arena is a first-fit linked-list allocator over a fixed-size backing
// buffer, reserved once at boot.
type Arena struct {
	buf    []byte
	blocks []block
	head   int // index of first block, -1 if buf is empty
}

// NewArena reserves size bytes for the kernel heap.
func NewArena(size int) *Arena {
	if size <= 0 {
		panic("heap: arena size must be positive")
	}
	a := &Arena{buf: make([]byte, size)}
	a.blocks = append(a.blocks, block{size: size, next: -1, free: true})
	a.head = 0
	return a
}

// Alloc reserves n contiguous bytes and returns a slice over them, or nil
// if the arena has no block large enough (spec.md calls this exhaustion a
// kernel-fatal condition in practice, but Alloc itself just reports
// failure — callers decide whether to panic).
func (a *Arena) Alloc(n int) []byte {
	if n <= 0 {
		panic("heap: alloc size must be positive")
	}
	prev := -1
	for i := a.head; i != -1; i = a.blocks[i].next {
		b := a.blocks[i]
		if !b.free || b.size < n {
			prev = i
			continue
		}
		a.split(i, n)
		a.blocks[i].free = false
		return a.bytesFor(i)
	}
	_ = prev
	return nil
}

// Free returns the block backing p to the free list and coalesces it with
// an immediately-following free neighbor. p must be a slice previously
// returned by Alloc on this arena; anything else is a programming error.
func (a *Arena) Free(p []byte) {
	idx := a.blockIndexFor(p)
	if idx == -1 {
		panic("heap: free of pointer not owned by this arena")
	}
	if a.blocks[idx].free {
		panic("heap: double free")
	}
	a.blocks[idx].free = true
	a.coalesce(idx)
}

func (a *Arena) split(i, n int) {
	b := a.blocks[i]
	const headerSlack = 0 // block metadata lives out-of-band in a.blocks
	if b.size-n > headerSlack && b.size-n >= 16 {
		off := a.offsetOf(i) + n
		newBlock := block{size: b.size - n, next: b.next, free: true}
		a.blocks = append(a.blocks, newBlock)
		newIdx := len(a.blocks) - 1
		a.blocks[i].size = n
		a.blocks[i].next = newIdx
		_ = off
	}
}

func (a *Arena) coalesce(i int) {
	next := a.blocks[i].next
	if next != -1 && a.blocks[next].free {
		a.blocks[i].size += a.blocks[next].size
		a.blocks[i].next = a.blocks[next].next
	}
}

// offsetOf returns the byte offset into a.buf where block i's data begins.
func (a *Arena) offsetOf(i int) int {
	off := 0
	for j := a.head; j != i; j = a.blocks[j].next {
		if j == -1 {
			panic(fmt.Sprintf("heap: block %d not reachable from head", i))
		}
		off += a.blocks[j].size
	}
	return off
}

func (a *Arena) bytesFor(i int) []byte {
	off := a.offsetOf(i)
	return a.buf[off : off+a.blocks[i].size]
}

func (a *Arena) blockIndexFor(p []byte) int {
	if len(p) == 0 {
		return -1
	}
	base := &a.buf[0]
	target := &p[0]
	// compare addresses via offset arithmetic over the backing array
	for i := a.head; i != -1; i = a.blocks[i].next {
		cand := a.bytesFor(i)
		if len(cand) == 0 {
			continue
		}
		if &cand[0] == target {
			_ = base
			return i
		}
	}
	return -1
}

// Cap returns the total arena size in bytes.
func (a *Arena) Cap() int { return len(a.buf) }

// FreeBytes returns the number of bytes currently available for
// allocation, for diagnostics.
func (a *Arena) FreeBytes() int {
	total := 0
	for i := a.head; i != -1; i = a.blocks[i].next {
		if a.blocks[i].free {
			total += a.blocks[i].size
		}
	}
	return total
}
