// Package memlayout holds the fixed virtual-address-space constants shared
// by vmspace, trapframe, trampoline and thread. Keeping them in one leaf
// package (rather than duplicating magic numbers, or forcing an import of
// the heavier vmspace package just to read a constant) mirrors the
// teacher's `mem` package, which plays the same role for PGSIZE/PTE bits.
package memlayout

import "rvkernel/addr"

const (
	// Trampoline occupies the top page of the 39-bit VA space (spec.md §4.3).
	Trampoline addr.VirtAddr = addr.VirtAddr((uint64(1)<<addr.VaWidth - addr.PageSize))

	// trapContextPages is how far below the trampoline the per-thread
	// trap-frame region begins (spec.md §4.3: "256 pages below the
	// trampoline").
	trapContextPages = 256

	// TrapContextBase is the base of the per-thread trap-frame region;
	// thread tid's trap frame lives at TrapContextBase + tid*PageSize.
	TrapContextBase addr.VirtAddr = addr.VirtAddr(uint64(Trampoline) - trapContextPages*addr.PageSize)

	// UserStackSize is the size, in bytes, of a single thread's user stack.
	UserStackSize = 4096 * 8

	// KernelStackSize is the size, in bytes, of a process's kernel stack.
	KernelStackSize = 4096 * 8

	// kernelStackGuard leaves one unmapped guard page between consecutive
	// processes' kernel stacks, mirroring the user-stack spacing rule.
	kernelStackGuard = addr.PageSize
)

// KernelStackBottom returns the bottom (inclusive, page-aligned) VA of
// process pid's dedicated kernel stack within the kernel address space,
// given the kernel stack area's base.
func KernelStackBottom(base addr.VirtAddr, pid int) addr.VirtAddr {
	stride := uint64(kernelStackGuard + KernelStackSize)
	return addr.VirtAddr(uint64(base) + uint64(pid)*stride)
}

// KernelStackTop returns the (exclusive) top VA of process pid's kernel
// stack.
func KernelStackTop(base addr.VirtAddr, pid int) addr.VirtAddr {
	return addr.VirtAddr(uint64(KernelStackBottom(base, pid)) + KernelStackSize)
}

// TrapFramePage returns the virtual page holding thread tid's trap frame.
func TrapFramePage(tid int) addr.Page {
	return TrapContextBase.Page().Add(tid)
}

// UserStackBottom returns the bottom (inclusive, page-aligned) VA of thread
// tid's user stack. Threads are spaced PageSize+UserStackSize apart,
// leaving one unmapped guard page between consecutive stacks (spec.md
// §4.3): stack tid occupies [bottom, bottom+UserStackSize), and the
// following PageSize bytes, up to the next stack's bottom, are the guard
// page.
func UserStackBottom(base addr.VirtAddr, tid int) addr.VirtAddr {
	stride := uint64(addr.PageSize + UserStackSize)
	return addr.VirtAddr(uint64(base) + uint64(tid)*stride)
}

// UserStackTop returns the (exclusive) top VA of thread tid's user stack.
func UserStackTop(base addr.VirtAddr, tid int) addr.VirtAddr {
	return addr.VirtAddr(uint64(UserStackBottom(base, tid)) + UserStackSize)
}
