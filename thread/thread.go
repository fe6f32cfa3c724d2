// Package thread implements the per-thread object (spec.md §4.5): a TID,
// a user stack, and a trap-frame page shared between the kernel's and the
// thread's own address space.
//
// A Thread holds no pointer back to its owning process: package process
// imports thread, so the reverse import would be a cycle. Code that needs
// both (the executor's per-thread task loop, syscallapi.SystemCall) is
// handed the *process.Process alongside the *Thread, and Process simply
// holds *Thread directly in its thread list.
package thread

import (
	"rvkernel/addr"
	"rvkernel/idalloc"
	"rvkernel/memlayout"
	"rvkernel/pagetable"
	"rvkernel/trapframe"
	"rvkernel/vmspace"
)

// Thread is one schedulable unit of a process: its own user stack and
// trap-frame page, reached through the owning process's address space
// (spec.md §3, §4.5).
type Thread struct {
	tid *idalloc.Handle

	space *vmspace.AddressSpace

	userStackBottom addr.VirtAddr
	userStackTop    addr.VirtAddr
	trapFrameVA     addr.VirtAddr
	trapFrameFrame  addr.Frame
}

// TID returns the thread's id within its owning process's TID allocator.
func (t *Thread) TID() int { return t.tid.ID() }

// UserStackTop returns the top of this thread's user stack (the initial
// user sp for a freshly created thread).
func (t *Thread) UserStackTop() addr.VirtAddr { return t.userStackTop }

// New constructs a thread in space, a process's address space, assigning
// it a TID from tids and placing its user stack and trap-frame page at
// the fixed offsets from userStackBase/TRAP_CONTEXT_BASE (spec.md §4.5).
//
// If allocateResource is true, fresh Framed segments are inserted for the
// user stack (R|W|U) and the trap-frame page (R|W, no U); otherwise the
// caller (fork, via an already-cloned address space) guarantees the
// segments are already present.
func New(tids *idalloc.Allocator, space *vmspace.AddressSpace, userStackBase addr.VirtAddr, allocateResource bool) *Thread {
	h := tids.Alloc()
	tid := h.ID()

	bottom := memlayout.UserStackBottom(userStackBase, tid)
	top := memlayout.UserStackTop(userStackBase, tid)
	trapFrameVA := memlayout.TrapFramePage(tid).VirtAddr()

	t := &Thread{
		tid:             h,
		space:           space,
		userStackBottom: bottom,
		userStackTop:    top,
		trapFrameVA:     trapFrameVA,
	}

	if allocateResource {
		stackLen := uint64(top) - uint64(bottom)
		stackSeg := vmspace.NewFramedSegment(addr.NewPageRange(bottom, stackLen), pagetable.R|pagetable.W|pagetable.U)
		if !space.InsertSegment(stackSeg) {
			panic("thread: out of memory allocating user stack")
		}
		frameSeg := vmspace.NewFramedSegment(addr.NewPageRange(trapFrameVA, addr.PageSize), pagetable.R|pagetable.W)
		if !space.InsertSegment(frameSeg) {
			panic("thread: out of memory allocating trap-frame page")
		}
	}

	pte, ok := space.PageTable().Translate(trapFrameVA.Page())
	if !ok {
		panic("thread: trap-frame page not mapped after construction")
	}
	t.trapFrameFrame = pte.Frame()
	return t
}

// ReallocateResource is the post-exec rebind (spec.md §4.5): the old
// address space having been wholly replaced by exec, a fresh user stack
// and trap-frame segment are inserted into the new one at this thread's
// TID-derived offsets, and the thread's trap-frame frame is re-resolved.
func (t *Thread) ReallocateResource(space *vmspace.AddressSpace, newUserStackBase addr.VirtAddr) {
	t.space = space
	tid := t.tid.ID()
	t.userStackBottom = memlayout.UserStackBottom(newUserStackBase, tid)
	t.userStackTop = memlayout.UserStackTop(newUserStackBase, tid)
	t.trapFrameVA = memlayout.TrapFramePage(tid).VirtAddr()

	stackLen := uint64(t.userStackTop) - uint64(t.userStackBottom)
	stackSeg := vmspace.NewFramedSegment(addr.NewPageRange(t.userStackBottom, stackLen), pagetable.R|pagetable.W|pagetable.U)
	if !space.InsertSegment(stackSeg) {
		panic("thread: out of memory reallocating user stack")
	}
	frameSeg := vmspace.NewFramedSegment(addr.NewPageRange(t.trapFrameVA, addr.PageSize), pagetable.R|pagetable.W)
	if !space.InsertSegment(frameSeg) {
		panic("thread: out of memory reallocating trap-frame page")
	}

	pte, ok := space.PageTable().Translate(t.trapFrameVA.Page())
	if !ok {
		panic("thread: trap-frame page not mapped after reallocation")
	}
	t.trapFrameFrame = pte.Frame()
}

// TrapContext returns the kernel-side view of this thread's trap frame:
// the same physical page reached via the kernel's direct map, rather than
// the TRAP_CONTEXT_BASE user-side mapping the trampoline uses (spec.md
// §3: "the same physical memory, reached two ways").
func (t *Thread) TrapContext() *trapframe.TrapContext {
	return trapframe.FromBytes(t.space.Arena().Bytes(t.trapFrameFrame))
}

// Satp returns the satp value for this thread's address space, passed to
// enter_user on every entry to user mode.
func (t *Thread) Satp() uint64 { return t.space.PageTable().Satp() }

// Drop removes both the user-stack and trap-frame segments from the
// process address space and returns the TID to its allocator (spec.md
// §4.5: "Thread drop removes both segments... and returns the TID").
func (t *Thread) Drop() {
	t.space.RemoveSegment(t.userStackBottom)
	t.space.RemoveSegment(t.trapFrameVA)
	t.tid.Release()
}
