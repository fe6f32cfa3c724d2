// Command kernel drives the boot sequence spec.md §2 describes: zero BSS,
// init heap, init frame allocator, build the kernel address space,
// install it in satp, enable timer interrupts, create the init process
// (which forks and execs shell), drive the executor until no tasks
// remain, then shut down.
package main

import (
	"rvkernel/addr"
	"rvkernel/bundle"
	"rvkernel/cpu"
	"rvkernel/executor"
	"rvkernel/heap"
	"rvkernel/pagetable"
	"rvkernel/physmem"
	"rvkernel/platform"
	"rvkernel/process"
	"rvkernel/syscallapi"
	"rvkernel/timer"
	"rvkernel/trampoline"
	"rvkernel/vmspace"
)

const (
	// memoryLimit is the size, in bytes, of simulated physical memory
	// (spec.md §4.1's mem_limit).
	memoryLimit = 256 * 1024 * 1024
	// kernelImageEnd is the boundary between the identity-mapped kernel
	// image and the remainder of physical memory the frame allocator
	// manages (spec.md §4.1's kernel_end_rounded_up).
	kernelImageEnd = 2 * addr.PageSize
	// kernelHeapSize is the fixed arena size for the kernel's own
	// dynamic bookkeeping allocations (spec.md's "Heap" component).
	kernelHeapSize = 1 << 20
	// kernelStackAreaBase is the kernel-space VA where per-process
	// kernel stacks begin, chosen above the identity-mapped physical
	// memory and well below the trap-context/trampoline high region so it
	// collides with neither.
	kernelStackAreaBase = addr.VirtAddr(0xFFFF_FFC0_0000_0000)
)

// boot wires together every collaborator and runs the executor to
// completion. It is shared between the riscv64 build (real hardware) and
// the hosted reference build (fakes, for a runnable demo under `go run`
// on a development machine) — only the collaborators differ.
func boot(plat platform.Platform, tr trampoline.Trampoline, hw timer.Hardware, satp cpu.WriteSatp, bins bundle.Lookup) {
	// zero BSS: performed by the Go runtime before main ever runs; there
	// is no hand-rolled BSS-clearing step left for this kernel to do.

	bundle.SetLookup(bins)

	process.SetKernelHeap(heap.NewArena(kernelHeapSize))

	arena := physmem.NewArena(addr.Frame(kernelImageEnd/addr.PageSize), memoryLimit-kernelImageEnd)

	trampolineFrame, ok := arena.Allocate()
	if !ok {
		panic("kernel: out of memory allocating the trampoline frame")
	}

	sections := []vmspace.KernelSection{
		{Range: addr.NewPageRange(addr.NewVirtAddr(0), kernelImageEnd), Perm: pagetable.R | pagetable.W | pagetable.X},
	}
	kSpace, ok := vmspace.FromKernel(arena, trampolineFrame, sections, addr.PhysAddr(memoryLimit))
	if !ok {
		panic("kernel: out of memory building the kernel address space")
	}

	vmspace.SetSatpWriter(satp)
	kSpace.Activate()

	timer.Init(hw, plat.SetTimer)
	timer.EnableTimerInterrupt()
	timer.SetTrigger()

	process.Init(arena, trampolineFrame, kSpace, kernelStackAreaBase)

	var sched executor.FIFO
	syscallapi.SetSpawner(func(p *process.Process) {
		executor.SpawnThreadTask(&sched, tr, p, p.MainThread(), plat)
	})

	initProc := process.New("init")
	executor.SpawnThreadTask(&sched, tr, initProc, initProc.MainThread(), plat)

	executor.RunUntilComplete(&sched)

	plat.Shutdown()
}
