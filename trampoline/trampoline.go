// Package trampoline implements the KPTI-style trap entry/exit sequence
// (spec.md §4.4): two naked RISC-V routines mapped at the same high
// virtual address ("the trampoline") in the kernel and in every user
// address space, so execution survives the satp switch between address
// spaces.
//
// The rest of the kernel depends only on the Trampoline interface, the
// same "depend on the shim, not the implementation" shape the spec gives
// the platform shim (spec.md §6) — which matters here specifically
// because the real routines execute privileged RISC-V instructions
// (sret, CSR access to sscratch/sstatus/sepc/satp) that cannot run, and
// should never be exercised, on the host this kernel is developed on.
package trampoline

import "rvkernel/trapframe"

// Trampoline crosses the user/kernel boundary. EnterUser does not return
// until the user thread traps back into the kernel; by the time it
// returns, the kernel address space is active again and tf has been
// updated with the trapped user register state (spec.md §4.4).
type Trampoline interface {
	EnterUser(tf *trapframe.TrapContext, userSatp uint64)

	// TrapVector returns the address to program into stvec so that traps
	// taken from user mode land in enterKernel.
	TrapVector() uintptr

	// ReadTrapCause reads scause/stval after EnterUser has returned,
	// i.e. immediately after the trap that brought control back to the
	// kernel (spec.md §4.7 step 2).
	ReadTrapCause() (scause, stval uint64)
}
