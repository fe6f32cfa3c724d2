// Package cpu is the thin riscv64 CSR-access boundary for the privileged
// operation boot code needs outside the trap path itself: writing satp
// (spec.md §2's boot sequence, "install it in satp"). Enabling the
// supervisor timer interrupt lives in package timer instead. The
// trap-entry/exit CSR accesses live in package trampoline instead, since
// those are tied to the trampoline's own naked assembly and fixed
// trap-frame offsets; this package is the boot-time counterpart, the same
// split the teacher draws between `vm.Pgdir_t.Install` (one-shot satp
// write at boot/activate) and the interrupt/syscall entry path.
package cpu

// WriteSatp installs satp and fences the TLB. Wired into
// vmspace.SetSatpWriter at boot.
type WriteSatp func(satp uint64)
