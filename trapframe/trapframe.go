// Package trapframe defines the fixed trap-context layout referenced by
// the trampoline assembly (spec.md §4.4, §6). The field order and total
// size (36 words) are load-bearing: the assembly in package trampoline
// indexes into this struct by raw offset, so fields must never be
// reordered, inserted, or removed without updating the offsets there too.
package trapframe

import "unsafe"

// TrapContext is the per-thread save area the trampoline reads and writes.
// Offsets (in 8-byte words, spec.md §6):
//
//	0..31   user general-purpose registers x0..x31 (x2 is the user sp)
//	32      user_sstatus
//	33      user_sepc
//	34      kernel_sp
//	35      kernel_satp
type TrapContext struct {
	X           [32]uint64
	UserSstatus uint64
	UserSepc    uint64
	KernelSp    uint64
	KernelSatp  uint64
}

// Words is the fixed size of TrapContext in 8-byte words (spec.md §6:
// "Total size exactly 36 words").
const Words = 36

// Reg indices for the RISC-V integer register file, named for the ones
// the syscall ABI and the COW/trap dispatch code touch directly.
const (
	RegSP  = 2  // stack pointer
	RegA0  = 10 // argument / return value 0
	RegA1  = 11
	RegA2  = 12
	RegA7  = 17 // syscall number
)

// Sp returns the saved user stack pointer.
func (tc *TrapContext) Sp() uint64 { return tc.X[RegSP] }

// SetSp sets the saved user stack pointer.
func (tc *TrapContext) SetSp(v uint64) { tc.X[RegSP] = v }

// SyscallID returns a7, the syscall number (spec.md §4.8).
func (tc *TrapContext) SyscallID() uint64 { return tc.X[RegA7] }

// SyscallArgs returns a0..a2, the first three syscall arguments.
func (tc *TrapContext) SyscallArgs() [3]uint64 {
	return [3]uint64{tc.X[RegA0], tc.X[RegA1], tc.X[RegA2]}
}

// SetReturn writes v into a0, the syscall return-value register (spec.md
// §4.8: "on Continue/Yield, write the 64-bit return value into user a0").
func (tc *TrapContext) SetReturn(v uint64) { tc.X[RegA0] = v }

// AdvancePC advances user_sepc past the 4-byte ecall instruction that
// trapped (spec.md §4.7 step 3, §4.8).
func (tc *TrapContext) AdvancePC() { tc.UserSepc += 4 }

// Init sets up a fresh thread's trap frame so that entering the user
// means starting execution at entry with the given stack, under the
// given kernel satp/kernel stack linkage (spec.md §4.6).
func Init(entry, userSP, kernelSatp, kernelSP uint64) *TrapContext {
	tc := &TrapContext{}
	tc.UserSepc = entry
	tc.SetSp(userSP)
	tc.KernelSatp = kernelSatp
	tc.KernelSp = kernelSP
	return tc
}

// FromBytes views a direct-mapped frame's backing bytes as a TrapContext,
// the same kind of cast the teacher's Dmap direct-map accessors perform
// to turn a physical frame into a typed kernel-side view without copying.
// b must be at least Words*8 bytes and must outlive the returned pointer.
func FromBytes(b []byte) *TrapContext {
	if len(b) < Words*8 {
		panic("trapframe: buffer too small for a trap context")
	}
	return (*TrapContext)(unsafe.Pointer(&b[0]))
}
