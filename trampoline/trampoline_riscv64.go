//go:build riscv64

package trampoline

import (
	"reflect"

	"rvkernel/trapframe"
)

// hw is the Trampoline backed by the real naked assembly routines in
// trampoline_riscv64.s. It is only buildable for GOARCH=riscv64, since
// enterUser and enterKernel execute privileged CSR and sret instructions
// that make sense only running on a real hart in supervisor mode.
type hw struct{}

// New returns the hardware-backed Trampoline. Callers on any other GOARCH
// must use a fake (see the trampoline package's fake.go, always buildable)
// instead — there is no portable software emulation of "switch satp and
// sret" to fall back to.
func New() Trampoline { return hw{} }

//go:noescape
func enterUser(tf *trapframe.TrapContext, userSatp uint64)

// enterKernel is never called from Go; it is entered directly from
// hardware via stvec. Its only Go-visible use is taking its address.
func enterKernel()

func readSCause() uint64
func readSTval() uint64

func (hw) EnterUser(tf *trapframe.TrapContext, userSatp uint64) {
	enterUser(tf, userSatp)
}

func (hw) TrapVector() uintptr {
	return reflect.ValueOf(enterKernel).Pointer()
}

func (hw) ReadTrapCause() (scause, stval uint64) {
	return readSCause(), readSTval()
}
