// Package trap classifies trap causes (spec.md §4.7 step 3) and produces
// the human-readable fault diagnostic attached to a zombie thread's exit
// record when it dies of an illegal instruction.
package trap

import (
	"fmt"

	"golang.org/x/arch/riscv64/riscv64asm"

	"rvkernel/trampoline"
	"rvkernel/vmspace"
)

// ControlFlow is what the per-thread task loop does next after
// dispatching one trap (spec.md §4.7 step 4).
type ControlFlow int

const (
	Continue ControlFlow = iota
	Yield
	Exit
)

// Classify maps a raw scause/stval pair to the policy spec.md §4.7 step 3
// and §7 assign it. exitCode is only meaningful when flow == Exit.
func Classify(scause, stval uint64, cow func(va uint64) bool) (flow ControlFlow, exitCode int) {
	switch scause {
	case trampoline.CauseUserEnvCall:
		return Continue, 0
	case trampoline.CauseLoadPageFault:
		return Exit, 1
	case trampoline.CauseStorePageFault:
		if cow != nil && cow(stval) {
			return Continue, 0
		}
		return Exit, 1
	case trampoline.CauseIllegalInstruction, trampoline.CauseInstructionMisaligned:
		return Exit, 1
	case trampoline.CauseSupervisorTimer:
		return Yield, 0
	default:
		panic(fmt.Sprintf("trap: unexpected scause %d", scause))
	}
}

// DecodeFault reads the 32-bit instruction word at sepc through the
// faulting address space's page table and disassembles it, producing a
// one-line diagnostic such as "illegal instruction: addi a0, a0, 1
// (0x00150513)". Wired only off IllegalInstruction, the one cause where
// spec.md's policy is "exit code 1" with no other forensic detail
// specified; this is rvkernel's addition on top of that (see SPEC_FULL.md
// DOMAIN STACK, DESIGN.md).
func DecodeFault(as *vmspace.AddressSpace, sepc uint64) string {
	word, err := as.CopyInWord(sepc)
	if err != nil {
		return fmt.Sprintf("illegal instruction: <unreadable at %#x>", sepc)
	}
	var buf [4]byte
	buf[0] = byte(word)
	buf[1] = byte(word >> 8)
	buf[2] = byte(word >> 16)
	buf[3] = byte(word >> 24)

	inst, err := riscv64asm.Decode(buf[:])
	if err != nil {
		return fmt.Sprintf("illegal instruction: <undecodable> (%#08x)", word)
	}
	return fmt.Sprintf("illegal instruction: %s (%#08x)", inst.String(), word)
}
