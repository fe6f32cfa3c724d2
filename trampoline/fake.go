package trampoline

import "rvkernel/trapframe"

// Cause values a Script can report, matching scause's encoding closely
// enough for executor dispatch tests (spec.md §4.7 step 3) without
// depending on the real RISC-V interrupt/exception numbering.
const (
	CauseUserEnvCall = iota
	CauseLoadPageFault
	CauseStorePageFault
	CauseIllegalInstruction
	CauseInstructionMisaligned
	CauseSupervisorTimer
)

// Script lets a test drive one simulated trap: EnterUser applies Mutate
// (if set) to the trap frame as if the user program had run and then
// trapped, and ReadTrapCause reports Scause/Stval for that same trap —
// standing in for the hardware round-trip a real Trampoline performs.
type Script struct {
	Mutate func(tf *trapframe.TrapContext)
	Scause uint64
	Stval  uint64
}

// Fake is a Trampoline usable on any GOARCH. It never switches satp or
// executes privileged instructions; EnterUser just runs the next queued
// Script against tf and returns, so executor and syscall-dispatch code can
// be exercised without real riscv64 hardware.
type Fake struct {
	scripts []Script
	last    Script
	calls   []uint64
}

// NewFake returns a Fake with no scripts queued; EnterUser is then a no-op
// that reports CauseSupervisorTimer (as if every pending task were simply
// preempted) until scripts are enqueued.
func NewFake() *Fake { return &Fake{last: Script{Scause: CauseSupervisorTimer}} }

// Enqueue appends scripts to run on successive EnterUser calls. Once the
// queue is exhausted, EnterUser repeats the last script it ran.
func (f *Fake) Enqueue(scripts ...Script) {
	f.scripts = append(f.scripts, scripts...)
}

func (f *Fake) EnterUser(tf *trapframe.TrapContext, userSatp uint64) {
	f.calls = append(f.calls, userSatp)
	if len(f.scripts) > 0 {
		f.last = f.scripts[0]
		f.scripts = f.scripts[1:]
	}
	if f.last.Mutate != nil {
		f.last.Mutate(tf)
	}
}

func (f *Fake) ReadTrapCause() (scause, stval uint64) {
	return f.last.Scause, f.last.Stval
}

// Calls reports the satp value passed to every EnterUser call so far, so
// tests can assert on address-space switching without real hardware.
func (f *Fake) Calls() []uint64 { return f.calls }

func (f *Fake) TrapVector() uintptr { return 0 }
