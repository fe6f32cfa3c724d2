// Package timer implements the tick-programming logic (spec.md §4.9):
// enabling the supervisor timer interrupt, reading the current time, and
// programming the next trigger at a fixed rate.
//
// Reading the `time` CSR and setting the STIE bit of `sie` are privileged
// instructions available directly to S-mode kernel code (unlike console
// I/O or programming the actual CLINT comparator, which are board-specific
// and go through the Platform shim's SetTimer, spec.md §6) — so this
// package gets its own tiny riscv64-gated accessor, the same "hardware
// interface + fake" shape as package trampoline.
package timer

// ClockFreq (CLOCK_FREQ) is the platform's timer frequency in Hz.
// TickPerSec (TICK_PER_SEC) is the preemption rate (spec.md §4.9).
const (
	ClockFreq   = 12_500_000
	TickPerSec  = 100
	msPerSecond = 1000
)

// Hardware reads the time CSR and enables the supervisor timer interrupt.
// SetTimer (the actual comparator write) is a Platform concern, not this
// package's, since it is board-specific (spec.md §6).
type Hardware interface {
	ReadTime() uint64
	EnableTimerInterrupt()
}

// SetTimer installs the next trigger; supplied by the Platform shim.
type SetTimer func(mtimeTarget uint64)

var (
	hw       Hardware
	setTimer SetTimer
)

// Init installs the hardware time source and the platform's timer-program
// hook. Called once during boot.
func Init(h Hardware, st SetTimer) {
	hw = h
	setTimer = st
}

// EnableTimerInterrupt sets the supervisor-timer enable bit (spec.md §4.9).
func EnableTimerInterrupt() {
	hw.EnableTimerInterrupt()
}

// GetTime returns the current time in milliseconds (spec.md §4.9: "read
// mtime, convert to ms via CLOCK_FREQ/1000").
func GetTime() uint64 {
	return hw.ReadTime() / (ClockFreq / msPerSecond)
}

// SetTrigger programs the next timer interrupt at mtime + one tick
// (spec.md §4.9).
func SetTrigger() {
	setTimer(hw.ReadTime() + ClockFreq/TickPerSec)
}
