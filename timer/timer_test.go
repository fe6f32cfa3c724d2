package timer

import "testing"

func TestEnableTimerInterruptDelegatesToHardware(t *testing.T) {
	fake := &Fake{}
	var setCalls []uint64
	Init(fake, func(mtimeTarget uint64) { setCalls = append(setCalls, mtimeTarget) })

	EnableTimerInterrupt()
	if !fake.InterruptEnabled {
		t.Fatal("expected hardware interrupt-enable to have been invoked")
	}
}

func TestGetTimeConvertsClockTicksToMilliseconds(t *testing.T) {
	fake := &Fake{Now: ClockFreq * 3}
	Init(fake, func(uint64) {})

	if got, want := GetTime(), uint64(3*msPerSecond); got != want {
		t.Fatalf("GetTime() = %d, want %d", got, want)
	}
}

func TestSetTriggerProgramsOneTickAhead(t *testing.T) {
	fake := &Fake{Now: 1000}
	var target uint64
	Init(fake, func(mtimeTarget uint64) { target = mtimeTarget })

	SetTrigger()

	want := fake.Now + ClockFreq/TickPerSec
	if target != want {
		t.Fatalf("SetTrigger programmed %d, want %d", target, want)
	}
}
