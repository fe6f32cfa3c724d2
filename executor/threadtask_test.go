package executor

import (
	"bytes"
	"encoding/binary"
	"testing"

	"rvkernel/addr"
	"rvkernel/bundle"
	"rvkernel/heap"
	"rvkernel/pagetable"
	"rvkernel/physmem"
	"rvkernel/platform"
	"rvkernel/process"
	"rvkernel/syscallapi"
	"rvkernel/timer"
	"rvkernel/trampoline"
	"rvkernel/trapframe"
	"rvkernel/vmspace"
)

func buildMinimalELF(vaddr uint64, flags uint32, body []byte) []byte {
	const ehsize = 64
	const phentsize = 56

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(243))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, uint64(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	fileOffset := uint64(ehsize + phentsize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, flags)
	binary.Write(&buf, binary.LittleEndian, fileOffset)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, uint64(len(body)))
	binary.Write(&buf, binary.LittleEndian, uint64(len(body)))
	binary.Write(&buf, binary.LittleEndian, uint64(4096))
	buf.Write(body)
	return buf.Bytes()
}

func setupProcess(t *testing.T) *process.Process {
	t.Helper()
	a := physmem.NewArena(0, 16384*addr.PageSize)
	tf, ok := a.Allocate()
	if !ok {
		t.Fatal("arena exhausted allocating trampoline frame")
	}
	secs := []vmspace.KernelSection{
		{Range: addr.NewPageRange(addr.NewVirtAddr(0), 4*addr.PageSize), Perm: pagetable.R | pagetable.X},
	}
	kSpace, ok := vmspace.FromKernel(a, tf, secs, addr.PhysAddr(4096*addr.PageSize))
	if !ok {
		t.Fatal("FromKernel failed")
	}
	bundle.SetLookup(bundle.Static(map[string][]byte{
		"init": buildMinimalELF(0x10_0000, 5, []byte{1, 2, 3, 4}),
	}))
	process.Init(a, tf, kSpace, addr.NewVirtAddr(0x40_0000_0000))
	process.SetKernelHeap(heap.NewArena(4096))
	return process.New("init")
}

// setSchedYield mutates a trap context as if the user program had just
// executed `ecall` with a7=SchedYield.
func setSchedYield(tc *trapframe.TrapContext) { tc.X[17] = syscallapi.SchedYield }

// setExit mutates a trap context as if the user program had just executed
// `ecall` with a7=Exit, a0=code.
func setExit(code uint64) func(*trapframe.TrapContext) {
	return func(tc *trapframe.TrapContext) {
		tc.X[17] = syscallapi.Exit
		tc.X[10] = code
	}
}

func TestThreadTaskYieldsOnSchedYieldThenExits(t *testing.T) {
	p := setupProcess(t)
	th := p.MainThread()
	plat := platform.NewFake()
	fake := trampoline.NewFake()

	fake.Enqueue(
		trampoline.Script{Scause: trampoline.CauseUserEnvCall, Mutate: setSchedYield},
		trampoline.Script{Scause: trampoline.CauseUserEnvCall, Mutate: setExit(5)},
	)

	var sched FIFO
	SpawnThreadTask(&sched, fake, p, th, plat)
	RunUntilComplete(&sched)

	if p.Status() != process.Zombie || p.ExitCode() != 5 {
		t.Fatalf("expected process to exit with code 5, got status=%v code=%d", p.Status(), p.ExitCode())
	}
	if len(fake.Calls()) != 2 {
		t.Fatalf("expected exactly 2 enter_user round-trips, got %d", len(fake.Calls()))
	}
}

func TestThreadTaskExitsOnIllegalInstruction(t *testing.T) {
	p := setupProcess(t)
	th := p.MainThread()
	plat := platform.NewFake()
	fake := trampoline.NewFake()

	fake.Enqueue(trampoline.Script{Scause: trampoline.CauseIllegalInstruction})

	var sched FIFO
	SpawnThreadTask(&sched, fake, p, th, plat)
	RunUntilComplete(&sched)

	if p.Status() != process.Zombie || p.ExitCode() != 1 {
		t.Fatalf("expected exit code 1 on illegal instruction, got status=%v code=%d", p.Status(), p.ExitCode())
	}
	if diag := p.FaultDiagnostic(); diag == "" {
		t.Fatal("expected a decoded-fault diagnostic to be recorded on illegal instruction")
	}
}

func TestThreadTaskReprogramsTimerOnSupervisorTimerThenYields(t *testing.T) {
	p := setupProcess(t)
	th := p.MainThread()
	plat := platform.NewFake()
	fake := trampoline.NewFake()

	timerFake := &timer.Fake{Now: 1000}
	var nextTrigger uint64
	timer.Init(timerFake, func(target uint64) { nextTrigger = target })

	fake.Enqueue(
		trampoline.Script{Scause: trampoline.CauseSupervisorTimer},
		trampoline.Script{Scause: trampoline.CauseUserEnvCall, Mutate: setExit(0)},
	)

	var sched FIFO
	SpawnThreadTask(&sched, fake, p, th, plat)
	RunUntilComplete(&sched)

	if nextTrigger == 0 {
		t.Fatal("expected SetTrigger to have been called for the timer tick")
	}
	if p.Status() != process.Zombie {
		t.Fatal("expected process to eventually exit")
	}
}
