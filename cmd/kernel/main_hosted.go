//go:build !riscv64

// The hosted build lets the boot sequence run on a development machine,
// with trampoline.Fake standing in for the riscv64 user/supervisor
// round-trip: it demonstrates one init process that immediately exits,
// the same control flow RunUntilComplete drives on real hardware.
package main

import (
	"bytes"
	"encoding/binary"

	"rvkernel/bundle"
	"rvkernel/cpu"
	"rvkernel/platform"
	"rvkernel/syscallapi"
	"rvkernel/timer"
	"rvkernel/trampoline"
	"rvkernel/trapframe"
)

func setExit(code uint64) func(*trapframe.TrapContext) {
	return func(tc *trapframe.TrapContext) {
		tc.X[17] = syscallapi.Exit
		tc.X[10] = code
	}
}

// buildMinimalELF assembles a one-segment ELF64 RISC-V executable: just
// enough header for vmspace.FromELF to map a PT_LOAD segment at vaddr and
// report entry == vaddr. body's bytes are never actually decoded since
// trampoline.Fake's EnterUser never fetches or executes instructions; it
// only needs to be present so process.New's ELF parsing has something to
// load (the same construction the process and executor package tests use
// for their fixtures).
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

func main() {
	fake := trampoline.NewFake()
	fake.Enqueue(trampoline.Script{Scause: trampoline.CauseUserEnvCall, Mutate: setExit(0)})

	bins := bundle.Static(map[string][]byte{
		"init": buildMinimalELF(0x10_0000, 5, []byte{0x73, 0x00, 0x00, 0x00}),
	})

	boot(platform.NewFake(), fake, &timer.Fake{Now: 0}, (&cpu.Fake{}).Writer(), bins)
}
