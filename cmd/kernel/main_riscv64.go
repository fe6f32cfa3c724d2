//go:build riscv64

package main

import (
	"rvkernel/bundle"
	"rvkernel/cpu"
	"rvkernel/platform"
	"rvkernel/timer"
	"rvkernel/trampoline"
)

// boardPlatform and boardBundle are supplied by the board bring-up code
// that links this kernel image; producing them (UART/CLINT wiring, the
// init/shell ELF images) is out of this specification's scope (spec.md §1).
var (
	boardPlatform platform.Platform
	boardBundle   bundle.Lookup
)

func main() {
	if boardPlatform == nil || boardBundle == nil {
		panic("kernel: no platform or binary bundle wired for this board")
	}
	boot(boardPlatform, trampoline.New(), timer.NewHardware(), cpu.Activate(), boardBundle)
}
