//go:build riscv64

package cpu

func writeSatp(satp uint64)

// Activate returns the real riscv64 satp writer: csrw satp, sfence.vma.
func Activate() WriteSatp { return writeSatp }
