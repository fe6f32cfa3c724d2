package cpu

// Fake records every satp value written, for tests that exercise
// AddressSpace.Activate without real riscv64 hardware.
type Fake struct {
	Writes []uint64
}

func (f *Fake) Writer() WriteSatp {
	return func(satp uint64) { f.Writes = append(f.Writes, satp) }
}
