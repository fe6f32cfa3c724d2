//go:build riscv64

package timer

// riscvHardware is the real Hardware, backed by two tiny asm CSR accessors.
type riscvHardware struct{}

// NewHardware returns the riscv64 Hardware implementation.
func NewHardware() Hardware { return riscvHardware{} }

func readTime() uint64
func setSTIE()

func (riscvHardware) ReadTime() uint64      { return readTime() }
func (riscvHardware) EnableTimerInterrupt() { setSTIE() }
