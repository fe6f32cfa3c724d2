package timer

// Fake is a logical-clock Hardware for tests, analogous to
// trampoline.Fake: no real CSR access, just a counter the test can
// advance directly.
type Fake struct {
	Now              uint64
	InterruptEnabled bool
}

func (f *Fake) ReadTime() uint64 { return f.Now }

func (f *Fake) EnableTimerInterrupt() { f.InterruptEnabled = true }

// Advance moves the logical clock forward by delta ticks of the
// underlying CLOCK_FREQ-rate counter.
func (f *Fake) Advance(delta uint64) { f.Now += delta }
