package platform

// Fake is a hosted Platform usable under `go test`: console I/O over an
// in-memory ring buffer and the timer over a logical clock, the same
// head/tail-modulo ring shape as the teacher's circbuf.Circbuf_t, kept
// single-threaded (no mutex) since it is only ever driven by one task at
// a time under the executor's cooperative scheduling (spec.md §5).
type Fake struct {
	out []byte // everything ConsolePutchar has ever emitted

	head      int
	tail      int
	input     []byte // ring storage
	nextTimer uint64
	now       uint64

	ShutdownCalled bool
}

// NewFake returns a Fake with a 256-byte stdin ring.
func NewFake() *Fake {
	return &Fake{input: make([]byte, 256)}
}

// ConsolePutchar appends c to the recorded output stream.
func (f *Fake) ConsolePutchar(c byte) { f.out = append(f.out, c) }

// Output returns everything written via ConsolePutchar so far.
func (f *Fake) Output() []byte { return f.out }

// Feed appends bytes to the simulated stdin ring, as if a real UART had
// received them, for ConsoleGetchar to drain one at a time.
func (f *Fake) Feed(b []byte) {
	for _, c := range b {
		if f.head-f.tail == len(f.input) {
			panic("platform: fake stdin ring overflow")
		}
		f.input[f.head%len(f.input)] = c
		f.head++
	}
}

// ConsoleGetchar returns -1 when the ring is empty, matching spec.md §6's
// "negative = no byte" convention.
func (f *Fake) ConsoleGetchar() int8 {
	if f.head == f.tail {
		return -1
	}
	c := f.input[f.tail%len(f.input)]
	f.tail++
	return int8(c)
}

// SetTimer records the next requested trigger mtime.
func (f *Fake) SetTimer(mtimeTarget uint64) { f.nextTimer = mtimeTarget }

// NextTimer returns the last value passed to SetTimer.
func (f *Fake) NextTimer() uint64 { return f.nextTimer }

func (f *Fake) Shutdown() { f.ShutdownCalled = true }
