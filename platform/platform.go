// Package platform implements the single external-collaborator boundary
// the rest of the kernel depends on (spec.md §6): console I/O, timer
// programming, and shutdown. Every other package reaches the host only
// through this interface, the same "depend on the shim, not the
// implementation" shape spec.md gives it and trampoline.Trampoline gives
// the trap-entry boundary.
package platform

// Platform is implemented by the environment and consumed by the core
// (spec.md §6). ConsoleGetchar returns a negative value when no byte is
// available yet.
type Platform interface {
	ConsolePutchar(c byte)
	ConsoleGetchar() int8
	SetTimer(mtimeTarget uint64)
	Shutdown()
}

// Console adapts a Platform's putchar primitive to an io.Writer-shaped
// helper so kernel code can use fmt.Fprintf the way the teacher's console
// device does, rather than hand-looping over ConsolePutchar at every call
// site.
type Console struct {
	p Platform
}

// NewConsole wraps p's ConsolePutchar as a byte-oriented writer.
func NewConsole(p Platform) *Console { return &Console{p: p} }

// Write implements io.Writer, emitting one ConsolePutchar per byte.
func (c *Console) Write(b []byte) (int, error) {
	for _, ch := range b {
		c.p.ConsolePutchar(ch)
	}
	return len(b), nil
}
